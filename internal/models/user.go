package models

import "time"

// Directory roles as carried in JWT claims.
const (
	RoleStudent        = "student"
	RoleTeacher        = "teacher"
	RoleDepartmentHead = "department_head"
	RoleAdmin          = "admin"
)

// User is a directory entry for anyone who evaluates or is evaluated.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Email     string    `gorm:"size:256;not null;uniqueIndex" json:"email"`
	Role      string    `gorm:"size:32;not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvaluationTypeForRole maps an evaluator's role to the component it feeds.
// Teachers evaluating colleagues count as peers.
func EvaluationTypeForRole(role string) (EvaluationType, bool) {
	switch role {
	case RoleStudent:
		return EvaluationTypeStudent, true
	case RoleTeacher:
		return EvaluationTypePeer, true
	case RoleDepartmentHead:
		return EvaluationTypeDepartmentHead, true
	}
	return "", false
}
