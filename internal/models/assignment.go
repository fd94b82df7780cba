package models

import "time"

// PeerAssignment invites one teacher to evaluate another for a course and period.
type PeerAssignment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EvaluatorID uint      `gorm:"not null;uniqueIndex:idx_peer_assignment,priority:1" json:"evaluator_id"`
	TeacherID   uint      `gorm:"not null;uniqueIndex:idx_peer_assignment,priority:2" json:"teacher_id"`
	CourseID    uint      `gorm:"not null;uniqueIndex:idx_peer_assignment,priority:3" json:"course_id"`
	Period      string    `gorm:"size:64;not null;uniqueIndex:idx_peer_assignment,priority:4" json:"period"`
	WindowStart time.Time `gorm:"not null" json:"window_start"`
	WindowEnd   time.Time `gorm:"not null" json:"window_end"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OpenAt reports whether the assignment window contains the instant.
func (p PeerAssignment) OpenAt(now time.Time) bool {
	return !now.Before(p.WindowStart) && !now.After(p.WindowEnd)
}

const (
	// AssignmentStatusPending means the student has not submitted yet.
	AssignmentStatusPending = "pending"
	// AssignmentStatusCompleted means the student evaluation was received.
	AssignmentStatusCompleted = "completed"
)

// EvaluationAssignment asks a student to evaluate the teacher of a course.
type EvaluationAssignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_evaluation_assignment,priority:1" json:"student_id"`
	TeacherID uint      `gorm:"not null;uniqueIndex:idx_evaluation_assignment,priority:2" json:"teacher_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_evaluation_assignment,priority:3" json:"course_id"`
	Period    string    `gorm:"size:64;not null;uniqueIndex:idx_evaluation_assignment,priority:4" json:"period"`
	Status    string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
