package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationType identifies which form and evaluator population produced a response.
type EvaluationType string

const (
	// EvaluationTypeStudent is a student rating an instructor of a course.
	EvaluationTypeStudent EvaluationType = "student"
	// EvaluationTypePeer is a teacher rating a colleague.
	EvaluationTypePeer EvaluationType = "peer"
	// EvaluationTypeDepartmentHead is a department head rating a teacher.
	EvaluationTypeDepartmentHead EvaluationType = "department_head"
)

// EvaluationTypes lists every evaluation type in weighting order.
var EvaluationTypes = []EvaluationType{EvaluationTypeStudent, EvaluationTypePeer, EvaluationTypeDepartmentHead}

// Valid reports whether the value is a known evaluation type.
func (t EvaluationType) Valid() bool {
	switch t {
	case EvaluationTypeStudent, EvaluationTypePeer, EvaluationTypeDepartmentHead:
		return true
	}
	return false
}

// ScoreNotApplicable marks a rating question the evaluator explicitly skipped.
const ScoreNotApplicable = -1

// Answer is a single question answer within a response.
type Answer struct {
	QuestionCode string `json:"question_code"`
	Score        *int   `json:"score,omitempty"`
	Response     string `json:"response,omitempty"`
}

// HasScore reports whether a numeric score (including N/A) was supplied.
func (a Answer) HasScore() bool {
	return a.Score != nil
}

// Ratable reports whether the answer contributes to a normalized score.
func (a Answer) Ratable() bool {
	return a.Score != nil && *a.Score != ScoreNotApplicable
}

// EvaluationResponse stores one evaluator's answers about one teacher for a course and period.
type EvaluationResponse struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	Type               EvaluationType              `gorm:"size:32;not null;index:idx_evaluation_lookup,priority:4" json:"type"`
	EvaluatorID        uint                        `gorm:"not null;index:idx_evaluation_lookup,priority:1" json:"evaluator_id"`
	TeacherID          uint                        `gorm:"not null;index:idx_evaluation_lookup,priority:2;index:idx_evaluation_teacher_period,priority:1" json:"teacher_id"`
	CourseID           uint                        `gorm:"not null" json:"course_id"`
	Period             string                      `gorm:"size:64;not null;index:idx_evaluation_lookup,priority:3;index:idx_evaluation_teacher_period,priority:2" json:"period"`
	AnonymousToken     string                      `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Answers            datatypes.JSONSlice[Answer] `gorm:"type:json" json:"answers"`
	TotalScore         float64                     `gorm:"not null" json:"total_score"`
	ConflictOfInterest bool                        `gorm:"not null;default:false" json:"conflict_of_interest"`
	SubmittedAt        time.Time                   `gorm:"not null" json:"submitted_at"`
	CreatedAt          time.Time                   `json:"created_at"`
}
