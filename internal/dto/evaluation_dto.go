package dto

import (
	"time"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// AnswerRequest is one answer within a submission payload.
type AnswerRequest struct {
	QuestionCode string `json:"question_code" validate:"required,max=32"`
	Score        *int   `json:"score" validate:"omitempty,min=-1,max=5"`
	Response     string `json:"response" validate:"omitempty,max=4000"`
}

// EvaluationSubmitRequest is the body accepted by every evaluation endpoint.
// Form must name the endpoint's own form kind.
type EvaluationSubmitRequest struct {
	Form               string          `json:"form" validate:"required,oneof=student peer department_head"`
	TeacherID          uint            `json:"teacher_id" validate:"required,gt=0"`
	CourseID           uint            `json:"course_id" validate:"required,gt=0"`
	Period             string          `json:"period" validate:"required,max=64"`
	Answers            []AnswerRequest `json:"answers" validate:"required,min=1,dive"`
	ConflictOfInterest bool            `json:"conflict_of_interest"`
}

// EvaluationResponse is returned after a submission and when listing one's own evaluations.
type EvaluationResponse struct {
	ID                 uint                  `json:"id"`
	Type               models.EvaluationType `json:"type"`
	TeacherID          uint                  `json:"teacher_id"`
	CourseID           uint                  `json:"course_id"`
	Period             string                `json:"period"`
	TotalScore         float64               `json:"total_score"`
	ConflictOfInterest bool                  `json:"conflict_of_interest"`
	Answers            []models.Answer       `json:"answers"`
	SubmittedAt        time.Time             `json:"submitted_at"`
}

// NewEvaluationResponse converts a stored response into its DTO. The
// evaluator id and token are deliberately left out.
func NewEvaluationResponse(model models.EvaluationResponse) EvaluationResponse {
	answers := []models.Answer(model.Answers)
	if answers == nil {
		answers = []models.Answer{}
	}
	return EvaluationResponse{
		ID:                 model.ID,
		Type:               model.Type,
		TeacherID:          model.TeacherID,
		CourseID:           model.CourseID,
		Period:             model.Period,
		TotalScore:         model.TotalScore,
		ConflictOfInterest: model.ConflictOfInterest,
		Answers:            answers,
		SubmittedAt:        model.SubmittedAt,
	}
}

// NewEvaluationResponseSlice converts a slice of responses.
func NewEvaluationResponseSlice(items []models.EvaluationResponse) []EvaluationResponse {
	out := make([]EvaluationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewEvaluationResponse(item))
	}
	return out
}
