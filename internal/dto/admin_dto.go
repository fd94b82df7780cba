package dto

import (
	"time"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// PaginationMeta describes pagination details.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// UserCreateRequest registers a directory entry.
type UserCreateRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Email string `json:"email" validate:"required,email,max=256"`
	Role  string `json:"role" validate:"required,oneof=student teacher department_head admin"`
}

// ScheduleWindowCreateRequest opens an evaluation window.
type ScheduleWindowCreateRequest struct {
	Period           string    `json:"period" validate:"required,max=64"`
	StartDate        time.Time `json:"start_date" validate:"required"`
	EndDate          time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	RemindersEnabled *bool     `json:"reminders_enabled"`
}

// PeerAssignmentCreateRequest invites a teacher to review a colleague.
type PeerAssignmentCreateRequest struct {
	EvaluatorID uint      `json:"evaluator_id" validate:"required,gt=0"`
	TeacherID   uint      `json:"teacher_id" validate:"required,gt=0,nefield=EvaluatorID"`
	CourseID    uint      `json:"course_id" validate:"required,gt=0"`
	Period      string    `json:"period" validate:"required,max=64"`
	WindowStart time.Time `json:"window_start" validate:"required"`
	WindowEnd   time.Time `json:"window_end" validate:"required,gtfield=WindowStart"`
}

// EvaluationAssignmentCreateRequest asks a student to evaluate a course teacher.
type EvaluationAssignmentCreateRequest struct {
	StudentID uint   `json:"student_id" validate:"required,gt=0"`
	TeacherID uint   `json:"teacher_id" validate:"required,gt=0"`
	CourseID  uint   `json:"course_id" validate:"required,gt=0"`
	Period    string `json:"period" validate:"required,max=64"`
}

// AuditLogListRequest defines filters for retrieving audit logs.
type AuditLogListRequest struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	ActorID  uint   `json:"actor_id"`
	Action   string `json:"action"`
	Level    string `json:"level" validate:"omitempty,oneof=info warn error"`
}

// AuditLogResponse serializes audit entries.
type AuditLogResponse struct {
	ID         uint                   `json:"id"`
	ActorID    *uint                  `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	Level      string                 `json:"level"`
	EntityType string                 `json:"entity_type"`
	Details    map[string]interface{} `json:"details"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AuditLogListResponse wraps paginated audit logs.
type AuditLogListResponse struct {
	Items      []AuditLogResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// NewAuditLogResponse converts a model into an audit DTO.
func NewAuditLogResponse(model models.AuditLog) AuditLogResponse {
	details := map[string]interface{}{}
	for key, value := range model.Details {
		details[key] = value
	}

	return AuditLogResponse{
		ID:         model.ID,
		ActorID:    model.ActorID,
		ActorRole:  model.ActorRole,
		Action:     model.Action,
		Level:      model.Level,
		EntityType: model.EntityType,
		Details:    details,
		CreatedAt:  model.CreatedAt,
	}
}
