package dto

import (
	"time"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// StatsResponse exposes one stats cache row.
type StatsResponse struct {
	TeacherID     uint      `json:"teacher_id"`
	Period        string    `json:"period"`
	CourseID      *uint     `json:"course_id"`
	StudentScore  float64   `json:"student_score"`
	PeerScore     float64   `json:"peer_score"`
	DeptHeadScore float64   `json:"dept_head_score"`
	StudentCount  int64     `json:"student_count"`
	PeerCount     int64     `json:"peer_count"`
	DeptHeadCount int64     `json:"dept_head_count"`
	FinalScore    float64   `json:"final_score"`
	Source        string    `json:"source"`
	LastUpdated   time.Time `json:"last_updated"`
	CacheHit      bool      `json:"cache_hit"`
}

// NewStatsResponse converts a stats row; the rollup row reports a null course.
func NewStatsResponse(model models.StatsCache) StatsResponse {
	response := StatsResponse{
		TeacherID:     model.TeacherID,
		Period:        model.Period,
		StudentScore:  model.StudentScore,
		PeerScore:     model.PeerScore,
		DeptHeadScore: model.DeptHeadScore,
		StudentCount:  model.StudentCount,
		PeerCount:     model.PeerCount,
		DeptHeadCount: model.DeptHeadCount,
		FinalScore:    model.FinalScore,
		Source:        model.Source,
		LastUpdated:   model.LastUpdated,
	}
	if !model.IsRollup() {
		course := model.CourseID
		response.CourseID = &course
	}
	return response
}

// RecomputeRequest asks for a full recompute of a teacher's period.
type RecomputeRequest struct {
	TeacherID uint   `json:"teacher_id" validate:"required,gt=0"`
	Period    string `json:"period" validate:"required,max=64"`
}

// RecomputeResponse acknowledges an enqueued recompute job.
type RecomputeResponse struct {
	JobID     string `json:"job_id"`
	TeacherID uint   `json:"teacher_id"`
	Period    string `json:"period"`
}

// StatsEvent is published whenever a stats row changes.
type StatsEvent struct {
	Source string        `json:"source"`
	Stats  StatsResponse `json:"stats"`
	SentAt time.Time     `json:"sent_at"`
}
