package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// PeerAssignmentRepository manages peer review invitations.
type PeerAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.PeerAssignment) error
	ListByEvaluator(ctx context.Context, evaluatorID uint, activeOnly bool) ([]models.PeerAssignment, error)
	Deactivate(ctx context.Context, evaluatorID, teacherID, courseID uint, period string) (int64, error)
}

type peerAssignmentRepository struct {
	db *gorm.DB
}

// NewPeerAssignmentRepository instantiates the repository.
func NewPeerAssignmentRepository(db *gorm.DB) PeerAssignmentRepository {
	return &peerAssignmentRepository{db: db}
}

func (r *peerAssignmentRepository) Create(ctx context.Context, assignment *models.PeerAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *peerAssignmentRepository) ListByEvaluator(ctx context.Context, evaluatorID uint, activeOnly bool) ([]models.PeerAssignment, error) {
	query := r.db.WithContext(ctx).Where("evaluator_id = ?", evaluatorID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var assignments []models.PeerAssignment
	if err := query.Order("window_end ASC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *peerAssignmentRepository) Deactivate(ctx context.Context, evaluatorID, teacherID, courseID uint, period string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PeerAssignment{}).
		Where("evaluator_id = ? AND teacher_id = ? AND course_id = ? AND period = ?", evaluatorID, teacherID, courseID, period).
		Where("active = ?", true).
		Update("active", false)
	return result.RowsAffected, result.Error
}

// EvaluationAssignmentRepository manages pending student evaluation requests.
type EvaluationAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.EvaluationAssignment) error
	ListByStudent(ctx context.Context, studentID uint, status string) ([]models.EvaluationAssignment, error)
	MarkCompleted(ctx context.Context, studentID, teacherID, courseID uint, period string) (int64, error)
}

type evaluationAssignmentRepository struct {
	db *gorm.DB
}

// NewEvaluationAssignmentRepository instantiates the repository.
func NewEvaluationAssignmentRepository(db *gorm.DB) EvaluationAssignmentRepository {
	return &evaluationAssignmentRepository{db: db}
}

func (r *evaluationAssignmentRepository) Create(ctx context.Context, assignment *models.EvaluationAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *evaluationAssignmentRepository) ListByStudent(ctx context.Context, studentID uint, status string) ([]models.EvaluationAssignment, error) {
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var assignments []models.EvaluationAssignment
	if err := query.Order("created_at DESC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *evaluationAssignmentRepository) MarkCompleted(ctx context.Context, studentID, teacherID, courseID uint, period string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.EvaluationAssignment{}).
		Where("student_id = ? AND teacher_id = ? AND course_id = ? AND period = ?", studentID, teacherID, courseID, period).
		Where("status = ?", models.AssignmentStatusPending).
		Update("status", models.AssignmentStatusCompleted)
	return result.RowsAffected, result.Error
}
