package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// ErrDuplicateResponse is returned when the unique anonymous token already exists.
var ErrDuplicateResponse = errors.New("evaluation response already exists")

// ScoreAggregate is the mean and count of stored normalized scores.
type ScoreAggregate struct {
	Mean  float64
	Count int64
}

// AggregateFilter selects responses for an aggregate query. A nil CourseID spans every course.
type AggregateFilter struct {
	TeacherID uint
	Period    string
	CourseID  *uint
	Type      models.EvaluationType
}

// EvaluationFilter narrows listings of evaluation responses.
type EvaluationFilter struct {
	TeacherID   *uint
	EvaluatorID *uint
	CourseID    *uint
	Period      string
	Type        models.EvaluationType
}

// EvaluationRepository persists evaluation responses.
type EvaluationRepository interface {
	Create(ctx context.Context, response *models.EvaluationResponse) error
	ExistsByToken(ctx context.Context, token string) (bool, error)
	ExistsForEvaluator(ctx context.Context, evaluatorID, teacherID uint, period string, evalType models.EvaluationType) (bool, error)
	Aggregate(ctx context.Context, filter AggregateFilter) (ScoreAggregate, error)
	ListByTeacherPeriod(ctx context.Context, teacherID uint, period string) ([]models.EvaluationResponse, error)
	List(ctx context.Context, filter EvaluationFilter) ([]models.EvaluationResponse, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, response *models.EvaluationResponse) error {
	err := r.db.WithContext(ctx).Create(response).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateResponse
	}
	return err
}

func (r *evaluationRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EvaluationResponse{}).
		Where("anonymous_token = ?", token).
		Count(&count).Error
	return count > 0, err
}

func (r *evaluationRepository) ExistsForEvaluator(ctx context.Context, evaluatorID, teacherID uint, period string, evalType models.EvaluationType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EvaluationResponse{}).
		Where("evaluator_id = ?", evaluatorID).
		Where("teacher_id = ?", teacherID).
		Where("period = ?", period).
		Where("type = ?", evalType).
		Count(&count).Error
	return count > 0, err
}

func (r *evaluationRepository) Aggregate(ctx context.Context, filter AggregateFilter) (ScoreAggregate, error) {
	query := r.db.WithContext(ctx).Model(&models.EvaluationResponse{}).
		Select("COALESCE(AVG(total_score), 0) AS mean, COUNT(*) AS count").
		Where("teacher_id = ?", filter.TeacherID).
		Where("period = ?", filter.Period).
		Where("type = ?", filter.Type).
		Where("conflict_of_interest = ?", false)

	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}

	var result ScoreAggregate
	if err := query.Scan(&result).Error; err != nil {
		return ScoreAggregate{}, err
	}
	return result, nil
}

func (r *evaluationRepository) ListByTeacherPeriod(ctx context.Context, teacherID uint, period string) ([]models.EvaluationResponse, error) {
	var responses []models.EvaluationResponse
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Where("period = ?", period).
		Order("id ASC").
		Find(&responses).Error
	return responses, err
}

func (r *evaluationRepository) List(ctx context.Context, filter EvaluationFilter) ([]models.EvaluationResponse, error) {
	query := r.db.WithContext(ctx).Model(&models.EvaluationResponse{})

	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}
	if filter.EvaluatorID != nil {
		query = query.Where("evaluator_id = ?", *filter.EvaluatorID)
	}
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.Period != "" {
		query = query.Where("period = ?", filter.Period)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var responses []models.EvaluationResponse
	if err := query.Order("submitted_at DESC").Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}
