package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// ErrStatsVersionConflict signals that another writer updated the row first.
var ErrStatsVersionConflict = errors.New("stats cache version conflict")

// StatsKey identifies one stats cache row.
type StatsKey struct {
	TeacherID uint
	Period    string
	CourseID  uint
}

// StatsRepository reads and writes the stats cache with optimistic concurrency.
type StatsRepository interface {
	Get(ctx context.Context, key StatsKey) (models.StatsCache, error)
	ListByTeacher(ctx context.Context, teacherID uint, period string) ([]models.StatsCache, error)
	// Save inserts a new row (ID 0) or updates an existing one when its stored
	// version still equals stats.Version. On success stats.Version is advanced.
	Save(ctx context.Context, stats *models.StatsCache) error
}

type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository instantiates the repository.
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) Get(ctx context.Context, key StatsKey) (models.StatsCache, error) {
	var stats models.StatsCache
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", key.TeacherID).
		Where("period = ?", key.Period).
		Where("course_id = ?", key.CourseID).
		First(&stats).Error
	return stats, err
}

func (r *statsRepository) ListByTeacher(ctx context.Context, teacherID uint, period string) ([]models.StatsCache, error) {
	query := r.db.WithContext(ctx).Where("teacher_id = ?", teacherID)
	if period != "" {
		query = query.Where("period = ?", period)
	}

	var rows []models.StatsCache
	if err := query.Order("period ASC, course_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *statsRepository) Save(ctx context.Context, stats *models.StatsCache) error {
	if stats.ID == 0 {
		stats.Version = 1
		err := r.db.WithContext(ctx).Create(stats).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			stats.ID = 0
			return ErrStatsVersionConflict
		}
		return err
	}

	expected := stats.Version
	result := r.db.WithContext(ctx).Model(&models.StatsCache{}).
		Where("id = ? AND version = ?", stats.ID, expected).
		Updates(map[string]interface{}{
			"student_score":   stats.StudentScore,
			"peer_score":      stats.PeerScore,
			"dept_head_score": stats.DeptHeadScore,
			"student_count":   stats.StudentCount,
			"peer_count":      stats.PeerCount,
			"dept_head_count": stats.DeptHeadCount,
			"final_score":     stats.FinalScore,
			"source":          stats.Source,
			"last_updated":    stats.LastUpdated,
			"version":         expected + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatsVersionConflict
	}

	stats.Version = expected + 1
	return nil
}
