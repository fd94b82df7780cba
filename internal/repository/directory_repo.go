package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// UserRepository reads the user directory.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	List(ctx context.Context, role string) ([]models.User, error)
	RolesByIDs(ctx context.Context, ids []uint) (map[uint]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) List(ctx context.Context, role string) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) RolesByIDs(ctx context.Context, ids []uint) (map[uint]string, error) {
	roles := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "role").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		roles[u.ID] = u.Role
	}
	return roles, nil
}

// ScheduleWindowRepository manages evaluation windows.
type ScheduleWindowRepository interface {
	Create(ctx context.Context, window *models.ScheduleWindow) error
	List(ctx context.Context) ([]models.ScheduleWindow, error)
	ListEnded(ctx context.Context, now time.Time) ([]models.ScheduleWindow, error)
}

type scheduleWindowRepository struct {
	db *gorm.DB
}

// NewScheduleWindowRepository instantiates the repository.
func NewScheduleWindowRepository(db *gorm.DB) ScheduleWindowRepository {
	return &scheduleWindowRepository{db: db}
}

func (r *scheduleWindowRepository) Create(ctx context.Context, window *models.ScheduleWindow) error {
	return r.db.WithContext(ctx).Create(window).Error
}

func (r *scheduleWindowRepository) List(ctx context.Context) ([]models.ScheduleWindow, error) {
	var windows []models.ScheduleWindow
	if err := r.db.WithContext(ctx).Order("start_date DESC").Find(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *scheduleWindowRepository) ListEnded(ctx context.Context, now time.Time) ([]models.ScheduleWindow, error) {
	var windows []models.ScheduleWindow
	if err := r.db.WithContext(ctx).Where("end_date <= ?", now).Order("end_date ASC").Find(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}
