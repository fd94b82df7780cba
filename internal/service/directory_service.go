package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
)

var (
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrWindowExists indicates a schedule window for the period already exists.
	ErrWindowExists = errors.New("schedule window already exists")
)

// DirectoryService maintains the user directory and evaluation windows.
type DirectoryService interface {
	CreateUser(ctx context.Context, payload dto.UserCreateRequest) (models.User, error)
	ListUsers(ctx context.Context, role string) ([]models.User, error)
	CreateWindow(ctx context.Context, payload dto.ScheduleWindowCreateRequest) (models.ScheduleWindow, error)
	ListWindows(ctx context.Context) ([]models.ScheduleWindow, error)
}

type directoryService struct {
	users     repository.UserRepository
	windows   repository.ScheduleWindowRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewDirectoryService wires the directory service.
func NewDirectoryService(users repository.UserRepository, windows repository.ScheduleWindowRepository, validate *validator.Validate, logger zerolog.Logger) DirectoryService {
	return &directoryService{
		users:     users,
		windows:   windows,
		validator: validate,
		logger:    logger.With().Str("component", "directory_service").Logger(),
	}
}

func (s *directoryService) CreateUser(ctx context.Context, payload dto.UserCreateRequest) (models.User, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.User{}, err
	}

	user := models.User{
		Name:  strings.TrimSpace(payload.Name),
		Email: strings.ToLower(strings.TrimSpace(payload.Email)),
		Role:  payload.Role,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}

	s.logger.Info().
		Uint("user_id", user.ID).
		Str("role", user.Role).
		Str("email", maskEmailAddress(user.Email)).
		Msg("directory user created")
	return user, nil
}

func (s *directoryService) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	return s.users.List(ctx, strings.TrimSpace(role))
}

func (s *directoryService) CreateWindow(ctx context.Context, payload dto.ScheduleWindowCreateRequest) (models.ScheduleWindow, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.ScheduleWindow{}, err
	}

	window := models.ScheduleWindow{
		Period:           strings.TrimSpace(payload.Period),
		StartDate:        payload.StartDate.UTC(),
		EndDate:          payload.EndDate.UTC(),
		RemindersEnabled: true,
	}
	if payload.RemindersEnabled != nil {
		window.RemindersEnabled = *payload.RemindersEnabled
	}

	if err := s.windows.Create(ctx, &window); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ScheduleWindow{}, ErrWindowExists
		}
		return models.ScheduleWindow{}, err
	}

	s.logger.Info().Str("period", window.Period).Time("end_date", window.EndDate).Msg("schedule window created")
	return window, nil
}

func (s *directoryService) ListWindows(ctx context.Context) ([]models.ScheduleWindow, error) {
	return s.windows.List(ctx)
}
