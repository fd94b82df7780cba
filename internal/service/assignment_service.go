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

// ErrAssignmentExists indicates the same assignment was already issued.
var ErrAssignmentExists = errors.New("assignment already exists")

// AssignmentService issues peer and student evaluation assignments.
type AssignmentService interface {
	CreatePeer(ctx context.Context, payload dto.PeerAssignmentCreateRequest) (models.PeerAssignment, error)
	ListPeerForEvaluator(ctx context.Context, evaluatorID uint, activeOnly bool) ([]models.PeerAssignment, error)
	CreateStudent(ctx context.Context, payload dto.EvaluationAssignmentCreateRequest) (models.EvaluationAssignment, error)
	ListStudentPending(ctx context.Context, studentID uint) ([]models.EvaluationAssignment, error)
}

type assignmentService struct {
	peers     repository.PeerAssignmentRepository
	students  repository.EvaluationAssignmentRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAssignmentService builds the assignment service.
func NewAssignmentService(peers repository.PeerAssignmentRepository, students repository.EvaluationAssignmentRepository, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		peers:     peers,
		students:  students,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) CreatePeer(ctx context.Context, payload dto.PeerAssignmentCreateRequest) (models.PeerAssignment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.PeerAssignment{}, err
	}

	assignment := models.PeerAssignment{
		EvaluatorID: payload.EvaluatorID,
		TeacherID:   payload.TeacherID,
		CourseID:    payload.CourseID,
		Period:      strings.TrimSpace(payload.Period),
		WindowStart: payload.WindowStart.UTC(),
		WindowEnd:   payload.WindowEnd.UTC(),
		Active:      true,
	}
	if err := s.peers.Create(ctx, &assignment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.PeerAssignment{}, ErrAssignmentExists
		}
		return models.PeerAssignment{}, err
	}

	s.logger.Info().
		Uint("evaluator_id", assignment.EvaluatorID).
		Uint("teacher_id", assignment.TeacherID).
		Str("period", assignment.Period).
		Msg("peer assignment created")
	return assignment, nil
}

func (s *assignmentService) ListPeerForEvaluator(ctx context.Context, evaluatorID uint, activeOnly bool) ([]models.PeerAssignment, error) {
	return s.peers.ListByEvaluator(ctx, evaluatorID, activeOnly)
}

func (s *assignmentService) CreateStudent(ctx context.Context, payload dto.EvaluationAssignmentCreateRequest) (models.EvaluationAssignment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.EvaluationAssignment{}, err
	}

	assignment := models.EvaluationAssignment{
		StudentID: payload.StudentID,
		TeacherID: payload.TeacherID,
		CourseID:  payload.CourseID,
		Period:    strings.TrimSpace(payload.Period),
		Status:    models.AssignmentStatusPending,
	}
	if err := s.students.Create(ctx, &assignment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.EvaluationAssignment{}, ErrAssignmentExists
		}
		return models.EvaluationAssignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) ListStudentPending(ctx context.Context, studentID uint) ([]models.EvaluationAssignment, error) {
	return s.students.ListByStudent(ctx, studentID, models.AssignmentStatusPending)
}
