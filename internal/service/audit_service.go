package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
)

// Audit actions raised by the evaluation pipeline.
const (
	AuditActionEvaluationSubmit      = "EVALUATION_SUBMIT"
	AuditActionAggregationJobFailure = "AGGREGATION_JOB_FAILURE"
	AuditActionRecomputeRequested    = "STATS_RECOMPUTE_REQUESTED"
)

// AuditEntry captures the details required to persist an audit entry.
type AuditEntry struct {
	ActorID    *uint
	ActorRole  string
	Action     string
	Level      string
	EntityType string
	Details    map[string]interface{}
}

// AuditRecorder defines behaviour for recording audit logs.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) (dto.AuditLogResponse, error)
}

// AuditService exposes methods to query and persist audit logs.
type AuditService interface {
	AuditRecorder
	List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error)
}

type auditService struct {
	repo      repository.AuditLogRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuditService constructs the audit log service.
func NewAuditService(repo repository.AuditLogRepository, validator *validator.Validate, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:      repo,
		validator: validator,
		logger:    logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) (dto.AuditLogResponse, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return dto.AuditLogResponse{}, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return dto.AuditLogResponse{}, fmt.Errorf("entity type is required")
	}

	level, err := normalizeLevel(entry.Level)
	if err != nil {
		return dto.AuditLogResponse{}, err
	}

	model := models.AuditLog{
		ActorID:    entry.ActorID,
		ActorRole:  normalizeRole(entry.ActorRole),
		Action:     strings.ToUpper(strings.TrimSpace(entry.Action)),
		Level:      level,
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		Details:    sanitizeDetails(entry.Details),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", model.Action).Msg("failed to persist audit log")
		return dto.AuditLogResponse{}, err
	}

	return dto.NewAuditLogResponse(model), nil
}

func (s *auditService) List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuditLogListResponse{}, err
	}

	filter := repository.AuditLogFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Action:   strings.ToUpper(strings.TrimSpace(req.Action)),
		Level:    strings.TrimSpace(req.Level),
	}
	if req.ActorID > 0 {
		filter.ActorID = &req.ActorID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}

	responses := make([]dto.AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewAuditLogResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.AuditLogListResponse{Items: responses, Pagination: pagination}, nil
}

func sanitizeDetails(details map[string]interface{}) datatypes.JSONMap {
	if details == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range details {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		if strings.Contains(lower, "email") {
			email, _ := value.(string)
			sanitized[key] = maskEmailAddress(email)
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func normalizeLevel(level string) (string, error) {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "":
		return models.AuditLevelInfo, nil
	case models.AuditLevelInfo, models.AuditLevelWarn, models.AuditLevelError:
		return l, nil
	}
	return "", fmt.Errorf("unknown audit level %q", level)
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
