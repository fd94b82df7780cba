package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
)

type memoryAuditRepo struct {
	entries []models.AuditLog
}

func (m *memoryAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAuditRepo) List(ctx context.Context, filter repository.AuditLogFilter) ([]models.AuditLog, int64, error) {
	return append([]models.AuditLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestAuditServiceRecordMasksSensitiveDetails(t *testing.T) {
	repo := &memoryAuditRepo{}
	svc := NewAuditService(repo, testValidator(), testLogger())

	entry, err := svc.Record(context.Background(), AuditEntry{
		ActorID:    uintPtr(1),
		ActorRole:  "Student",
		Action:     "evaluation_submit",
		EntityType: "Evaluation_Response",
		Details: map[string]interface{}{
			"anonymousToken": "abc",
			"email":          "student@example.com",
			"period":         "2025-S1",
		},
	})
	require.NoError(t, err)
	require.Equal(t, AuditActionEvaluationSubmit, entry.Action)
	require.Equal(t, models.AuditLevelInfo, entry.Level)
	require.Equal(t, "student", entry.ActorRole)
	require.Equal(t, "evaluation_response", entry.EntityType)
	require.Equal(t, "***", entry.Details["anonymousToken"])
	require.Equal(t, "s***t@example.com", entry.Details["email"])
	require.Equal(t, "2025-S1", entry.Details["period"])
}

func TestAuditServiceRecordValidatesEntry(t *testing.T) {
	svc := NewAuditService(&memoryAuditRepo{}, testValidator(), testLogger())

	_, err := svc.Record(context.Background(), AuditEntry{EntityType: "job"})
	require.Error(t, err)

	_, err = svc.Record(context.Background(), AuditEntry{Action: "x", EntityType: "job", Level: "fatal"})
	require.Error(t, err)

	entry, err := svc.Record(context.Background(), AuditEntry{Action: AuditActionAggregationJobFailure, EntityType: "aggregation_job", Level: "ERROR"})
	require.NoError(t, err)
	require.Equal(t, models.AuditLevelError, entry.Level)
	require.Equal(t, "system", entry.ActorRole)
	require.Nil(t, entry.ActorID)
}

func TestAuditServiceListPaginates(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAuditService(repository.NewAuditLogRepository(db), testValidator(), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, AuditEntry{Action: AuditActionEvaluationSubmit, EntityType: "evaluation_response"})
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, AuditEntry{Action: AuditActionAggregationJobFailure, EntityType: "aggregation_job", Level: models.AuditLevelError})
	require.NoError(t, err)

	page, err := svc.List(ctx, dto.AuditLogListRequest{Page: 2, PageSize: 2, Action: "evaluation_submit"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(5), page.Pagination.TotalItems)
	require.Equal(t, 3, page.Pagination.TotalPages)

	failures, err := svc.List(ctx, dto.AuditLogListRequest{Level: models.AuditLevelError})
	require.NoError(t, err)
	require.Len(t, failures.Items, 1)
	require.Equal(t, 1, failures.Pagination.TotalPages)

	_, err = svc.List(ctx, dto.AuditLogListRequest{Level: "fatal"})
	require.Error(t, err)
}
