package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
)

func TestDirectoryServiceUsersAndWindows(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewDirectoryService(repository.NewUserRepository(db), repository.NewScheduleWindowRepository(db), testValidator(), testLogger())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, dto.UserCreateRequest{Name: " Ana ", Email: "Ana@Example.com", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", user.Email)

	_, err = svc.CreateUser(ctx, dto.UserCreateRequest{Name: "Ana", Email: "ana@example.com", Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrUserExists)

	_, err = svc.CreateUser(ctx, dto.UserCreateRequest{Name: "Bo", Email: "bo@example.com", Role: "janitor"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	teachers, err := svc.ListUsers(ctx, models.RoleTeacher)
	require.NoError(t, err)
	require.Len(t, teachers, 1)

	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	disabled := false
	window, err := svc.CreateWindow(ctx, dto.ScheduleWindowCreateRequest{Period: "2025-S1", StartDate: start, EndDate: start.AddDate(0, 0, 14), RemindersEnabled: &disabled})
	require.NoError(t, err)
	require.False(t, window.RemindersEnabled)

	_, err = svc.CreateWindow(ctx, dto.ScheduleWindowCreateRequest{Period: "2025-S1", StartDate: start, EndDate: start.AddDate(0, 0, 1)})
	require.ErrorIs(t, err, ErrWindowExists)

	_, err = svc.CreateWindow(ctx, dto.ScheduleWindowCreateRequest{Period: "2025-S2", StartDate: start, EndDate: start.AddDate(0, 0, -1)})
	require.Error(t, err)

	windows, err := svc.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 1)
}

func TestAssignmentServiceLifecycle(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAssignmentService(repository.NewPeerAssignmentRepository(db), repository.NewEvaluationAssignmentRepository(db), testValidator(), testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	peer, err := svc.CreatePeer(ctx, dto.PeerAssignmentCreateRequest{EvaluatorID: 1, TeacherID: 2, CourseID: 3, Period: "2025-S1", WindowStart: now, WindowEnd: now.Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, peer.Active)

	_, err = svc.CreatePeer(ctx, dto.PeerAssignmentCreateRequest{EvaluatorID: 1, TeacherID: 2, CourseID: 3, Period: "2025-S1", WindowStart: now, WindowEnd: now.Add(time.Hour)})
	require.ErrorIs(t, err, ErrAssignmentExists)

	_, err = svc.CreatePeer(ctx, dto.PeerAssignmentCreateRequest{EvaluatorID: 4, TeacherID: 4, CourseID: 3, Period: "2025-S1", WindowStart: now, WindowEnd: now.Add(time.Hour)})
	require.Error(t, err)

	active, err := svc.ListPeerForEvaluator(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	assignment, err := svc.CreateStudent(ctx, dto.EvaluationAssignmentCreateRequest{StudentID: 5, TeacherID: 2, CourseID: 3, Period: "2025-S1"})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPending, assignment.Status)

	pending, err := svc.ListStudentPending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
