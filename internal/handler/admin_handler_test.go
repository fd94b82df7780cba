package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/service"
)

func TestAdminHandlerRequiresAdmin(t *testing.T) {
	env := setupApp(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/admin/users", 7, models.RoleTeacher, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/admin/audit-logs", 3, models.RoleDepartmentHead, nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestAdminHandlerUsers(t *testing.T) {
	env := setupApp(t)
	payload := dto.UserCreateRequest{Name: "Dr. Rahman", Email: "Rahman@Example.edu", Role: models.RoleTeacher}

	status, body := env.do(t, http.MethodPost, "/api/v1/admin/users", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusCreated, status, body.Message)

	var user models.User
	require.NoError(t, json.Unmarshal(body.Data, &user))
	require.Equal(t, "rahman@example.edu", user.Email)

	status, _ = env.do(t, http.MethodPost, "/api/v1/admin/users", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/admin/users", 1, models.RoleAdmin,
		dto.UserCreateRequest{Name: "Nobody", Email: "not-an-email", Role: "janitor"})
	require.Equal(t, http.StatusBadRequest, status)
	var details []map[string]string
	require.NoError(t, json.Unmarshal(body.Details, &details))
	require.Len(t, details, 2)

	status, body = env.do(t, http.MethodGet, "/api/v1/admin/users?role=teacher", 1, models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, status)
	var users []models.User
	require.NoError(t, json.Unmarshal(body.Data, &users))
	require.Len(t, users, 1)
}

func TestAdminHandlerScheduleWindows(t *testing.T) {
	env := setupApp(t)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	payload := dto.ScheduleWindowCreateRequest{Period: testPeriod, StartDate: start, EndDate: start.AddDate(0, 0, 14)}

	status, body := env.do(t, http.MethodPost, "/api/v1/admin/schedule-windows", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusCreated, status, body.Message)

	var window models.ScheduleWindow
	require.NoError(t, json.Unmarshal(body.Data, &window))
	require.True(t, window.RemindersEnabled)

	status, _ = env.do(t, http.MethodPost, "/api/v1/admin/schedule-windows", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusConflict, status)

	payload.Period = "2025-S2"
	payload.EndDate = start.AddDate(0, 0, -1)
	status, _ = env.do(t, http.MethodPost, "/api/v1/admin/schedule-windows", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/admin/schedule-windows", 1, models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, status)
	var windows []models.ScheduleWindow
	require.NoError(t, json.Unmarshal(body.Data, &windows))
	require.Len(t, windows, 1)
}

func TestAdminHandlerAuditLogs(t *testing.T) {
	env := setupApp(t)
	status, _ := env.do(t, http.MethodPost, "/api/v1/evaluations/student", 10, models.RoleStudent,
		submission(models.EvaluationTypeStudent, 7, 50, 4))
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodGet, "/api/v1/admin/audit-logs?action="+service.AuditActionEvaluationSubmit+"&actor_id=10", 1, models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, status, body.Message)

	var logs dto.AuditLogListResponse
	require.NoError(t, json.Unmarshal(body.Data, &logs))
	require.Len(t, logs.Items, 1)
	require.Equal(t, int64(1), logs.Pagination.TotalItems)
	require.EqualValues(t, 7, logs.Items[0].Details["teacherId"])

	status, _ = env.do(t, http.MethodGet, "/api/v1/admin/audit-logs?level=loud", 1, models.RoleAdmin, nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/api/v1/admin/audit-logs?page=x", 1, models.RoleAdmin, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestAssignmentHandlerPeerLifecycle(t *testing.T) {
	env := setupApp(t)
	now := time.Now().UTC()
	payload := dto.PeerAssignmentCreateRequest{
		EvaluatorID: 8,
		TeacherID:   7,
		CourseID:    50,
		Period:      testPeriod,
		WindowStart: now.Add(-time.Hour),
		WindowEnd:   now.Add(72 * time.Hour),
	}

	status, _ := env.do(t, http.MethodPost, "/api/v1/assignments/peer", 8, models.RoleTeacher, payload)
	require.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodPost, "/api/v1/assignments/peer", 3, models.RoleDepartmentHead, payload)
	require.Equal(t, http.StatusCreated, status, body.Message)

	status, _ = env.do(t, http.MethodPost, "/api/v1/assignments/peer", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/assignments/peer/mine", 8, models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, status)
	var open []models.PeerAssignment
	require.NoError(t, json.Unmarshal(body.Data, &open))
	require.Len(t, open, 1)

	status, _ = env.do(t, http.MethodPost, "/api/v1/evaluations/peer", 8, models.RoleTeacher,
		submission(models.EvaluationTypePeer, 7, 50, 4))
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/assignments/peer/mine", 8, models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body.Data, &open))
	require.Empty(t, open)

	status, body = env.do(t, http.MethodGet, "/api/v1/assignments/peer/mine?active=false", 8, models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body.Data, &open))
	require.Len(t, open, 1)
	require.False(t, open[0].Active)
}

func TestAssignmentHandlerStudentLifecycle(t *testing.T) {
	env := setupApp(t)
	payload := dto.EvaluationAssignmentCreateRequest{StudentID: 10, TeacherID: 7, CourseID: 50, Period: testPeriod}

	status, body := env.do(t, http.MethodPost, "/api/v1/assignments/student", 1, models.RoleAdmin, payload)
	require.Equal(t, http.StatusCreated, status, body.Message)

	status, body = env.do(t, http.MethodGet, "/api/v1/assignments/student/mine", 10, models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, status)
	var pending []models.EvaluationAssignment
	require.NoError(t, json.Unmarshal(body.Data, &pending))
	require.Len(t, pending, 1)

	status, _ = env.do(t, http.MethodPost, "/api/v1/evaluations/student", 10, models.RoleStudent,
		submission(models.EvaluationTypeStudent, 7, 50, 4))
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/assignments/student/mine", 10, models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body.Data, &pending))
	require.Empty(t, pending)
}

func TestFormsHandler(t *testing.T) {
	env := setupApp(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/forms/department", 7, models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, status)

	var form struct {
		Kind      string `json:"kind"`
		Questions []struct {
			Code string `json:"code"`
			Type string `json:"type"`
		} `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &form))
	require.Equal(t, string(models.EvaluationTypeDepartmentHead), form.Kind)
	require.Len(t, form.Questions, 12)
	require.Equal(t, "DEPT_Q1", form.Questions[0].Code)

	status, _ = env.do(t, http.MethodGet, "/api/v1/forms/alumni", 7, models.RoleTeacher, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestHealthCheck(t *testing.T) {
	env := setupApp(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/health", 0, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "go_goroutines")
}
