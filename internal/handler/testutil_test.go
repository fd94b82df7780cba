package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/config"
	"github.com/noah-isme/teacher-eval-api/internal/database"
	"github.com/noah-isme/teacher-eval-api/internal/handler"
	"github.com/noah-isme/teacher-eval-api/internal/jobs"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/router"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
	"github.com/noah-isme/teacher-eval-api/internal/service"
)

const testPeriod = "2025-S1"

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	mini  *miniredis.Miniredis
	queue *jobs.Queue
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func setupApp(t *testing.T) testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	cfg := config.Config{
		AppName:              "Test",
		AppEnv:               "test",
		JWTSecret:            "secret",
		SubmissionRateLimit:  100,
		SubmissionRateWindow: time.Minute,
		Weights:              config.DefaultWeights(),
	}

	evaluationRepo := repository.NewEvaluationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	userRepo := repository.NewUserRepository(db)
	windowRepo := repository.NewScheduleWindowRepository(db)
	peerRepo := repository.NewPeerAssignmentRepository(db)
	studentRepo := repository.NewEvaluationAssignmentRepository(db)

	queue := jobs.NewQueue(client, config.DefaultQueueConfig(), logger)
	audit := service.NewAuditService(repository.NewAuditLogRepository(db), validate, logger)
	stats := service.NewStatsService(statsRepo, scoring.Weights(cfg.Weights), client, time.Minute, nil, "teval", logger)
	aggregation := service.NewAggregationService(evaluationRepo, userRepo, stats, statsRepo, logger)
	evaluations := service.NewEvaluationService(evaluationRepo, aggregation, service.EvaluationSideEffects{
		PeerAssignments:       peerRepo,
		EvaluationAssignments: studentRepo,
		Audit:                 audit,
		Enqueuer:              queue,
	}, validate, logger)

	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluations, logger),
		StatsHandler:      handler.NewStatsHandler(stats, queue, queue, audit, validate, logger),
		FormsHandler:      handler.NewFormsHandler(),
		AssignmentHandler: handler.NewAssignmentHandler(service.NewAssignmentService(peerRepo, studentRepo, validate, logger), logger),
		AdminHandler:      handler.NewAdminHandler(service.NewDirectoryService(userRepo, windowRepo, validate, logger), audit, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			c.Locals("user_role", c.Get("X-Test-Role"))
			return c.Next()
		},
	})

	return testEnv{app: app, db: db, mini: mini, queue: queue}
}

func (e testEnv) do(t *testing.T, method, path string, userID uint, role string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.([]byte)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			require.NoError(t, err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	}
	req.Header.Set("X-Test-Role", role)

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

// submission builds a payload answering every rating question of the form with score.
func submission(kind models.EvaluationType, teacherID, courseID uint, score int) map[string]interface{} {
	form, _ := scoring.FormFor(kind)
	answers := make([]map[string]interface{}, 0, len(form.Questions))
	for _, q := range form.RatingQuestions() {
		answers = append(answers, map[string]interface{}{"question_code": q.Code, "score": score})
	}
	return map[string]interface{}{
		"form":       string(kind),
		"teacher_id": teacherID,
		"course_id":  courseID,
		"period":     testPeriod,
		"answers":    answers,
	}
}
