package service

import (
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.EvaluationResponse{},
		&models.StatsCache{},
		&models.PeerAssignment{},
		&models.EvaluationAssignment{},
		&models.ScheduleWindow{},
		&models.User{},
		&models.AuditLog{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mini, client
}

func intPtr(v int) *int {
	return &v
}

func uintPtr(v uint) *uint {
	return &v
}

// ratingAnswers answers every rating question of the form in order with the given scores,
// repeating the last score when fewer are supplied.
func ratingAnswers(t *testing.T, kind models.EvaluationType, scores ...int) []models.Answer {
	t.Helper()

	form, ok := scoring.FormFor(kind)
	require.True(t, ok)
	require.NotEmpty(t, scores)

	questions := form.RatingQuestions()
	answers := make([]models.Answer, 0, len(questions))
	for i, q := range questions {
		score := scores[len(scores)-1]
		if i < len(scores) {
			score = scores[i]
		}
		answers = append(answers, models.Answer{QuestionCode: q.Code, Score: intPtr(score)})
	}
	return answers
}
