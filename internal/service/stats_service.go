package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/observability"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
)

const maxStatsWriteAttempts = 5

var (
	// ErrStatsNotFound indicates no aggregate exists yet for the requested key.
	ErrStatsNotFound = errors.New("stats not found")
	// ErrStatsContention indicates the row kept changing underneath every write attempt.
	ErrStatsContention = errors.New("stats cache write contention")
)

// StatsMutation fills in the figures of a stats row. It runs after the
// current row has been read, once per write attempt.
type StatsMutation func(ctx context.Context, row *models.StatsCache) error

// StatsService reads the stats cache and performs versioned writes to it.
type StatsService interface {
	Get(ctx context.Context, teacherID uint, period string, courseID *uint) (dto.StatsResponse, error)
	ListByTeacher(ctx context.Context, teacherID uint, period string) ([]dto.StatsResponse, error)
	// Upsert applies the mutation to the row for key and recomputes the final
	// score. Concurrent writers are serialized by the row version.
	Upsert(ctx context.Context, key repository.StatsKey, source string, mutate StatsMutation) (models.StatsCache, error)
}

type statsService struct {
	repo        repository.StatsRepository
	weights     scoring.Weights
	cache       *redis.Client
	cacheTTL    time.Duration
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string
	now         func() time.Time
}

// NewStatsService builds the stats service. Redis and NATS are optional.
func NewStatsService(repo repository.StatsRepository, weights scoring.Weights, cache *redis.Client, ttl time.Duration, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) StatsService {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".stats.updated"
	}

	return &statsService{
		repo:        repo,
		weights:     weights,
		cache:       cache,
		cacheTTL:    ttl,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "stats_service").Logger(),
		nodeID:      uuid.NewString(),
		now:         time.Now,
	}
}

func statsCacheKey(key repository.StatsKey) string {
	return fmt.Sprintf("stats:teacher:%d:%s:%d", key.TeacherID, key.Period, key.CourseID)
}

func (s *statsService) Get(ctx context.Context, teacherID uint, period string, courseID *uint) (dto.StatsResponse, error) {
	key := repository.StatsKey{TeacherID: teacherID, Period: strings.TrimSpace(period), CourseID: models.RollupCourseID}
	if courseID != nil {
		key.CourseID = *courseID
	}
	cacheKey := statsCacheKey(key)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.StatsCacheLookups().WithLabelValues("hit").Inc()
				response.CacheHit = true
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
		observability.StatsCacheLookups().WithLabelValues("miss").Inc()
	}

	row, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StatsResponse{}, ErrStatsNotFound
		}
		return dto.StatsResponse{}, err
	}

	response := dto.NewStatsResponse(row)

	// A read that loses a race with Upsert can store the older row after the
	// invalidation; the TTL bounds how long it is served.
	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
			}
		}
	}

	return response, nil
}

func (s *statsService) ListByTeacher(ctx context.Context, teacherID uint, period string) ([]dto.StatsResponse, error) {
	rows, err := s.repo.ListByTeacher(ctx, teacherID, strings.TrimSpace(period))
	if err != nil {
		return nil, err
	}

	out := make([]dto.StatsResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.NewStatsResponse(row))
	}
	return out, nil
}

func (s *statsService) Upsert(ctx context.Context, key repository.StatsKey, source string, mutate StatsMutation) (models.StatsCache, error) {
	for attempt := 1; attempt <= maxStatsWriteAttempts; attempt++ {
		row, err := s.repo.Get(ctx, key)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.StatsCache{TeacherID: key.TeacherID, Period: key.Period, CourseID: key.CourseID}
		} else if err != nil {
			return models.StatsCache{}, err
		}

		if err := mutate(ctx, &row); err != nil {
			return models.StatsCache{}, err
		}
		row.FinalScore = s.weights.FinalScore(row.StudentScore, row.PeerScore, row.DeptHeadScore)
		row.Source = source
		row.LastUpdated = s.now().UTC()

		err = s.repo.Save(ctx, &row)
		if errors.Is(err, repository.ErrStatsVersionConflict) {
			s.logger.Debug().
				Uint("teacher_id", key.TeacherID).
				Str("period", key.Period).
				Uint("course_id", key.CourseID).
				Int("attempt", attempt).
				Msg("stats version conflict, retrying")
			continue
		}
		if err != nil {
			return models.StatsCache{}, err
		}

		s.invalidate(ctx, key)
		if err := s.publish(row); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish stats update")
		}
		return row, nil
	}

	return models.StatsCache{}, fmt.Errorf("%w: teacher %d period %s course %d", ErrStatsContention, key.TeacherID, key.Period, key.CourseID)
}

func (s *statsService) invalidate(ctx context.Context, key repository.StatsKey) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey(key)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate stats cache")
	}
}

func (s *statsService) publish(row models.StatsCache) error {
	if s.nats == nil || s.natsSubject == "" {
		return nil
	}

	event := dto.StatsEvent{
		Source: s.nodeID,
		Stats:  dto.NewStatsResponse(row),
		SentAt: s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.nats.Publish(s.natsSubject, payload)
}
