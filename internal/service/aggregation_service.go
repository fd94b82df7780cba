package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
)

// ErrAggregationFailure wraps any error raised while recomputing a teacher's stats.
var ErrAggregationFailure = errors.New("aggregation failed")

// AggregationService keeps the stats cache in step with stored responses.
type AggregationService interface {
	// ApplySubmission refreshes the component of the response's type on the
	// course row and the period rollup row.
	ApplySubmission(ctx context.Context, response models.EvaluationResponse) error
	// Recompute rebuilds every stats row of a teacher and period from raw responses.
	Recompute(ctx context.Context, teacherID uint, period string) error
}

type aggregationService struct {
	evaluations repository.EvaluationRepository
	users       repository.UserRepository
	stats       StatsService
	statsRepo   repository.StatsRepository
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAggregationService wires the aggregation service.
func NewAggregationService(evaluations repository.EvaluationRepository, users repository.UserRepository, stats StatsService, statsRepo repository.StatsRepository, logger zerolog.Logger) AggregationService {
	return &aggregationService{
		evaluations: evaluations,
		users:       users,
		stats:       stats,
		statsRepo:   statsRepo,
		logger:      logger.With().Str("component", "aggregation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/teacher-eval-api/internal/service/aggregation"),
	}
}

func (s *aggregationService) ApplySubmission(ctx context.Context, response models.EvaluationResponse) error {
	ctx, span := s.tracer.Start(ctx, "aggregation.incremental", trace.WithAttributes(
		attribute.Int64("teacher.id", int64(response.TeacherID)),
		attribute.Int64("course.id", int64(response.CourseID)),
		attribute.String("evaluation.period", response.Period),
		attribute.String("evaluation.type", string(response.Type)),
	))
	defer span.End()

	courseID := response.CourseID
	targets := []struct {
		key    repository.StatsKey
		course *uint
	}{
		{key: repository.StatsKey{TeacherID: response.TeacherID, Period: response.Period, CourseID: courseID}, course: &courseID},
		{key: repository.StatsKey{TeacherID: response.TeacherID, Period: response.Period, CourseID: models.RollupCourseID}},
	}

	for _, target := range targets {
		filter := repository.AggregateFilter{
			TeacherID: response.TeacherID,
			Period:    response.Period,
			CourseID:  target.course,
			Type:      response.Type,
		}
		_, err := s.stats.Upsert(ctx, target.key, models.StatsSourceIncremental, func(ctx context.Context, row *models.StatsCache) error {
			agg, err := s.evaluations.Aggregate(ctx, filter)
			if err != nil {
				return err
			}
			setComponent(row, response.Type, agg.Mean, agg.Count)
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stats_refresh_failed")
			return fmt.Errorf("refresh stats for course %d: %w", target.key.CourseID, err)
		}
	}

	return nil
}

func (s *aggregationService) Recompute(ctx context.Context, teacherID uint, period string) error {
	ctx, span := s.tracer.Start(ctx, "aggregation.recompute", trace.WithAttributes(
		attribute.Int64("teacher.id", int64(teacherID)),
		attribute.String("evaluation.period", period),
	))
	defer span.End()

	fail := func(status string, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return fmt.Errorf("%w: %s: %v", ErrAggregationFailure, status, err)
	}

	responses, err := s.evaluations.ListByTeacherPeriod(ctx, teacherID, period)
	if err != nil {
		return fail("load_responses", err)
	}

	evaluatorIDs := make([]uint, 0, len(responses))
	seen := make(map[uint]struct{}, len(responses))
	for _, r := range responses {
		if _, ok := seen[r.EvaluatorID]; ok {
			continue
		}
		seen[r.EvaluatorID] = struct{}{}
		evaluatorIDs = append(evaluatorIDs, r.EvaluatorID)
	}

	roles, err := s.users.RolesByIDs(ctx, evaluatorIDs)
	if err != nil {
		return fail("load_roles", err)
	}

	computed := BuildStats(teacherID, period, responses, roles)

	existing, err := s.statsRepo.ListByTeacher(ctx, teacherID, period)
	if err != nil {
		return fail("load_stats", err)
	}
	for _, row := range existing {
		if _, ok := computed[row.CourseID]; !ok {
			computed[row.CourseID] = ComponentStats{}
		}
	}

	courses := make([]uint, 0, len(computed))
	for course := range computed {
		courses = append(courses, course)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i] < courses[j] })

	for _, course := range courses {
		figures := computed[course]
		key := repository.StatsKey{TeacherID: teacherID, Period: period, CourseID: course}
		_, err := s.stats.Upsert(ctx, key, models.StatsSourceRecompute, func(_ context.Context, row *models.StatsCache) error {
			figures.apply(row)
			return nil
		})
		if err != nil {
			return fail("write_stats", err)
		}
	}

	span.SetAttributes(attribute.Int("aggregation.responses", len(responses)), attribute.Int("aggregation.rows", len(courses)))
	s.logger.Info().
		Uint("teacher_id", teacherID).
		Str("period", period).
		Int("responses", len(responses)).
		Int("rows", len(courses)).
		Time("completed_at", time.Now().UTC()).
		Msg("stats recomputed")

	return nil
}

// ComponentStats holds the per-type means and counts of one stats row.
type ComponentStats struct {
	StudentScore  float64
	PeerScore     float64
	DeptHeadScore float64
	StudentCount  int64
	PeerCount     int64
	DeptHeadCount int64
}

func (c ComponentStats) apply(row *models.StatsCache) {
	row.StudentScore, row.StudentCount = c.StudentScore, c.StudentCount
	row.PeerScore, row.PeerCount = c.PeerScore, c.PeerCount
	row.DeptHeadScore, row.DeptHeadCount = c.DeptHeadScore, c.DeptHeadCount
}

// BuildStats derives the component figures of every stats row of a teacher
// and period from raw responses. Responses are grouped by the evaluator's
// directory role; an evaluator missing from roles falls back to the type the
// response was filed under. Scores are re-derived from rating answers, so the
// result depends only on the rows passed in. The rollup row is always present.
func BuildStats(teacherID uint, period string, responses []models.EvaluationResponse, roles map[uint]string) map[uint]ComponentStats {
	type bucket map[models.EvaluationType][]float64
	buckets := map[uint]bucket{models.RollupCourseID: {}}

	for _, r := range responses {
		if r.TeacherID != teacherID || r.Period != period || r.ConflictOfInterest {
			continue
		}

		component := r.Type
		if role, ok := roles[r.EvaluatorID]; ok {
			mapped, mappable := models.EvaluationTypeForRole(role)
			if !mappable {
				continue
			}
			component = mapped
		}

		form, ok := scoring.FormFor(r.Type)
		if !ok {
			continue
		}
		score := scoring.Normalize(form.RatingAnswers(r.Answers), form.RatingCount())

		if _, ok := buckets[r.CourseID]; !ok {
			buckets[r.CourseID] = bucket{}
		}
		buckets[r.CourseID][component] = append(buckets[r.CourseID][component], score)
		buckets[models.RollupCourseID][component] = append(buckets[models.RollupCourseID][component], score)
	}

	out := make(map[uint]ComponentStats, len(buckets))
	for course, b := range buckets {
		var row models.StatsCache
		for _, t := range models.EvaluationTypes {
			setComponent(&row, t, scoring.Mean(b[t]), int64(len(b[t])))
		}
		out[course] = ComponentStats{
			StudentScore:  row.StudentScore,
			PeerScore:     row.PeerScore,
			DeptHeadScore: row.DeptHeadScore,
			StudentCount:  row.StudentCount,
			PeerCount:     row.PeerCount,
			DeptHeadCount: row.DeptHeadCount,
		}
	}
	return out
}

func setComponent(row *models.StatsCache, t models.EvaluationType, mean float64, count int64) {
	switch t {
	case models.EvaluationTypeStudent:
		row.StudentScore, row.StudentCount = mean, count
	case models.EvaluationTypePeer:
		row.PeerScore, row.PeerCount = mean, count
	case models.EvaluationTypeDepartmentHead:
		row.DeptHeadScore, row.DeptHeadCount = mean, count
	}
}
