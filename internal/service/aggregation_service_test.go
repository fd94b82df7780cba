package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
)

func response(id, evaluator, teacher, course uint, kind models.EvaluationType, answers []models.Answer) models.EvaluationResponse {
	form, _ := scoring.FormFor(kind)
	return models.EvaluationResponse{
		ID:             id,
		Type:           kind,
		EvaluatorID:    evaluator,
		TeacherID:      teacher,
		CourseID:       course,
		Period:         "2025-S1",
		AnonymousToken: AnonymousToken(kind, course, teacher, "2025-S1", evaluator),
		Answers:        answers,
		TotalScore:     scoring.Normalize(form.RatingAnswers(answers), form.RatingCount()),
		SubmittedAt:    time.Now().UTC(),
	}
}

func TestBuildStatsPartitionsByEvaluatorRole(t *testing.T) {
	responses := []models.EvaluationResponse{
		response(1, 100, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 4)),
		response(2, 101, 1, 11, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 3)),
		// Directory says this evaluator heads the department.
		response(3, 200, 1, 10, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 5)),
		// Admins do not feed any component.
		response(4, 300, 1, 10, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 1)),
		// Unknown evaluator falls back to the filed type.
		response(5, 400, 1, 11, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 4)),
	}
	roles := map[uint]string{
		100: models.RoleStudent,
		101: models.RoleStudent,
		200: models.RoleDepartmentHead,
		300: models.RoleAdmin,
	}

	stats := BuildStats(1, "2025-S1", responses, roles)
	require.Len(t, stats, 3)

	rollup := stats[models.RollupCourseID]
	require.InDelta(t, 70.0, rollup.StudentScore, 1e-9)
	require.Equal(t, int64(2), rollup.StudentCount)
	require.InDelta(t, 80.0, rollup.PeerScore, 1e-9)
	require.Equal(t, int64(1), rollup.PeerCount)
	require.InDelta(t, 100.0, rollup.DeptHeadScore, 1e-9)
	require.Equal(t, int64(1), rollup.DeptHeadCount)

	course10 := stats[10]
	require.InDelta(t, 80.0, course10.StudentScore, 1e-9)
	require.Zero(t, course10.PeerCount)
	require.Equal(t, int64(1), course10.DeptHeadCount)
}

func TestBuildStatsRederivesScoresAndSkipsConflicts(t *testing.T) {
	tampered := response(1, 100, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 5))
	tampered.TotalScore = 12
	conflicted := response(2, 200, 1, 10, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 1))
	conflicted.ConflictOfInterest = true
	otherPeriod := response(3, 101, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 1))
	otherPeriod.Period = "2024-S2"

	stats := BuildStats(1, "2025-S1", []models.EvaluationResponse{tampered, conflicted, otherPeriod}, nil)
	require.InDelta(t, 100.0, stats[10].StudentScore, 1e-9)
	require.Equal(t, int64(1), stats[10].StudentCount)
	require.Zero(t, stats[10].PeerCount)
}

func TestBuildStatsEmptyStillYieldsRollup(t *testing.T) {
	stats := BuildStats(1, "2025-S1", nil, nil)
	require.Len(t, stats, 1)
	require.Equal(t, ComponentStats{}, stats[models.RollupCourseID])
}

type aggregationFixture struct {
	evaluations repository.EvaluationRepository
	users       repository.UserRepository
	statsRepo   repository.StatsRepository
	svc         AggregationService
}

func newAggregationFixture(t *testing.T) aggregationFixture {
	t.Helper()
	db := setupServiceDB(t)
	statsRepo := repository.NewStatsRepository(db)
	fx := aggregationFixture{
		evaluations: repository.NewEvaluationRepository(db),
		users:       repository.NewUserRepository(db),
		statsRepo:   statsRepo,
	}
	stats := NewStatsService(statsRepo, scoring.DefaultWeights, nil, time.Minute, nil, "", testLogger())
	fx.svc = NewAggregationService(fx.evaluations, fx.users, stats, statsRepo, testLogger())
	return fx
}

func TestAggregationRecomputeIsIdempotent(t *testing.T) {
	fx := newAggregationFixture(t)
	ctx := context.Background()

	for _, r := range []models.EvaluationResponse{
		response(0, 100, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 4)),
		response(0, 101, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 3)),
		response(0, 200, 1, 10, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 5, 4, -1)),
		response(0, 300, 1, 11, models.EvaluationTypeDepartmentHead, ratingAnswers(t, models.EvaluationTypeDepartmentHead, 2)),
	} {
		r := r
		require.NoError(t, fx.evaluations.Create(ctx, &r))
	}

	require.NoError(t, fx.svc.Recompute(ctx, 1, "2025-S1"))
	first, err := fx.statsRepo.ListByTeacher(ctx, 1, "2025-S1")
	require.NoError(t, err)
	require.Len(t, first, 3)

	require.NoError(t, fx.svc.Recompute(ctx, 1, "2025-S1"))
	second, err := fx.statsRepo.ListByTeacher(ctx, 1, "2025-S1")
	require.NoError(t, err)
	require.Len(t, second, 3)

	for i := range first {
		require.Equal(t, first[i].CourseID, second[i].CourseID)
		require.Equal(t, first[i].StudentScore, second[i].StudentScore)
		require.Equal(t, first[i].PeerScore, second[i].PeerScore)
		require.Equal(t, first[i].DeptHeadScore, second[i].DeptHeadScore)
		require.Equal(t, first[i].FinalScore, second[i].FinalScore)
		require.Equal(t, models.StatsSourceRecompute, second[i].Source)
	}

	rollup := first[0]
	require.True(t, rollup.IsRollup())
	// 70*0.5 + 90*0.35 + 40*0.15
	require.Equal(t, 72.5, rollup.FinalScore)
}

func TestAggregationRecomputeAgreesWithIncrementalPath(t *testing.T) {
	fx := newAggregationFixture(t)
	ctx := context.Background()

	for _, r := range []models.EvaluationResponse{
		response(0, 100, 1, 10, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 5, 4, 3)),
		response(0, 101, 1, 12, models.EvaluationTypeStudent, ratingAnswers(t, models.EvaluationTypeStudent, 2)),
		response(0, 200, 1, 10, models.EvaluationTypePeer, ratingAnswers(t, models.EvaluationTypePeer, 4)),
	} {
		r := r
		require.NoError(t, fx.evaluations.Create(ctx, &r))
		require.NoError(t, fx.svc.ApplySubmission(ctx, r))
	}

	incremental, err := fx.statsRepo.ListByTeacher(ctx, 1, "2025-S1")
	require.NoError(t, err)

	require.NoError(t, fx.svc.Recompute(ctx, 1, "2025-S1"))
	recomputed, err := fx.statsRepo.ListByTeacher(ctx, 1, "2025-S1")
	require.NoError(t, err)

	require.Len(t, recomputed, len(incremental))
	for i := range incremental {
		require.InDelta(t, incremental[i].StudentScore, recomputed[i].StudentScore, 1e-9)
		require.InDelta(t, incremental[i].PeerScore, recomputed[i].PeerScore, 1e-9)
		require.Equal(t, incremental[i].FinalScore, recomputed[i].FinalScore)
		require.Greater(t, recomputed[i].Version, incremental[i].Version)
	}
}

func TestAggregationRecomputeZeroesStaleCourseRows(t *testing.T) {
	fx := newAggregationFixture(t)
	ctx := context.Background()

	stale := models.StatsCache{TeacherID: 1, Period: "2025-S1", CourseID: 99, StudentScore: 88, StudentCount: 4, FinalScore: 44}
	require.NoError(t, fx.statsRepo.Save(ctx, &stale))

	require.NoError(t, fx.svc.Recompute(ctx, 1, "2025-S1"))

	row, err := fx.statsRepo.Get(ctx, repository.StatsKey{TeacherID: 1, Period: "2025-S1", CourseID: 99})
	require.NoError(t, err)
	require.Zero(t, row.StudentScore)
	require.Zero(t, row.StudentCount)
	require.Zero(t, row.FinalScore)

	rollup, err := fx.statsRepo.Get(ctx, repository.StatsKey{TeacherID: 1, Period: "2025-S1"})
	require.NoError(t, err)
	require.Zero(t, rollup.FinalScore)
}
