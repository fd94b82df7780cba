package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/service"
)

const sweepTimeout = 5 * time.Minute

// Scheduler enqueues a recompute for every teacher of every closed window.
type Scheduler struct {
	windows  repository.ScheduleWindowRepository
	users    repository.UserRepository
	enqueuer service.RecomputeEnqueuer
	cron     *cron.Cron
	spec     string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScheduler builds the nightly sweep. spec is a standard five field cron
// expression evaluated in UTC.
func NewScheduler(windows repository.ScheduleWindowRepository, users repository.UserRepository, enqueuer service.RecomputeEnqueuer, spec string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		windows:  windows,
		users:    users,
		enqueuer: enqueuer,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		spec:     spec,
		logger:   logger.With().Str("component", "aggregation_scheduler").Logger(),
		now:      time.Now,
	}
}

// Start registers the sweep with cron and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunNightlySweep); err != nil {
		return fmt.Errorf("schedule nightly sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Msg("nightly sweep scheduled")
	return nil
}

// Stop halts the cron loop and returns a context done once a running sweep finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNightlySweep is the cron entry point.
func (s *Scheduler) RunNightlySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("enqueued", count).Msg("nightly sweep finished with errors")
		return
	}
	s.logger.Info().Int("enqueued", count).Msg("nightly sweep finished")
}

// Sweep enqueues one job per (teacher, period) for windows that ended by now.
// Enqueue failures do not stop the sweep; they are joined into the result.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	windows, err := s.windows.ListEnded(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list ended windows: %w", err)
	}
	if len(windows) == 0 {
		return 0, nil
	}

	teachers, err := s.users.List(ctx, models.RoleTeacher)
	if err != nil {
		return 0, fmt.Errorf("list teachers: %w", err)
	}

	var (
		enqueued int
		errs     []error
	)
	for _, window := range windows {
		for _, teacher := range teachers {
			if _, err := s.enqueuer.Enqueue(ctx, teacher.ID, window.Period); err != nil {
				errs = append(errs, fmt.Errorf("teacher %d period %s: %w", teacher.ID, window.Period, err))
				continue
			}
			enqueued++
		}
	}

	return enqueued, errors.Join(errs...)
}
