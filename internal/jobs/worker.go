package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/noah-isme/teacher-eval-api/internal/config"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/observability"
	"github.com/noah-isme/teacher-eval-api/internal/service"
)

// recoverAttempts bounds how often Run retries Recover before giving up.
const recoverAttempts = 5

// Recomputer rebuilds the stats of a teacher's period.
type Recomputer interface {
	Recompute(ctx context.Context, teacherID uint, period string) error
}

// Worker drains the recompute queue with bounded concurrency and start rate.
type Worker struct {
	queue       *Queue
	recomputer  Recomputer
	audit       service.AuditRecorder
	limiter     *rate.Limiter
	concurrency int
	poll        time.Duration
	logger      zerolog.Logger
}

// NewWorker builds a worker that starts at most cfg.RateLimit jobs per cfg.RateWindow.
func NewWorker(queue *Queue, recomputer Recomputer, audit service.AuditRecorder, cfg config.QueueConfig, logger zerolog.Logger) *Worker {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateWindow/time.Duration(cfg.RateLimit)), cfg.RateLimit)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = config.DefaultQueueConfig().PollInterval
	}

	return &Worker{
		queue:       queue,
		recomputer:  recomputer,
		audit:       audit,
		limiter:     limiter,
		concurrency: concurrency,
		poll:        poll,
		logger:      logger.With().Str("component", "aggregation_worker").Logger(),
	}
}

// Run recovers abandoned jobs, then polls the queue until ctx is cancelled.
// It returns an error only when recovery keeps failing or a loop dies.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.recoverJobs(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		slot := i
		group.Go(func() error {
			return w.loop(ctx, slot)
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) recoverJobs(ctx context.Context) error {
	delay := w.poll
	for attempt := 1; ; attempt++ {
		_, err := w.queue.Recover(ctx)
		if err == nil {
			return nil
		}
		if attempt >= recoverAttempts {
			return err
		}
		w.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("queue recovery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Int("slot", slot).Msg("recompute queue error")
		}
		if processed {
			continue
		}

		if slot == 0 {
			w.reportDepth(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessNext runs at most one job attempt and reports whether a job was taken.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	reservation, err := w.queue.Reserve(ctx)
	if err != nil || reservation == nil {
		return false, err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		// Leave the job in the processing list; Recover picks it up on restart.
		return true, err
	}

	job := reservation.Job
	attempt := job.Attempts + 1
	log := w.logger.With().
		Str("job_id", job.ID).
		Uint("teacher_id", job.TeacherID).
		Str("period", job.Period).
		Int("attempt", attempt).
		Logger()

	started := time.Now()
	runErr := w.recomputer.Recompute(ctx, job.TeacherID, job.Period)
	elapsed := time.Since(started).Seconds()

	if runErr == nil {
		observability.AggregationJobs().WithLabelValues("succeeded").Inc()
		observability.AggregationDuration().WithLabelValues("succeeded").Observe(elapsed)
		log.Info().Msg("recompute job completed")
		return true, w.queue.Complete(ctx, reservation)
	}

	log.Error().Err(runErr).Msg("recompute job attempt failed")
	observability.AggregationDuration().WithLabelValues("failed").Observe(elapsed)

	if attempt < job.MaxAttempts {
		delay, err := w.queue.Retry(ctx, reservation, attempt, runErr)
		if err != nil {
			return true, err
		}
		observability.AggregationJobs().WithLabelValues("retried").Inc()
		log.Warn().Dur("backoff", delay).Msg("recompute job scheduled for retry")
		return true, nil
	}

	observability.AggregationJobs().WithLabelValues("failed").Inc()
	if err := w.queue.Fail(ctx, reservation, attempt, runErr); err != nil {
		return true, err
	}
	w.recordFailure(ctx, job, runErr)
	return true, nil
}

func (w *Worker) recordFailure(ctx context.Context, job Job, cause error) {
	if w.audit == nil {
		return
	}
	_, err := w.audit.Record(ctx, service.AuditEntry{
		Action:     service.AuditActionAggregationJobFailure,
		Level:      models.AuditLevelError,
		EntityType: "aggregation_job",
		Details: map[string]interface{}{
			"jobId":     job.ID,
			"teacherId": job.TeacherID,
			"period":    job.Period,
			"attempts":  job.MaxAttempts,
			"error":     cause.Error(),
		},
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to audit recompute job failure")
	}
}

func (w *Worker) reportDepth(ctx context.Context) {
	depth, err := w.queue.Depth(ctx)
	if err != nil {
		return
	}
	gauge := observability.AggregationQueueDepth()
	gauge.WithLabelValues("ready").Set(float64(depth.Ready))
	gauge.WithLabelValues("delayed").Set(float64(depth.Delayed))
	gauge.WithLabelValues("processing").Set(float64(depth.Processing))
	gauge.WithLabelValues("failed").Set(float64(depth.Failed))
}
