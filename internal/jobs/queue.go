// Package jobs runs the asynchronous stats recompute pipeline: a durable
// redis queue with retries, its worker pool, the nightly sweep and the NATS
// request bridge.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/config"
)

// ErrInvalidJob indicates a recompute request without a teacher or period.
var ErrInvalidJob = errors.New("recompute job requires teacher id and period")

// Job is one recompute request for a teacher's period.
type Job struct {
	ID          string    `json:"id"`
	TeacherID   uint      `json:"teacher_id"`
	Period      string    `json:"period"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// Reservation is a job taken off the ready list. raw is the exact payload
// stored in the processing list and is needed to remove it again.
type Reservation struct {
	Job Job
	raw string
}

// Depth reports how many jobs sit in each queue state.
type Depth struct {
	Ready      int64 `json:"ready"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// promoteScript moves every delayed job whose ready time has passed onto the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, job in ipairs(due) do
  redis.call('ZREM', KEYS[1], job)
  redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

// Queue is a redis backed at-least-once job queue. Jobs move from the ready
// list to a processing list while they run, so jobs held by a crashed worker
// can be recovered on restart.
type Queue struct {
	client      *redis.Client
	readyKey    string
	delayedKey  string
	processKey  string
	failedKey   string
	maxAttempts int
	backoffBase time.Duration
	failedKeep  int64
	logger      zerolog.Logger
	now         func() time.Time
}

// NewQueue builds a queue whose keys are prefixed with cfg.Name.
func NewQueue(client *redis.Client, cfg config.QueueConfig, logger zerolog.Logger) *Queue {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = config.DefaultQueueConfig().Name
	}
	prefix := "queue:" + name

	return &Queue{
		client:      client,
		readyKey:    prefix + ":ready",
		delayedKey:  prefix + ":delayed",
		processKey:  prefix + ":processing",
		failedKey:   prefix + ":failed",
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		failedKeep:  cfg.FailedKeep,
		logger:      logger.With().Str("component", "aggregation_queue").Logger(),
		now:         time.Now,
	}
}

// Enqueue schedules a recompute and returns the job id.
func (q *Queue) Enqueue(ctx context.Context, teacherID uint, period string) (string, error) {
	period = strings.TrimSpace(period)
	if teacherID == 0 || period == "" {
		return "", ErrInvalidJob
	}

	job := Job{
		ID:          uuid.NewString(),
		TeacherID:   teacherID,
		Period:      period,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  q.now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.readyKey, payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue recompute job: %w", err)
	}

	q.logger.Debug().Str("job_id", job.ID).Uint("teacher_id", teacherID).Str("period", period).Msg("recompute job enqueued")
	return job.ID, nil
}

// Reserve takes the oldest ready job, promoting due delayed jobs first.
// It returns nil when nothing is ready.
func (q *Queue) Reserve(ctx context.Context) (*Reservation, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.client, []string{q.delayedKey, q.readyKey}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	raw, err := q.client.LMove(ctx, q.readyKey, q.processKey, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Error().Err(err).Str("payload", raw).Msg("dropping malformed job")
		if dropErr := q.deadLetter(ctx, raw, raw); dropErr != nil {
			return nil, dropErr
		}
		return nil, nil
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.maxAttempts
	}

	return &Reservation{Job: job, raw: raw}, nil
}

// Complete acknowledges a finished job.
func (q *Queue) Complete(ctx context.Context, r *Reservation) error {
	return q.client.LRem(ctx, q.processKey, 1, r.raw).Err()
}

// Backoff is the delay before the next try after the given failed attempt.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.backoffBase * time.Duration(1<<uint(attempt-1))
}

// Retry records a failed attempt and parks the job in the delayed set.
func (q *Queue) Retry(ctx context.Context, r *Reservation, attempt int, cause error) (time.Duration, error) {
	job := r.Job
	job.Attempts = attempt
	job.LastError = cause.Error()
	payload, err := json.Marshal(job)
	if err != nil {
		return 0, err
	}

	delay := q.Backoff(attempt)
	readyAt := q.now().Add(delay).UnixMilli()

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processKey, 1, r.raw)
	pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(readyAt), Member: string(payload)})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("schedule retry: %w", err)
	}
	return delay, nil
}

// Fail moves an exhausted job to the capped failed list.
func (q *Queue) Fail(ctx context.Context, r *Reservation, attempt int, cause error) error {
	job := r.Job
	job.Attempts = attempt
	job.LastError = cause.Error()
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.deadLetter(ctx, r.raw, string(payload))
}

func (q *Queue) deadLetter(ctx context.Context, raw, payload string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processKey, 1, raw)
	pipe.LPush(ctx, q.failedKey, payload)
	pipe.LTrim(ctx, q.failedKey, 0, q.failedKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failed job: %w", err)
	}
	return nil
}

// Recover re-queues jobs left in the processing list by a previous process.
// It must run before any worker of this queue starts reserving. The processing
// list is shared, so a restart also re-queues jobs other instances are still
// running; those run twice, which delivery already allows.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		_, err := q.client.LMove(ctx, q.processKey, q.readyKey, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("recover jobs: %w", err)
		}
		recovered++
	}
	if recovered > 0 {
		q.logger.Warn().Int("jobs", recovered).Msg("recovered unfinished recompute jobs")
	}
	return recovered, nil
}

// Depth counts jobs per state.
func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	processing := pipe.LLen(ctx, q.processKey)
	failed := pipe.LLen(ctx, q.failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, err
	}
	return Depth{
		Ready:      ready.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
		Failed:     failed.Val(),
	}, nil
}

// Failed returns the most recent terminally failed jobs, newest first.
func (q *Queue) Failed(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = q.failedKeep
	}
	raws, err := q.client.LRange(ctx, q.failedKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
