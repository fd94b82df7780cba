package jobs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/service"
)

const bridgeQueueGroup = "aggregation-workers"

// RecomputeRequest is the NATS payload asking for a recompute.
type RecomputeRequest struct {
	TeacherID uint   `json:"teacher_id"`
	Period    string `json:"period"`
}

type recomputeReply struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Bridge turns NATS recompute requests into queued jobs.
type Bridge struct {
	conn     *nats.Conn
	subject  string
	enqueuer service.RecomputeEnqueuer
	logger   zerolog.Logger
}

// NewBridge listens on <channelBase>.aggregation.requests.
func NewBridge(conn *nats.Conn, channelBase string, enqueuer service.RecomputeEnqueuer, logger zerolog.Logger) *Bridge {
	return &Bridge{
		conn:     conn,
		subject:  strings.ReplaceAll(channelBase, ":", ".") + ".aggregation.requests",
		enqueuer: enqueuer,
		logger:   logger.With().Str("component", "aggregation_bridge").Logger(),
	}
}

// Start subscribes in a queue group and drains the subscription when ctx ends.
// It is a no-op without a NATS connection.
func (b *Bridge) Start(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}

	sub, err := b.conn.QueueSubscribe(b.subject, bridgeQueueGroup, func(msg *nats.Msg) {
		reply := b.handle(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		payload, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := msg.Respond(payload); err != nil {
			b.logger.Warn().Err(err).Msg("failed to reply to recompute request")
		}
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain recompute request subscription")
		}
	}()

	b.logger.Info().Str("subject", b.subject).Msg("listening for recompute requests")
	return nil
}

func (b *Bridge) handle(ctx context.Context, data []byte) recomputeReply {
	var req RecomputeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		b.logger.Warn().Err(err).Msg("invalid recompute request payload")
		return recomputeReply{Error: "invalid payload"}
	}

	jobID, err := b.enqueuer.Enqueue(ctx, req.TeacherID, req.Period)
	if err != nil {
		b.logger.Warn().Err(err).Uint("teacher_id", req.TeacherID).Str("period", req.Period).Msg("failed to enqueue recompute request")
		return recomputeReply{Error: err.Error()}
	}
	return recomputeReply{JobID: jobID}
}
