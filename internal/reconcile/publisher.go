package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
)

const (
	// StreamKey is the Redis stream drift is published to.
	StreamKey = "stream:lending_drift"

	// DeadLetterStreamKey holds entries the worker gave up on.
	DeadLetterStreamKey = "stream:lending_drift:dlq"

	// MaxStreamLen is the approximate cap of StreamKey.
	MaxStreamLen = 100000

	maxDeadLetterLen = 10000
)

// Publisher appends drift to the stream. It implements
// lending.DriftRecorder.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a drift publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "reconcile.publisher"),
		metrics: recorder,
	}
}

// RecordDrift publishes d synchronously. A failure is counted as dropped
// and returned so the caller can log the drift in full.
func (p *Publisher) RecordDrift(ctx context.Context, d model.Drift) error {
	payload, err := encodeDrift(d)
	if err != nil {
		p.metrics.IncDriftPublished("dropped")
		return err
	}

	streamID, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		p.metrics.IncDriftPublished("dropped")
		return fmt.Errorf("xadd: %w", err)
	}

	p.metrics.IncDriftPublished("success")
	p.logger.Debug("drift published",
		slog.String("drift_id", d.ID),
		slog.String("kind", string(d.Kind)),
		slog.String("stream_id", streamID),
	)
	return nil
}
