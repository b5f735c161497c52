package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group of all reconcilers.
	ConsumerGroup = "reconcilers"

	DefaultBatchSize       = 50
	DefaultBlockTimeout    = 2 * time.Second
	DefaultMaxAttempts     = 5
	DefaultClaimInterval   = 15 * time.Second
	DefaultClaimIdle       = time.Minute
	DefaultMetricsInterval = 5 * time.Second
)

// Options tunes a Worker. Zero values take the defaults.
type Options struct {
	BatchSize       int64
	BlockTimeout    time.Duration
	MaxAttempts     int
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
	// Backoff overrides NextRetryDelay.
	Backoff func(attempt int) time.Duration
}

// Stats summarizes one batch.
type Stats struct {
	Read         int `json:"read"`
	Repaired     int `json:"repaired"`
	Consistent   int `json:"already_consistent"`
	Skipped      int `json:"skipped"`
	DeadLettered int `json:"dead_lettered"`
	Pending      int `json:"pending"`
}

// Worker repairs drift read from StreamKey.
type Worker struct {
	redis      *redis.Client
	proc       *processor
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	opts       Options

	// batchMu serializes RunOnce between Run and on-demand callers, and
	// guards the claim and metrics bookkeeping below.
	batchMu      sync.Mutex
	claimStartID string
	lastClaim    time.Time
	lastMetrics  time.Time

	mu       sync.Mutex
	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWorker creates a reconciler worker.
func NewWorker(client *redis.Client, repairer Repairer, markers Markers, logger *slog.Logger, consumerID string, recorder metrics.Recorder, opts Options) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = DefaultBlockTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = DefaultClaimInterval
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = DefaultClaimIdle
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = DefaultMetricsInterval
	}
	if opts.Backoff == nil {
		opts.Backoff = NextRetryDelay
	}

	logger = logger.With("component", "reconcile.worker", "consumer_id", consumerID)
	return &Worker{
		redis: client,
		proc: &processor{
			repairer:    repairer,
			markers:     markers,
			logger:      logger,
			maxAttempts: opts.MaxAttempts,
			backoff:     opts.Backoff,
		},
		logger:       logger,
		metrics:      recorder,
		consumerID:   consumerID,
		opts:         opts,
		claimStartID: "0-0",
	}
}

// Run processes batches until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("reconciler started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("reconciler draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("reconciler stopping")
			return nil
		default:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("reconcile batch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Shutdown stops Run after the entry in flight and waits for it. It
// matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
		w.logger.Info("reconciler shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("reconciler shutdown timed out")
		return ctx.Err()
	}
}

// EnsureGroup creates the stream and consumer group if missing.
func (w *Worker) EnsureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// RunOnce reclaims or reads one batch and processes it. The group must
// exist; see EnsureGroup. Concurrent calls run one batch at a time.
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending entries", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return Stats{}, err
		}
	}

	stats := Stats{Read: len(messages)}
	for _, msg := range messages {
		dec := w.proc.handle(ctx, msg.Values["payload"])
		w.apply(ctx, msg, dec, &stats)
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

func (w *Worker) apply(ctx context.Context, msg redis.XMessage, dec decision, stats *Stats) {
	if dec.Pending {
		stats.Pending++
		return
	}

	switch {
	case dec.Skipped:
		stats.Skipped++
	case dec.Outcome == model.ReconcileRepaired:
		stats.Repaired++
	case dec.Outcome == model.ReconcileAlreadyConsistent, dec.Outcome == model.ReconcileBookMissing:
		stats.Consistent++
	}

	if dec.Outcome != "" && !dec.Skipped {
		w.logger.Info("drift reconciled",
			slog.String("drift_id", dec.Drift.ID),
			slog.String("kind", string(dec.Drift.Kind)),
			slog.String("book_id", dec.Drift.BookID),
			slog.String("outcome", string(dec.Outcome)),
		)
	}

	if dec.DeadLetter != "" {
		if err := w.deadLetter(ctx, msg, dec.DeadLetter, dec.Detail); err != nil {
			// Leave it pending rather than lose it.
			w.logger.Error("failed to dead-letter entry", "message_id", msg.ID, "error", err)
			stats.Pending++
			return
		}
		stats.DeadLettered++
	}

	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, msg.ID).Err(); err != nil {
		w.logger.Error("xack failed", "message_id", msg.ID, "error", err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) error {
	w.logger.Warn("dead-lettering drift entry",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)
	w.metrics.IncDriftReconciled("dead_lettered")

	return w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: maxDeadLetterLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.opts.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.opts.ClaimIdle,
		Start:    w.claimStartID,
		Count:    w.opts.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    w.opts.BatchSize,
		Block:    w.opts.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.opts.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := QueueDepth(ctx, w.redis)
	if err != nil {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	w.metrics.SetDriftQueueDepth(depth)
}

// QueueDepth returns the group's backlog.
func (w *Worker) QueueDepth(ctx context.Context) (int64, error) {
	return QueueDepth(ctx, w.redis)
}

// QueueDepth returns pending plus undelivered entries of the group.
func QueueDepth(ctx context.Context, client *redis.Client) (int64, error) {
	groups, err := client.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			return g.Pending + g.Lag, nil
		}
	}
	return 0, nil
}
