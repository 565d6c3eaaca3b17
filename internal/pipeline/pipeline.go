// Package pipeline drives claim automation from the claims topic. Each batch
// of submissions is decided and published before any offset is committed.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a claim submission into a published decision.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Options sizes the loop.
type Options struct {
	BatchSize int
	// Concurrency caps claims decided in parallel within one batch.
	Concurrency int
	Clock       clockwork.Clock
}

// Pipeline orchestrates the extract-decide-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	published   atomic.Bool
	running     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once the loop is running. An idle claims topic
// is not a readiness failure.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("claim pipeline is not running")
	}
	return nil
}

// Processed reports whether at least one batch of decisions was published.
func (p *Pipeline) Processed() bool {
	return p.published.Load()
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.opts.BatchSize, "concurrency", p.opts.Concurrency)
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	b := backoff{clock: p.opts.Clock, next: minBackoff}
	for ctx.Err() == nil {
		if !p.cycle(ctx, &b) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// cycle runs one extract-decide-load round. Returns false if the pipeline
// should stop.
func (p *Pipeline) cycle(ctx context.Context, b *backoff) bool {
	start := p.opts.Clock.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.opts.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return b.wait(ctx)
	}
	if len(batch) == 0 {
		return true
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	b.reset()

	decided := p.decide(ctx, batch)
	if len(decided) > 0 {
		if !p.publish(ctx, decided, b) {
			return false
		}
		p.metrics.MessagesProduced.Add(float64(len(decided)))
	}

	// Offsets are committed in message order, rejected submissions included,
	// only once every decision of the batch is published.
	for _, raw := range batch {
		p.commit(ctx, raw)
	}
	if len(decided) == 0 {
		return true
	}

	p.metrics.BatchProcessingDuration.Observe(p.opts.Clock.Since(start).Seconds())
	p.published.Store(true)
	return true
}

// decide transforms every message of the batch, at most Concurrency at a
// time, and returns the decisions in message order. Rejected submissions are
// logged and dropped.
func (p *Pipeline) decide(ctx context.Context, batch []domain.RawEvent) []domain.OutputEvent {
	results := make([]domain.OutputEvent, len(batch))
	ok := make([]bool, len(batch))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, raw := range batch {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, raw)
			if err != nil {
				p.logger.Warn("claim rejected, skipping message",
					"error", err,
					"topic", raw.Topic,
					"partition", raw.Partition,
					"offset", raw.Offset,
				)
				p.metrics.TransformErrors.Inc()
				return nil
			}
			results[i], ok[i] = out, true
			return nil
		})
	}
	_ = g.Wait()

	decided := make([]domain.OutputEvent, 0, len(batch))
	for i := range batch {
		if ok[i] {
			decided = append(decided, results[i])
		}
	}
	return decided
}

// publish retries the load with backoff until it succeeds. Returns false if
// the pipeline stopped first; nothing of the batch is committed then, so a
// restart redelivers it and every claim is decided again from its message.
func (p *Pipeline) publish(ctx context.Context, decided []domain.OutputEvent, b *backoff) bool {
	for {
		err := p.loader.LoadBatch(ctx, decided)
		if err == nil {
			return true
		}
		p.logger.Error("publish decisions failed", "error", err, "batch_size", len(decided))
		if !b.wait(ctx) {
			return false
		}
	}
}

// commit commits the message offset if a commit function is available.
func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff doubles from minBackoff up to maxBackoff between failed rounds.
type backoff struct {
	clock clockwork.Clock
	next  time.Duration
}

func (b *backoff) reset() { b.next = minBackoff }

// wait sleeps for the current delay and doubles it. Returns false if ctx
// ended first.
func (b *backoff) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-b.clock.After(b.next):
	}
	b.next = min(b.next*2, maxBackoff)
	return true
}
