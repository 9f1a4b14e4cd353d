package pipeline

import (
	"context"
	"log"
	"time"

	"solana-trade-feed/internal/candles"
	"solana-trade-feed/internal/feed"
)

// RunnerConfig controls the ingest loop cadence.
type RunnerConfig struct {
	// DrainInterval is the pause between drain passes.
	DrainInterval time.Duration
	// DrainBackoffMax caps the exponential backoff applied after a
	// failed drain.
	DrainBackoffMax time.Duration
	// AggregateInterval is the pause between aggregation runs. Zero
	// disables in-process aggregation.
	AggregateInterval time.Duration
	// ShutdownTimeout bounds the final queue drain at shutdown.
	ShutdownTimeout time.Duration
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DrainInterval:     200 * time.Millisecond,
		DrainBackoffMax:   10 * time.Second,
		AggregateInterval: 30 * time.Second,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Runner owns the ingest loop: it starts the feed client, drains the
// queue on a cadence and runs aggregation on its own cadence. On
// shutdown the connection is closed first, so no new events arrive,
// then the queue is drained to empty before returning.
type Runner struct {
	cfg        RunnerConfig
	client     *feed.Client
	processor  *Processor
	aggregator *candles.Aggregator // optional, nil disables
	queue      *feed.EventQueue
	logger     *log.Logger
}

// NewRunner creates a Runner. aggregator may be nil.
func NewRunner(
	cfg RunnerConfig,
	client *feed.Client,
	processor *Processor,
	aggregator *candles.Aggregator,
	queue *feed.EventQueue,
	logger *log.Logger,
) *Runner {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 200 * time.Millisecond
	}
	if cfg.DrainBackoffMax < cfg.DrainInterval {
		cfg.DrainBackoffMax = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		cfg:        cfg,
		client:     client,
		processor:  processor,
		aggregator: aggregator,
		queue:      queue,
		logger:     logger,
	}
}

// Run blocks until ctx is canceled, then performs the shutdown drain.
func (r *Runner) Run(ctx context.Context) error {
	r.client.Start(ctx)

	drainTimer := time.NewTimer(r.cfg.DrainInterval)
	defer drainTimer.Stop()

	var aggCh <-chan time.Time
	if r.aggregator != nil && r.cfg.AggregateInterval > 0 {
		aggTicker := time.NewTicker(r.cfg.AggregateInterval)
		defer aggTicker.Stop()
		aggCh = aggTicker.C
	}

	backoff := r.cfg.DrainInterval

	for {
		select {
		case <-ctx.Done():
			return r.shutdown()

		case <-drainTimer.C:
			if _, err := r.processor.Drain(ctx); err != nil {
				r.logger.Printf("Drain failed, backing off %s: %v", backoff, err)
				drainTimer.Reset(backoff)
				backoff *= 2
				if backoff > r.cfg.DrainBackoffMax {
					backoff = r.cfg.DrainBackoffMax
				}
			} else {
				backoff = r.cfg.DrainInterval
				drainTimer.Reset(r.cfg.DrainInterval)
			}

		case <-aggCh:
			if err := r.aggregator.Run(ctx); err != nil {
				r.logger.Printf("Aggregation run finished with errors: %v", err)
			}
		}
	}
}

// shutdown closes the feed connection, then drains whatever the queue
// still holds under a fresh bounded context.
func (r *Runner) shutdown() error {
	r.logger.Printf("Shutting down: closing feed connection")
	r.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	for r.queue.Len() > 0 {
		if ctx.Err() != nil {
			r.logger.Printf("Shutdown drain timed out with %d events queued", r.queue.Len())
			return ctx.Err()
		}
		if _, err := r.processor.Drain(ctx); err != nil {
			r.logger.Printf("Shutdown drain failed with %d events queued: %v", r.queue.Len(), err)
			return err
		}
	}

	r.logger.Printf("Shutdown complete, queue empty")
	return nil
}
