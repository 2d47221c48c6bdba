package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"pestctl/pkg/logger"
)

// Relay drains the transactional outbox. *postgres.OutboxRelay implements it.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, retention time.Duration) (int64, error)
}

// ExpirySweeper flags expired batches. *batch.Store implements it.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// IdempotencyCleaner removes stale idempotency keys.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Config controls loop intervals.
type Config struct {
	OutboxInterval      time.Duration
	OutboxRetention     time.Duration
	ExpirySweepInterval time.Duration
	HousekeepingEvery   time.Duration
}

// Deps are the jobs run by the worker.
type Deps struct {
	Relay       Relay
	Batches     ExpirySweeper
	Idempotency IdempotencyCleaner
}

// Worker runs the background loops until its context is cancelled.
type Worker struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

// NewWorker creates a worker.
func NewWorker(cfg Config, deps Deps, log *logger.Logger) *Worker {
	return &Worker{
		cfg:  cfg,
		deps: deps,
		log:  log.WithComponent("worker"),
		now:  time.Now,
	}
}

// Run blocks until ctx is done. Job failures are logged and retried on the
// next tick; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.every(ctx, w.cfg.OutboxInterval, w.relayOutbox) })
	g.Go(func() error { return w.every(ctx, w.cfg.ExpirySweepInterval, w.sweepExpired) })
	g.Go(func() error { return w.every(ctx, w.cfg.HousekeepingEvery, w.housekeeping) })

	return g.Wait()
}

func (w *Worker) every(ctx context.Context, interval time.Duration, job func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			job(ctx)
		}
	}
}

// relayOutbox keeps draining while full batches come back.
func (w *Worker) relayOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.deps.Relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox relay failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		w.log.Debugw("outbox messages relayed", "count", n)
	}
}

func (w *Worker) sweepExpired(ctx context.Context) {
	n, err := w.deps.Batches.SweepExpired(ctx, w.now().UTC())
	if err != nil {
		w.log.Errorw("expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("batches marked expired", "count", n)
	}
}

func (w *Worker) housekeeping(ctx context.Context) {
	if n, err := w.deps.Relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("outbox DLQ move failed", "error", err)
	} else if n > 0 {
		w.log.Warnw("outbox messages moved to DLQ", "count", n)
	}

	if n, err := w.deps.Relay.PurgePublished(ctx, w.cfg.OutboxRetention); err != nil {
		w.log.Errorw("outbox purge failed", "error", err)
	} else if n > 0 {
		w.log.Infow("published outbox messages purged", "count", n)
	}

	if w.deps.Idempotency == nil {
		return
	}
	if n, err := w.deps.Idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
	} else if n > 0 {
		w.log.Infow("expired idempotency keys removed", "count", n)
	}
}
