package job

import (
	"context"
	"sync"
	"sync/atomic"

	"lichtfeld/config"
	"lichtfeld/logger"
	"lichtfeld/metrics"
	"lichtfeld/models"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most one run at a time into the critical section that owns the
// video slot and the workspace directory.
type Gate struct {
	sem      *semaphore.Weighted
	policy   string
	lifetime context.Context
	held     atomic.Bool
	waiting  atomic.Int64
}

// NewGate creates a gate with the given busy policy (config.BusyWait or config.BusyReject).
// Once lifetime ends the gate admits nobody, queued callers included.
func NewGate(lifetime context.Context, policy string) *Gate {
	return &Gate{sem: semaphore.NewWeighted(1), policy: policy, lifetime: lifetime}
}

// Acquire blocks until the gate is free, or fails with KindBusy when the policy is
// reject and a run is in flight, when ctx ends while queued, or when the server is
// shutting down. The returned release func is safe to call more than once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.lifetime.Err() != nil {
		return nil, shuttingDown(g.lifetime.Err())
	}

	if !g.sem.TryAcquire(1) {
		if g.policy == config.BusyReject {
			logger.Warn("Rejecting request, a run is already in progress")
			return nil, models.NewError(models.KindBusy, "gate.acquire", nil,
				"Another video is being processed, try again later")
		}

		waitCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(g.lifetime, cancel)
		g.waiting.Add(1)
		metrics.RunsWaiting.Inc()
		logger.Info("Workspace busy, waiting for the current run to finish")
		err := g.sem.Acquire(waitCtx, 1)
		g.waiting.Add(-1)
		metrics.RunsWaiting.Dec()
		stop()
		cancel()
		if err != nil {
			if g.lifetime.Err() != nil {
				return nil, shuttingDown(err)
			}
			return nil, models.NewError(models.KindBusy, "gate.acquire", err,
				"Request cancelled while waiting for the workspace")
		}
	}

	// the previous holder may have released because of the shutdown
	if err := g.lifetime.Err(); err != nil {
		g.sem.Release(1)
		return nil, shuttingDown(err)
	}

	g.held.Store(true)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.held.Store(false)
			g.sem.Release(1)
		})
	}, nil
}

func shuttingDown(err error) error {
	return models.NewError(models.KindBusy, "gate.acquire", err, "server shutting down")
}

// Busy reports whether a run currently holds the gate
func (g *Gate) Busy() bool {
	return g.held.Load()
}

// Waiting returns the number of queued requests
func (g *Gate) Waiting() int64 {
	return g.waiting.Load()
}
