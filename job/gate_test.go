package job

import (
	"context"
	"testing"
	"time"

	"lichtfeld/config"
	"lichtfeld/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateRejectPolicy(t *testing.T) {
	g := NewGate(context.Background(), config.BusyReject)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, g.Busy())

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, models.ErrBusy)

	release()
	release() // second call is a no-op
	assert.False(t, g.Busy())

	release, err = g.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestGateWaitPolicyQueues(t *testing.T) {
	g := NewGate(context.Background(), config.BusyWait)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		next, err := g.Acquire(context.Background())
		if err == nil {
			acquired <- next
		}
	}()

	require.Eventually(t, func() bool { return g.Waiting() == 1 }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second caller must wait while the gate is held")
	default:
	}

	release()
	select {
	case next := <-acquired:
		assert.True(t, g.Busy())
		next()
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller was not admitted after release")
	}
	assert.Equal(t, int64(0), g.Waiting())
}

func TestGateWaitAbandoned(t *testing.T) {
	g := NewGate(context.Background(), config.BusyWait)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, models.ErrBusy)
	assert.Equal(t, int64(0), g.Waiting())
}

func TestGateClosedAfterShutdown(t *testing.T) {
	lifetime, shutdown := context.WithCancel(context.Background())
	g := NewGate(lifetime, config.BusyWait)
	shutdown()

	_, err := g.Acquire(context.Background())
	require.ErrorIs(t, err, models.ErrBusy)
	assert.Contains(t, err.Error(), "server shutting down")
	assert.False(t, g.Busy())
}

func TestGateShutdownReleasesQueuedCaller(t *testing.T) {
	lifetime, shutdown := context.WithCancel(context.Background())
	defer shutdown()
	g := NewGate(lifetime, config.BusyWait)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, 2*time.Second, 5*time.Millisecond)

	shutdown()
	release()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, models.ErrBusy)
		assert.Contains(t, err.Error(), "server shutting down")
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller was not turned away")
	}
	assert.False(t, g.Busy())
}
