package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

func newPool(t *testing.T, cfg PoolConfig) (*WorkerPool, *observability.Collector) {
	t.Helper()
	metrics := observability.NewCollector("test")
	p := NewWorkerPool(context.Background(), cfg, metrics, zap.NewNop())
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, metrics
}

func TestWorkerPool_RunsTasksAndCallbacks(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 3, QueueSize: 10})

	var wg sync.WaitGroup
	var ran atomic.Int32
	results := make(map[string]error)
	var mu sync.Mutex

	for i, fail := range []bool{false, true, false, false} {
		fail := fail
		wg.Add(1)
		err := p.Submit(context.Background(), ports.Task{
			ID: string(rune('a' + i)),
			Execute: func(ctx context.Context) error {
				ran.Add(1)
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			Callback: func(id string, err error) {
				mu.Lock()
				results[id] = err
				mu.Unlock()
				wg.Done()
			},
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(4), ran.Load())
	assert.NoError(t, results["a"])
	assert.EqualError(t, results["b"], "boom")
	stats := p.Stats()
	assert.Equal(t, 4, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.True(t, stats.Running)
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	p, metrics := newPool(t, PoolConfig{Workers: 1, QueueSize: 2})

	errs := make(chan error, 2)
	callback := func(_ string, err error) { errs <- err }

	require.NoError(t, p.Submit(context.Background(), ports.Task{
		ID:       "panics",
		Execute:  func(context.Context) error { panic("bad frame") },
		Callback: callback,
	}))
	require.NoError(t, p.Submit(context.Background(), ports.Task{
		ID:       "after",
		Execute:  func(context.Context) error { return nil },
		Callback: callback,
	}))

	first := <-errs
	require.Error(t, first)
	assert.Contains(t, first.Error(), "bad frame")
	assert.NoError(t, <-errs)
	assert.Equal(t, 1, p.Stats().Panics)
	assert.Equal(t, float64(1), counterValue(t, metrics))
}

func TestWorkerPool_SubmitValidation(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 1, QueueSize: 1})

	err := p.Submit(context.Background(), ports.Task{ID: "empty"})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 1, QueueSize: 1})
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), ports.Task{Execute: func(context.Context) error { return nil }})

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
}

func TestWorkerPool_ShutdownDrainsQueue(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 1, QueueSize: 5})

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), ports.Task{
			Execute: func(context.Context) error {
				time.Sleep(5 * time.Millisecond)
				ran.Add(1)
				return nil
			},
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
	assert.False(t, p.Stats().Running)
	assert.True(t, p.Stats().Closed)
}

func TestWorkerPool_ShutdownDeadlineCancelsTasks(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), ports.Task{
		Execute: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)

	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTimeout))
}

func TestWorkerPool_FullQueueWaitsForContext(t *testing.T) {
	p, _ := newPool(t, PoolConfig{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, p.Submit(context.Background(), ports.Task{
		Execute: func(ctx context.Context) error {
			close(started)
			return block(ctx)
		},
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), ports.Task{Execute: block}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, ports.Task{Execute: block})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func counterValue(t *testing.T, m *observability.Collector) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.TaskPanics.Write(&out))
	return out.GetCounter().GetValue()
}
