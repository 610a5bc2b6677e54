package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/worker"
)

func TestBatchWorker_RunsJobsInOrder(t *testing.T) {
	w := worker.NewBatchWorker(8, time.Second, nil)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 5 {
		require.NoError(t, w.Submit(func(ctx context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	assert.Equal(t, 5, w.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBatchWorker_QueueFull(t *testing.T) {
	w := worker.NewBatchWorker(1, 0, nil)

	require.NoError(t, w.Submit(func(context.Context) {}))
	assert.ErrorIs(t, w.Submit(func(context.Context) {}), worker.ErrQueueFull)
}

func TestBatchWorker_JobDeadline(t *testing.T) {
	w := worker.NewBatchWorker(1, 20*time.Millisecond, nil)
	done := make(chan error, 1)
	require.NoError(t, w.Submit(func(ctx context.Context) {
		<-ctx.Done()
		done <- ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("job never saw its deadline")
	}
}

func TestBatchWorker_SurvivesPanicAndStops(t *testing.T) {
	w := worker.NewBatchWorker(4, 0, nil)
	ran := make(chan struct{})
	require.NoError(t, w.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, w.Submit(func(context.Context) { close(ran) }))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queue stalled after a panic")
	}

	cancel()
	<-stopped
	assert.ErrorIs(t, w.Submit(func(context.Context) {}), worker.ErrWorkerStopped)
}
