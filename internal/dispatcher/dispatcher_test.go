package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func TestPoolSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cpus, limit, want int
	}{
		{cpus: 1, limit: 20, want: 1},
		{cpus: 2, limit: 20, want: 1},
		{cpus: 8, limit: 20, want: 4},
		{cpus: 64, limit: 20, want: 20},
		{cpus: 64, limit: 0, want: 32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PoolSize(tt.cpus, tt.limit), "cpus=%d limit=%d", tt.cpus, tt.limit)
	}
}

func TestRunExecutesEveryTaskOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[string]int)
	tasks := make([]Task, 50)
	for i := range tasks {
		key := fmt.Sprintf("task-%d", i)
		tasks[i] = Task{Key: key, Run: func(context.Context) error {
			mu.Lock()
			seen[key]++
			mu.Unlock()
			return nil
		}}
	}

	require.NoError(t, New(4, zap.NewNop()).Run(context.Background(), tasks))
	assert.Len(t, seen, 50)
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak int32
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = Task{Key: fmt.Sprint(i), Run: func(context.Context) error {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}}
	}

	require.NoError(t, New(3, nil).Run(context.Background(), tasks))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	var done atomic.Int32
	boom := errors.New("boom")
	tasks := []Task{
		{Key: "andorra", Run: func(context.Context) error { return boom }},
		{Key: "malta", Run: func(context.Context) error { done.Add(1); return nil }},
		{Key: "monaco", Run: func(context.Context) error { panic("bad extract") }},
		{Key: "cyprus", Run: func(context.Context) error { done.Add(1); return nil }},
	}

	err := New(2, zap.NewNop()).Run(context.Background(), tasks)
	require.Error(t, err)
	assert.Equal(t, int32(2), done.Load(), "healthy tasks still run")

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "andorra")
	assert.Contains(t, err.Error(), "monaco: panic: bad extract")
}

func TestRunStopsDispatchOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var started atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{Key: fmt.Sprint(i), Run: func(context.Context) error {
			if started.Add(1) == 1 {
				cancel()
			}
			return nil
		}}
	}

	err := New(1, zap.NewNop()).Run(ctx, tasks)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), started.Load(), "no task starts after cancellation")
}
