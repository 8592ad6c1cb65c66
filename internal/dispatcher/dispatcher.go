// Package dispatcher fans tasks out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/geodata/internal/metrics"
)

// MaxWorkers caps the default pool size.
const MaxWorkers = 20

// Task is one unit of work identified by Key.
type Task struct {
	Key string
	Run func(ctx context.Context) error
}

// Dispatcher runs tasks on a fixed number of workers.
type Dispatcher struct {
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given worker count (at least one).
func New(workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{workers: workers, logger: logger}
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// PoolSize returns half the CPUs capped at limit, and never less than one.
func PoolSize(numCPU, limit int) int {
	n := numCPU / 2
	if limit > 0 && n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run executes every task and blocks until they finish. A failing task does
// not stop the others; all failures are returned joined. Once ctx is done no
// further tasks are started and the context error is included.
func (d *Dispatcher) Run(ctx context.Context, tasks []Task) error {
	queue := make(chan Task)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					continue
				}
				if err := d.runTask(ctx, id, task); err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
			}
		}(i)
	}

dispatch:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- task:
		}
	}
	close(queue)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("dispatch canceled: %w", err))
	}
	return errs
}

func (d *Dispatcher) runTask(ctx context.Context, worker int, task Task) (err error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", task.Key, r)
		}
		if err != nil {
			d.logger.Warn("task failed", zap.Int("worker", worker), zap.String("task", task.Key), zap.Error(err))
		}
	}()

	d.logger.Debug("task started", zap.Int("worker", worker), zap.String("task", task.Key))
	if err := task.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", task.Key, err)
	}
	return nil
}
