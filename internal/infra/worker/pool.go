package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"course-ledger/internal/infra/logging"
)

var (
	ErrNilTask   = errors.New("nil task")
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Task
	quit     chan struct{}
	stopOnce sync.Once
	n        int
	log      *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.drain(ctx)
					return
				case <-p.quit:
					p.drain(ctx)
					return
				case task := <-p.jobs:
					if err := task(ctx); err != nil {
						p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
					}
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for in-flight tasks. Tasks still queued
// are invoked with a cancelled context so whoever waits on them is released.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
	p.drain(context.Background())
}

func (p *Pool) drain(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	cancel()
	for {
		select {
		case task := <-p.jobs:
			_ = task(ctx)
		default:
			return
		}
	}
}

// Submit enqueues without blocking.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait blocks until the task is queued, ctx ends or the pool stops.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- task:
		return nil
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
