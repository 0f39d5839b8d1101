package relay

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "smsrelay/pkg/logx"
)

// Runner executes detached background work: anything that must not block
// the response path (liveness refresh, notification delivery, command
// execution). Delivery is at-most-once-effort: tasks are dropped when the
// queue is full and abandoned at shutdown once the drain grace expires.
type Runner struct {
	log logx.Logger

	mu      sync.Mutex
	queue   chan task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers int

	dropped atomic.Uint64
}

type task struct {
	name string
	fn   func(ctx context.Context)
}

func NewRunner(workers, queueSize int, log logx.Logger) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{log: log, workers: workers, queue: make(chan task, queueSize)}
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		idx := i
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.worker(runCtx, idx)
		}()
	}
}

func (r *Runner) worker(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			r.run(ctx, idx, t)
		}
	}
}

func (r *Runner) run(ctx context.Context, idx int, t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in background task",
				logx.String("task", t.name), logx.Int("worker", idx),
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	t.fn(ctx)
}

// Go schedules fn after the caller's response is sent. Never blocks: when
// the queue is full the task is dropped and counted.
func (r *Runner) Go(name string, fn func(ctx context.Context)) bool {
	select {
	case r.queue <- task{name: name, fn: fn}:
		return true
	default:
		n := r.dropped.Add(1)
		r.log.Warn("background task dropped (queue full)",
			logx.String("task", name), logx.Uint64("dropped_total", n))
		return false
	}
}

// Stop drains the queue best-effort until ctx expires, then abandons the
// remainder.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}

	// Give queued work a short drain window.
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	for {
		if len(r.queue) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			goto done
		case <-deadline.C:
			goto done
		case <-time.After(50 * time.Millisecond):
		}
	}
done:
	cancel()
	r.wg.Wait()
	if n := r.dropped.Load(); n > 0 {
		r.log.Info("runner stopped", logx.Uint64("dropped_total", n))
	}
}
