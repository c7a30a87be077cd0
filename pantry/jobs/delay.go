// jobs/delay.go
package jobs

import (
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Delayer runs one-shot tasks after a delay. Every task can be cancelled
// individually through the function returned by Schedule, and Stop cancels
// everything still pending.
type Delayer struct {
	mu      sync.Mutex
	tasks   map[uint64]*delayedTask
	next    uint64
	stopped bool
	logger  *zap.Logger
}

type delayedTask struct {
	name  string
	timer *time.Timer
}

// NewDelayer creates a Delayer.
func NewDelayer(logger *zap.Logger) *Delayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delayer{
		tasks:  make(map[uint64]*delayedTask),
		logger: logger,
	}
}

// Schedule runs fn once after delay on its own goroutine. The returned
// function cancels the task and reports whether it was still pending.
// After Stop, Schedule accepts nothing and returns a no-op cancel.
func (d *Delayer) Schedule(name string, delay time.Duration, fn func()) func() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Warn("delayer stopped; task dropped", zap.String("task", name))
		return func() bool { return false }
	}

	id := d.next
	d.next++
	task := &delayedTask{name: name}
	// The callback takes d.mu first, so it cannot observe the map before
	// the task is registered below.
	task.timer = time.AfterFunc(delay, func() {
		if !d.claim(id) {
			return
		}
		d.run(name, fn)
	})
	d.tasks[id] = task

	d.logger.Debug("task scheduled", zap.String("task", name), zap.Duration("delay", delay))

	return func() bool {
		if !d.claim(id) {
			return false
		}
		task.timer.Stop()
		d.logger.Debug("task cancelled", zap.String("task", name))
		return true
	}
}

// claim removes the task from the pending set. Exactly one of the timer
// callback or the cancel function wins.
func (d *Delayer) claim(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tasks[id]; !ok {
		return false
	}
	delete(d.tasks, id)
	return true
}

func (d *Delayer) run(name string, fn func()) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("delayed task panicked",
				zap.String("task", name),
				zap.Any("panic", rec),
				zap.ByteString("stacktrace", debug.Stack()),
			)
		}
	}()
	fn()
	d.logger.Debug("task ran", zap.String("task", name), zap.Duration("took", time.Since(start)))
}

// Pending returns the number of tasks that have neither run nor been cancelled.
func (d *Delayer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Stop cancels every pending task and refuses new ones.
func (d *Delayer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for id, task := range d.tasks {
		task.timer.Stop()
		delete(d.tasks, id)
	}
	d.logger.Info("delayer stopped")
}
