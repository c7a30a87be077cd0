// jobs/periodic.go
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodicJob is a handler run on a fixed interval.
type PeriodicJob struct {
	// Name identifies the job in logs.
	Name string

	// Interval between runs.
	Interval time.Duration

	// Handler is the function to execute.
	Handler func(ctx context.Context) error

	// Timeout for each execution. Default: 1 minute.
	Timeout time.Duration
}

// Periodic runs a PeriodicJob until stopped.
type Periodic struct {
	job    PeriodicJob
	logger *zap.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Every starts job on its own goroutine and returns a handle to stop it.
func Every(job PeriodicJob, logger *zap.Logger) *Periodic {
	if logger == nil {
		logger = zap.NewNop()
	}
	if job.Timeout <= 0 {
		job.Timeout = time.Minute
	}
	p := &Periodic{
		job:    job,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.execute()
			}
		}
	}()

	logger.Info("periodic job started",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval))
	return p
}

func (p *Periodic) execute() {
	ctx, cancel := context.WithTimeout(context.Background(), p.job.Timeout)
	defer cancel()

	start := time.Now()
	if err := p.job.Handler(ctx); err != nil {
		p.logger.Warn("periodic job failed",
			zap.String("job", p.job.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}
	p.logger.Debug("periodic job completed",
		zap.String("job", p.job.Name),
		zap.Duration("took", time.Since(start)))
}

// Stop halts the job and waits for a run in progress to finish, or for ctx
// to expire.
func (p *Periodic) Stop(ctx context.Context) error {
	p.once.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("periodic job stopped", zap.String("job", p.job.Name))
		return nil
	case <-ctx.Done():
		p.logger.Warn("periodic job shutdown timed out", zap.String("job", p.job.Name))
		return ctx.Err()
	}
}
