// toolkit/windowsservice/programwindows.go
//go:build windows

package windowsservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dalemusser/signup/app"
	"github.com/kardianos/service"
)

// UnderServiceManager reports whether the process was started by the SCM
// rather than from a console.
func UnderServiceManager() bool { return !service.Interactive() }

// Run drives app.Run under the Service Control Manager until the service is
// stopped.
func Run[C any, D any](cfg Config, hooks app.Hooks[C, D]) error {
	prg := &program[C, D]{hooks: hooks, stopTimeout: cfg.stopTimeout()}
	s, err := service.New(prg, &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
	})
	if err != nil {
		return fmt.Errorf("windowsservice: %w", err)
	}
	if err := s.Run(); err != nil {
		return err
	}
	return prg.err
}

// program adapts app.Run to service.Interface.
type program[C any, D any] struct {
	hooks       app.Hooks[C, D]
	stopTimeout time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
	err         error
}

// Start is called by the SCM. It must return quickly, so the app runs on
// its own goroutine.
func (p *program[C, D]) Start(s service.Service) error {
	// Services start in the system directory; config.* and .env live next
	// to the executable.
	if exe, err := os.Executable(); err == nil {
		_ = os.Chdir(filepath.Dir(exe))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		err := app.Run(ctx, p.hooks)
		p.err = err
		// Stop waits on done, and the SCM calls it in answer to s.Stop.
		close(p.done)
		if err != nil {
			// The SCM only learns about the failure if the process stops.
			_ = s.Stop()
		}
	}()
	return nil
}

// Stop cancels the app and waits for its graceful shutdown.
func (p *program[C, D]) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-time.After(p.stopTimeout):
		return errors.New("windowsservice: shutdown timed out")
	}
}
