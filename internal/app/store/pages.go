// internal/app/store/pages.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/signup/internal/domain/registration"
	"github.com/dalemusser/signup/metrics"
	"github.com/dalemusser/signup/pantry/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPageNotFound is returned for a page id with neither a live controller
// nor a snapshot.
var ErrPageNotFound = errors.New("store: page not found")

// ErrClosed is returned once the store has been closed.
var ErrClosed = errors.New("store: closed")

// Options configures Pages.
type Options struct {
	Config    registration.Config
	Layout    registration.Layout
	Scheduler registration.Scheduler
	Snapshots session.Store

	// TTL bounds both snapshot lifetime and how long an idle page stays
	// in memory. Default: 30 minutes.
	TTL time.Duration

	// OnChange receives every view change of every page, after the
	// snapshot has been written.
	OnChange func(registration.View)

	Logger *zap.Logger
}

// Pages keeps the live registration controllers keyed by page id and
// mirrors each one into a session.Store so a page survives a restart or
// lands on another instance.
type Pages struct {
	mu     sync.Mutex
	live   map[string]*registration.Controller
	closed bool

	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewPages creates a page store.
func NewPages(opts Options) *Pages {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	return &Pages{
		live:   make(map[string]*registration.Controller),
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Config returns the rules every page is built with.
func (p *Pages) Config() registration.Config { return p.opts.Config }

// Create starts a new page session.
func (p *Pages) Create(ctx context.Context) (*registration.Controller, error) {
	id := uuid.NewString()
	page := registration.NewPage(id, p.opts.Layout, p.opts.Config.SubmitLabel)
	ctl := p.adopt(page)

	if err := p.persist(ctx, ctl.View()); err != nil {
		p.logger.Warn("initial snapshot failed", zap.String("page_id", id), zap.Error(err))
	}

	if _, err := p.add(ctl); err != nil {
		ctl.Close()
		return nil, err
	}
	p.logger.Debug("page created", zap.String("page_id", id))
	return ctl, nil
}

// Get returns the live controller for id, rebuilding it from its snapshot
// when it is not in memory. A rebuilt page starts idle: timers of a
// submission in flight did not survive.
func (p *Pages) Get(ctx context.Context, id string) (*registration.Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPageNotFound
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if ctl, ok := p.live[id]; ok {
		p.mu.Unlock()
		ctl.Touch()
		return ctl, nil
	}
	p.mu.Unlock()

	rec, err := p.opts.Snapshots.Load(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		return nil, ErrPageNotFound
	case err != nil:
		return nil, fmt.Errorf("load page %s: %w", id, err)
	}

	var view registration.View
	if err := json.Unmarshal(rec.Data, &view); err != nil {
		return nil, fmt.Errorf("decode page %s: %w", id, err)
	}
	view.ID = id
	ctl := p.adopt(registration.RestorePage(p.opts.Layout, view, p.opts.Config.SubmitLabel))

	held, err := p.add(ctl)
	if err != nil {
		ctl.Close()
		return nil, err
	}
	if held != ctl {
		// Lost a race with another rehydration.
		ctl.Close()
		held.Touch()
		return held, nil
	}
	p.logger.Info("page restored from snapshot", zap.String("page_id", id))
	return ctl, nil
}

// adopt wraps page in a controller wired to metrics and snapshots.
func (p *Pages) adopt(page *registration.Page) *registration.Controller {
	ctl := registration.NewController(page, p.opts.Config, p.opts.Scheduler, p.logger)
	ctl.OnValidate(func(name registration.FieldName, ok bool) {
		metrics.FieldValidated(string(name), ok)
	})
	ctl.Subscribe(func(v registration.View) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.persist(ctx, v); err != nil {
			p.logger.Warn("snapshot failed", zap.String("page_id", v.ID), zap.Error(err))
		}
		if p.opts.OnChange != nil {
			p.opts.OnChange(v)
		}
	})
	return ctl
}

// add registers ctl unless a controller for its page is already live, and
// returns the one that is held.
func (p *Pages) add(ctl *registration.Controller) (*registration.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if held, ok := p.live[ctl.ID()]; ok {
		return held, nil
	}
	p.live[ctl.ID()] = ctl
	metrics.SetPagesActive(len(p.live))
	return ctl, nil
}

func (p *Pages) persist(ctx context.Context, v registration.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := p.now()
	return p.opts.Snapshots.Save(ctx, &session.Record{
		ID:        v.ID,
		Data:      data,
		ExpiresAt: now.Add(p.opts.TTL),
		UpdatedAt: now,
	})
}

// Remove closes the page, cancelling its pending steps, and forgets it.
// The snapshot is deleted too.
func (p *Pages) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	if p.closed {
		// Snapshots outlive the process.
		p.mu.Unlock()
		return ErrClosed
	}
	ctl, ok := p.live[id]
	delete(p.live, id)
	metrics.SetPagesActive(len(p.live))
	p.mu.Unlock()

	if ok {
		ctl.Close()
	}
	if err := p.opts.Snapshots.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// Sweep evicts pages idle for longer than the TTL and returns how many
// were evicted.
func (p *Pages) Sweep(ctx context.Context) int {
	cutoff := p.now().Add(-p.opts.TTL)

	p.mu.Lock()
	var stale []*registration.Controller
	for id, ctl := range p.live {
		if ctl.LastSeen().Before(cutoff) {
			stale = append(stale, ctl)
			delete(p.live, id)
		}
	}
	metrics.SetPagesActive(len(p.live))
	p.mu.Unlock()

	for _, ctl := range stale {
		ctl.Close()
		if err := p.opts.Snapshots.Delete(ctx, ctl.ID()); err != nil {
			p.logger.Warn("snapshot delete failed", zap.String("page_id", ctl.ID()), zap.Error(err))
		}
		p.logger.Info("page evicted", zap.String("page_id", ctl.ID()))
	}
	return len(stale)
}

// SweepJob adapts Sweep to a periodic job handler.
func (p *Pages) SweepJob(ctx context.Context) error {
	if n := p.Sweep(ctx); n > 0 {
		p.logger.Debug("sweep finished", zap.Int("evicted", n))
	}
	return nil
}

// Len returns the number of pages held in memory.
func (p *Pages) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Close closes every live page. Snapshots stay in the store so the pages
// can be restored by the next process. Close is idempotent.
func (p *Pages) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	live := p.live
	p.live = make(map[string]*registration.Controller)
	metrics.SetPagesActive(0)
	p.mu.Unlock()

	for _, ctl := range live {
		ctl.Close()
	}
	p.logger.Info("page store closed", zap.Int("pages", len(live)))
}
