package registration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownField     = errors.New("registration: unknown field")
	ErrUnknownEvent     = errors.New("registration: unknown event type")
	ErrSubmitInProgress = errors.New("registration: submit already in progress")
	ErrPageClosed       = errors.New("registration: page closed")
)

// Phase is the form-level state of the submission flow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseComplete   Phase = "complete"
	PhaseNavigated  Phase = "navigated"
)

// EventType is the kind of a live-feedback event.
type EventType string

const (
	EventInput EventType = "input"
	EventBlur  EventType = "blur"
)

// Event is one input or blur on a field, as reported by the page.
type Event struct {
	Type    EventType `json:"type"`
	Field   FieldName `json:"field"`
	Value   string    `json:"value,omitempty"`
	Checked bool      `json:"checked,omitempty"`
}

// Values carries the submitted control values keyed by field name.
type Values map[FieldName]string

// SubmitResult is the outcome of a submit attempt.
type SubmitResult struct {
	Accepted bool      `json:"accepted"`
	Focus    FieldName `json:"focus,omitempty"`
	View     View      `json:"view"`
}

// Scheduler runs fn once after delay. The returned function cancels the
// task and reports whether it was still pending. fn must not be run
// synchronously from within Schedule.
type Scheduler interface {
	Schedule(name string, delay time.Duration, fn func()) (cancel func() bool)
}

const (
	taskComplete = "complete"
	taskRedirect = "redirect"
)

// Controller drives one page session: live feedback events, the submit
// state machine and its two delayed steps. It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	page      *Page
	validator *Validator
	cfg       Config
	sched     Scheduler
	logger    *zap.Logger

	phase     Phase
	pending   map[string]func() bool
	listeners map[int]func(View)
	nextSub   int
	closed    bool
	lastSeen  time.Time

	// notifyMu orders deliveries. delivered is the newest revision handed
	// to subscribers.
	notifyMu  sync.Mutex
	delivered uint64

	now func() time.Time
}

// NewController takes ownership of page.
func NewController(page *Page, cfg Config, sched Scheduler, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("page_id", page.ID))
	c := &Controller{
		page:      page,
		validator: NewValidator(page, cfg, logger),
		cfg:       cfg,
		sched:     sched,
		logger:    logger,
		phase:     PhaseIdle,
		pending:   make(map[string]func() bool),
		listeners: make(map[int]func(View)),
		now:       time.Now,
	}
	c.lastSeen = c.now()
	return c
}

// ID returns the page session id.
func (c *Controller) ID() string { return c.page.ID }

// OnValidate installs a callback invoked after each single-field validation.
// Call it before the controller is shared.
func (c *Controller) OnValidate(fn func(name FieldName, ok bool)) {
	c.mu.Lock()
	c.validator.OnResult = fn
	c.mu.Unlock()
}

// Subscribe registers fn to receive every view change, including those made
// by the delayed submission steps. fn runs outside the controller's lock
// and sees views in revision order; a view overtaken by a newer one before
// delivery is skipped. fn must not change the page itself.
func (c *Controller) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// View returns the current state of the page.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Phase returns the current form-level state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastSeen is the time of the last client interaction.
func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Touch records client activity without changing the page.
func (c *Controller) Touch() {
	c.mu.Lock()
	c.lastSeen = c.now()
	c.mu.Unlock()
}

func (c *Controller) viewLocked() View {
	return buildView(c.page, c.phase, c.cfg, c.validator.Progress())
}

// update runs fn under the lock, bumps the page revision and notifies
// subscribers with the resulting view. A non-nil error from fn suppresses
// both.
func (c *Controller) update(fn func() error) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrPageClosed
	}
	err := fn()
	if err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, err
	}
	c.page.Revision++
	view := c.viewLocked()
	subs := make([]func(View), 0, len(c.listeners))
	for _, l := range c.listeners {
		subs = append(subs, l)
	}
	c.mu.Unlock()

	c.notify(view, subs)
	return view, nil
}

// notify hands view to subs unless a newer view has already been
// delivered, so subscribers never move back to an older state.
func (c *Controller) notify(view View, subs []func(View)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if view.Revision <= c.delivered {
		c.logger.Debug("superseded view dropped", zap.Uint64("revision", view.Revision))
		return
	}
	c.delivered = view.Revision
	for _, l := range subs {
		l(view)
	}
}

// Dispatch applies one live-feedback event.
//
//   - blur on any field validates it.
//   - input on the password re-checks the requirements on every keystroke
//     and re-validates the confirmation if it already has content.
//   - input on the confirmation validates it.
//   - input on anything else clears its error until the next blur.
func (c *Controller) Dispatch(ev Event) (View, error) {
	return c.update(func() error {
		c.lastSeen = c.now()
		f, ok := c.page.Field(ev.Field)
		if !ok {
			c.logger.Debug("event for unknown field", zap.String("field", string(ev.Field)))
			return fmt.Errorf("%w: %q", ErrUnknownField, ev.Field)
		}

		switch ev.Type {
		case EventBlur:
			c.validator.ValidateField(ev.Field)
			c.logger.Debug("form progress", zap.Int("percent", c.validator.Progress()))
			return nil

		case EventInput:
			if f.Kind == KindCheckbox {
				f.Checked = ev.Checked
			} else {
				f.Value = normalizeValue(ev.Value)
			}

			switch ev.Field {
			case Password:
				c.validator.ValidatePassword(f.Value)
				if confirm, ok := c.page.Field(ConfirmPassword); ok && confirm.Value != "" {
					c.validator.ValidateField(ConfirmPassword)
				}
			case ConfirmPassword:
				c.validator.ValidateField(ConfirmPassword)
			default:
				c.page.clearField(f)
			}
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	})
}

// Submit runs aggregate validation over the page, after applying values
// when given. An invalid form reports the first field in error as the focus
// target. A valid form disables the submit control and starts the
// simulated account creation.
func (c *Controller) Submit(values Values) (SubmitResult, error) {
	var res SubmitResult
	view, err := c.update(func() error {
		c.lastSeen = c.now()
		if c.phase == PhaseSubmitting {
			return ErrSubmitInProgress
		}
		if values != nil {
			for _, f := range c.page.Fields() {
				v, ok := values[f.Name]
				if f.Kind == KindCheckbox {
					f.Checked = ok && truthy(v)
					continue
				}
				if ok {
					f.Value = normalizeValue(v)
				}
			}
		}

		c.page.Focus = ""
		c.page.Location = ""
		if !c.validator.ValidateForm() {
			name, _ := c.validator.FirstError()
			c.page.Focus = name
			res.Focus = name
			c.logger.Info("submit rejected", zap.String("focus", string(name)))
			return nil
		}

		res.Accepted = true
		c.phase = PhaseSubmitting
		c.page.SuccessVisible = false
		c.page.Submit = SubmitControl{Disabled: true, Label: c.cfg.WorkingLabel}
		c.scheduleLocked(taskComplete, c.cfg.SubmitDelay, c.complete)
		c.logger.Info("submit accepted", zap.Duration("delay", c.cfg.SubmitDelay))
		return nil
	})
	res.View = view
	return res, err
}

// complete is the first delayed step: show success, reset the form and
// re-enable submit, then schedule the redirect.
func (c *Controller) complete() {
	_, err := c.update(func() error {
		delete(c.pending, taskComplete)
		if c.phase != PhaseSubmitting {
			return nil
		}
		c.page.Reset(c.cfg.SubmitLabel)
		c.page.SuccessVisible = true
		c.phase = PhaseComplete
		c.scheduleLocked(taskRedirect, c.cfg.RedirectDelay, c.redirect)
		c.logger.Info("account creation simulated", zap.Duration("redirect_in", c.cfg.RedirectDelay))
		return nil
	})
	if err != nil {
		c.logger.Debug("complete skipped", zap.Error(err))
	}
}

// redirect is the second delayed step: hide success and navigate.
func (c *Controller) redirect() {
	_, err := c.update(func() error {
		delete(c.pending, taskRedirect)
		if c.phase != PhaseComplete {
			return nil
		}
		c.page.SuccessVisible = false
		c.page.Location = c.cfg.LandingURL
		c.phase = PhaseNavigated
		c.logger.Info("redirecting", zap.String("location", c.cfg.LandingURL))
		return nil
	})
	if err != nil {
		c.logger.Debug("redirect skipped", zap.Error(err))
	}
}

func (c *Controller) scheduleLocked(name string, delay time.Duration, fn func()) {
	if c.sched == nil {
		c.logger.Warn("no scheduler; delayed step dropped", zap.String("task", name))
		return
	}
	c.pending[name] = c.sched.Schedule(c.page.ID+"/"+name, delay, fn)
}

// Pending returns the number of delayed steps still scheduled.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close cancels any pending delayed steps and rejects further use. It is
// idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for name, cancel := range c.pending {
		if cancel() {
			c.logger.Debug("cancelled pending step", zap.String("task", name))
		}
		delete(c.pending, name)
	}
	c.listeners = map[int]func(View){}
}
