package registration

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// manualScheduler records scheduled tasks and fires them on demand.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	name      string
	delay     time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

func (m *manualScheduler) Schedule(name string, delay time.Duration, fn func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{name: name, delay: delay, fn: fn}
	m.tasks = append(m.tasks, task)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if task.fired || task.cancelled {
			return false
		}
		task.cancelled = true
		return true
	}
}

func (m *manualScheduler) pending() []*manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTask
	for _, task := range m.tasks {
		if !task.fired && !task.cancelled {
			out = append(out, task)
		}
	}
	return out
}

func (m *manualScheduler) fireNext(t *testing.T) *manualTask {
	t.Helper()
	m.mu.Lock()
	var next *manualTask
	for _, task := range m.tasks {
		if !task.fired && !task.cancelled {
			next = task
			break
		}
	}
	if next == nil {
		m.mu.Unlock()
		t.Fatal("no pending task to fire")
		return nil
	}
	next.fired = true
	m.mu.Unlock()
	next.fn()
	return next
}

// take marks the next pending task fired and returns it without running it.
func (m *manualScheduler) take() *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if !task.fired && !task.cancelled {
			task.fired = true
			return task
		}
	}
	return nil
}

func newTestController() (*Controller, *manualScheduler) {
	cfg := DefaultConfig()
	sched := &manualScheduler{}
	p := NewPage("page-1", DefaultLayout(), cfg.SubmitLabel)
	return NewController(p, cfg, sched, nil), sched
}

func validValues() Values {
	return Values{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@example.org",
		Phone:            "",
		Organization:     "Analytical Engines",
		OrganizationType: "education",
		Password:         "Abcdef1!",
		ConfirmPassword:  "Abcdef1!",
		Terms:            "on",
	}
}

func mustDispatch(t *testing.T, c *Controller, ev Event) View {
	t.Helper()
	v, err := c.Dispatch(ev)
	if err != nil {
		t.Fatalf("Dispatch(%+v): %v", ev, err)
	}
	return v
}

func TestDispatch_PasswordInputUpdatesIndicatorsPerKeystroke(t *testing.T) {
	c, _ := newTestController()

	v := mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "a"})
	if got := v.Indicator("lowercase").Mark; got != MarkValid {
		t.Errorf("lowercase after 'a' = %q", got)
	}
	if got := v.Indicator("length").Mark; got != MarkInvalid {
		t.Errorf("length after 'a' = %q", got)
	}

	v = mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "aA1!aaaa"})
	for _, ind := range v.Indicators {
		if ind.Mark != MarkValid {
			t.Errorf("%s = %q after strong password", ind.Requirement, ind.Mark)
		}
	}
	if v.Field("password").Value != "" {
		t.Error("password value must not be echoed in the view")
	}
}

func TestDispatch_PasswordChangeRevalidatesConfirm(t *testing.T) {
	c, _ := newTestController()

	mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "Abcdef1!"})
	v := mustDispatch(t, c, Event{Type: EventInput, Field: ConfirmPassword, Value: "Abcdef1!"})
	if got := v.Field("confirmPassword").Mark; got != MarkValid {
		t.Fatalf("confirm mark = %q, want valid", got)
	}

	v = mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "Abcdef1!x"})
	confirm := v.Field("confirmPassword")
	if confirm.Mark != MarkError {
		t.Errorf("confirm mark after password change = %q, want error", confirm.Mark)
	}
	if confirm.Error != "Passwords do not match" {
		t.Errorf("confirm error = %q", confirm.Error)
	}
}

func TestDispatch_PasswordInputSkipsEmptyConfirm(t *testing.T) {
	c, _ := newTestController()

	v := mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "Abcdef1!"})
	if got := v.Field("confirmPassword").Mark; got != MarkNone {
		t.Errorf("empty confirm should stay untouched, got %q", got)
	}
}

func TestDispatch_InputClearsStaleError(t *testing.T) {
	c, _ := newTestController()

	mustDispatch(t, c, Event{Type: EventInput, Field: Email, Value: "bad"})
	v := mustDispatch(t, c, Event{Type: EventBlur, Field: Email})
	if f := v.Field("email"); f.Mark != MarkError || f.Error == "" {
		t.Fatalf("blur on bad email: mark %q, error %q", f.Mark, f.Error)
	}

	v = mustDispatch(t, c, Event{Type: EventInput, Field: Email, Value: "bad@"})
	f := v.Field("email")
	if f.Mark != MarkNone || f.Error != "" {
		t.Errorf("input should clear error: mark %q, error %q", f.Mark, f.Error)
	}
	if f.Value != "bad@" {
		t.Errorf("value = %q", f.Value)
	}

	v = mustDispatch(t, c, Event{Type: EventBlur, Field: Email})
	if v.Field("email").Mark != MarkError {
		t.Error("blur should validate again")
	}
}

func TestDispatch_BlurReportsProgress(t *testing.T) {
	c, _ := newTestController()

	mustDispatch(t, c, Event{Type: EventInput, Field: FirstName, Value: "Ada"})
	mustDispatch(t, c, Event{Type: EventInput, Field: LastName, Value: "Byron"})
	mustDispatch(t, c, Event{Type: EventBlur, Field: FirstName})
	v := mustDispatch(t, c, Event{Type: EventBlur, Field: LastName})

	if want := 2 * 100 / 9; v.Progress != want {
		t.Errorf("progress = %d, want %d", v.Progress, want)
	}
}

func TestDispatch_Errors(t *testing.T) {
	c, _ := newTestController()

	if _, err := c.Dispatch(Event{Type: EventBlur, Field: "nickname"}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field err = %v", err)
	}
	if _, err := c.Dispatch(Event{Type: "focus", Field: Email}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event err = %v", err)
	}
}

func TestSubmit_ValidRunsDelayedSequence(t *testing.T) {
	c, sched := newTestController()

	var mu sync.Mutex
	var seen []Phase
	c.Subscribe(func(v View) {
		mu.Lock()
		seen = append(seen, v.Phase)
		mu.Unlock()
	})

	res, err := c.Submit(validValues())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("valid form rejected, focus %q", res.Focus)
	}
	if !res.View.Submit.Disabled || res.View.Submit.Label != "Creating Account..." {
		t.Errorf("submit control = %+v, want disabled working label", res.View.Submit)
	}
	if res.View.Success.Visible {
		t.Error("success must not show before the delay")
	}
	if res.View.Phase != PhaseSubmitting {
		t.Errorf("phase = %q", res.View.Phase)
	}

	tasks := sched.pending()
	if len(tasks) != 1 || tasks[0].delay != 2*time.Second {
		t.Fatalf("pending tasks = %+v, want one 2s task", tasks)
	}

	sched.fireNext(t)
	v := c.View()
	if v.Phase != PhaseComplete || !v.Success.Visible {
		t.Fatalf("after first delay: phase %q, success %v", v.Phase, v.Success.Visible)
	}
	if v.Submit.Disabled || v.Submit.Label != "Create Account" {
		t.Errorf("submit control not restored: %+v", v.Submit)
	}
	for _, f := range v.Fields {
		if f.Value != "" && f.Kind != KindCheckbox {
			t.Errorf("%s value %q not reset", f.Name, f.Value)
		}
		if f.Mark != MarkNone || f.Error != "" || f.Checked {
			t.Errorf("%s not reset: %+v", f.Name, f)
		}
	}
	for _, ind := range v.Indicators {
		if ind.Mark != MarkNone {
			t.Errorf("indicator %s = %q after reset", ind.Requirement, ind.Mark)
		}
	}
	if v.Location != "" {
		t.Error("must not navigate before the second delay")
	}

	sched.fireNext(t)
	v = c.View()
	if v.Phase != PhaseNavigated || v.Location != "/" || v.Success.Visible {
		t.Errorf("after second delay: phase %q, location %q, success %v", v.Phase, v.Location, v.Success.Visible)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseSubmitting, PhaseComplete, PhaseNavigated}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestSubmit_AlertModeCarriedInView(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuccessMode = SuccessAlert
	sched := &manualScheduler{}
	c := NewController(NewPage("page-2", DefaultLayout(), cfg.SubmitLabel), cfg, sched, nil)

	if _, err := c.Submit(validValues()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sched.fireNext(t)
	v := c.View()
	if !v.Success.Visible || v.Success.Mode != SuccessAlert || v.Success.Text != cfg.SuccessText {
		t.Errorf("success = %+v, want visible alert with %q", v.Success, cfg.SuccessText)
	}
}

func TestSubscribe_NeverEndsOnOlderView(t *testing.T) {
	c, sched := newTestController()
	if _, err := c.Submit(validValues()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var paused atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var last View
	c.Subscribe(func(v View) {
		if v.Phase == PhaseComplete && paused.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		mu.Lock()
		last = v
		mu.Unlock()
	})

	task := sched.take()
	if task == nil || task.name != "page-1/"+taskComplete {
		t.Fatalf("pending task = %+v, want complete step", task)
	}
	completed := make(chan struct{})
	go func() {
		task.fn()
		close(completed)
	}()
	<-entered

	// The form was reset by the complete step; blurring the empty first
	// name marks it again while the complete view is still being delivered.
	blurred := make(chan error, 1)
	go func() {
		_, err := c.Dispatch(Event{Type: EventBlur, Field: FirstName})
		blurred <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for c.View().Field(string(FirstName)).Mark != MarkError {
		if time.Now().After(deadline) {
			t.Fatal("blur was not applied")
		}
		time.Sleep(time.Millisecond)
	}

	close(release)
	<-completed
	if err := <-blurred; err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	server := c.View()
	mu.Lock()
	defer mu.Unlock()
	if last.Revision != server.Revision {
		t.Errorf("last delivered revision = %d, server revision = %d", last.Revision, server.Revision)
	}
	got, want := last.Field(string(FirstName)), server.Field(string(FirstName))
	if got.Mark != want.Mark || got.Error != want.Error {
		t.Errorf("last delivered firstName = %q/%q, server = %q/%q", got.Mark, got.Error, want.Mark, want.Error)
	}
}

func TestUpdate_RevisionGrowsOnlyOnChange(t *testing.T) {
	c, _ := newTestController()
	start := c.View().Revision

	v := mustDispatch(t, c, Event{Type: EventBlur, Field: Email})
	if v.Revision != start+1 {
		t.Fatalf("revision after blur = %d, want %d", v.Revision, start+1)
	}
	if _, err := c.Dispatch(Event{Type: EventBlur, Field: "nickname"}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("err = %v", err)
	}
	if got := c.View().Revision; got != start+1 {
		t.Errorf("rejected event moved revision to %d", got)
	}
}

func TestRestorePage_KeepsRevision(t *testing.T) {
	c, _ := newTestController()
	mustDispatch(t, c, Event{Type: EventInput, Field: FirstName, Value: "Ada"})
	v := mustDispatch(t, c, Event{Type: EventBlur, Field: FirstName})

	cfg := DefaultConfig()
	restored := NewController(RestorePage(DefaultLayout(), v, cfg.SubmitLabel), cfg, &manualScheduler{}, nil)
	if got := restored.View().Revision; got != v.Revision {
		t.Fatalf("restored revision = %d, want %d", got, v.Revision)
	}
	next := mustDispatch(t, restored, Event{Type: EventBlur, Field: LastName})
	if next.Revision <= v.Revision {
		t.Errorf("revision after restore = %d, want > %d", next.Revision, v.Revision)
	}
}

func TestSubmit_InvalidFocusesFirstError(t *testing.T) {
	c, sched := newTestController()

	vals := validValues()
	vals[LastName] = "L"
	vals[Email] = "nope"

	res, err := c.Submit(vals)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted {
		t.Fatal("invalid form accepted")
	}
	if res.Focus != LastName || res.View.Focus != LastName {
		t.Errorf("focus = %q / %q, want lastName", res.Focus, res.View.Focus)
	}
	if res.View.Submit.Disabled {
		t.Error("submit control must stay enabled")
	}
	if res.View.Phase != PhaseIdle {
		t.Errorf("phase = %q, want idle", res.View.Phase)
	}
	if len(sched.pending()) != 0 {
		t.Error("no delayed work for an invalid form")
	}
	if res.View.Field("email").Error == "" {
		t.Error("every invalid field should show its error")
	}
}

func TestSubmit_TermsUnchecked(t *testing.T) {
	c, _ := newTestController()

	vals := validValues()
	delete(vals, Terms)
	res, err := c.Submit(vals)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Focus != Terms {
		t.Errorf("accepted %v focus %q, want terms", res.Accepted, res.Focus)
	}
}

func TestSubmit_BlocksSecondSubmit(t *testing.T) {
	c, sched := newTestController()

	if _, err := c.Submit(validValues()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit(validValues()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("second submit err = %v, want ErrSubmitInProgress", err)
	}
	if n := len(sched.pending()); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestSubmit_UsesStreamedValues(t *testing.T) {
	c, _ := newTestController()

	for name, value := range validValues() {
		ev := Event{Type: EventInput, Field: name, Value: value}
		if name == Terms {
			ev = Event{Type: EventInput, Field: Terms, Checked: true}
		}
		mustDispatch(t, c, ev)
	}

	res, err := c.Submit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Errorf("streamed values rejected, focus %q", res.Focus)
	}
}

func TestClose_CancelsPendingWork(t *testing.T) {
	c, sched := newTestController()

	if _, err := c.Submit(validValues()); err != nil {
		t.Fatal(err)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d", c.Pending())
	}

	c.Close()
	c.Close()

	if c.Pending() != 0 {
		t.Errorf("Pending after Close = %d", c.Pending())
	}
	if len(sched.pending()) != 0 {
		t.Error("scheduler task not cancelled")
	}
	if _, err := c.Dispatch(Event{Type: EventBlur, Field: Email}); !errors.Is(err, ErrPageClosed) {
		t.Errorf("Dispatch after Close err = %v", err)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c, _ := newTestController()

	calls := 0
	unsub := c.Subscribe(func(View) { calls++ })
	mustDispatch(t, c, Event{Type: EventBlur, Field: FirstName})
	unsub()
	mustDispatch(t, c, Event{Type: EventBlur, Field: FirstName})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRestorePage_DropsPasswords(t *testing.T) {
	c, _ := newTestController()
	mustDispatch(t, c, Event{Type: EventInput, Field: FirstName, Value: "A"})
	mustDispatch(t, c, Event{Type: EventBlur, Field: FirstName})
	mustDispatch(t, c, Event{Type: EventInput, Field: Password, Value: "Abcdef1!"})
	mustDispatch(t, c, Event{Type: EventBlur, Field: Password})
	mustDispatch(t, c, Event{Type: EventInput, Field: Terms, Checked: true})

	cfg := DefaultConfig()
	p := RestorePage(DefaultLayout(), c.View(), cfg.SubmitLabel)

	first, _ := p.Field(FirstName)
	if first.Value != "A" || first.Mark != MarkError || p.Slot(FirstName).Text == "" {
		t.Errorf("firstName not restored: %+v %q", first, p.Slot(FirstName).Text)
	}
	pw, _ := p.Field(Password)
	if pw.Value != "" || pw.Mark != MarkNone {
		t.Errorf("password restored: %+v", pw)
	}
	terms, _ := p.Field(Terms)
	if !terms.Checked || terms.Value != CheckboxValue {
		t.Errorf("terms not restored: %+v", terms)
	}
}
