// Package autotype ties window capture, entry ranking, the picker and the
// parse/resolve/obfuscate/run pipeline together. One AutoType value owns
// the running flag and the pending trigger.
package autotype

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotyped/internal/config"
	"autotyped/internal/entry"
	"autotyped/internal/filter"
	"autotyped/internal/logging"
	"autotyped/internal/metrics"
	"autotyped/internal/notify"
	"autotyped/internal/obfuscate"
	"autotyped/internal/picker"
	"autotyped/internal/platform"
	"autotyped/internal/runner"
	"autotyped/internal/sequence"
)

var (
	// ErrWindowMismatch means focus moved to another window or page while
	// the picker was open. The run is dropped without telling the user.
	ErrWindowMismatch = errors.New("active window changed since trigger")

	// ErrAppFocused rejects a global trigger fired from our own window.
	ErrAppFocused = errors.New("auto-type must be started from another window")
)

// Outcome describes what a trigger led to.
type Outcome string

const (
	OutcomeTyped     Outcome = "typed"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomePending   Outcome = "pending"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeAborted   Outcome = "aborted"
	OutcomeRejected  Outcome = "rejected"
)

// Event is one auto-type request. Without an Entry, the entry is chosen
// from the focused window.
type Event struct {
	Entry    *entry.Entry
	Sequence string

	// Obfuscate forces obfuscation regardless of the entry's setting.
	Obfuscate bool
}

// Options wires an AutoType. Platform, Provider and Picker are required.
type Options struct {
	Platform platform.Platform
	Provider entry.Provider
	Picker   picker.Picker

	Notifier notify.Notifier
	Logger   *logging.Logger
	Audit    *logging.AuditLogger
	Metrics  *metrics.AutoType
	Config   config.AutoTypeConfig

	// PickerTimeout bounds how long the picker may stay open. Zero waits.
	PickerTimeout time.Duration

	// LockWorkspace closes the entry store after a run when
	// lock_on_auto_type is set.
	LockWorkspace func(context.Context) error

	Obfuscator *obfuscate.Obfuscator
	Resolver   sequence.Resolver

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// AutoType is the orchestrator.
type AutoType struct {
	platform   platform.Platform
	provider   entry.Provider
	picker     picker.Picker
	notifier   notify.Notifier
	log        *logging.Logger
	audit      *logging.AuditLogger
	metrics    *metrics.AutoType
	obfuscator *obfuscate.Obfuscator
	resolver   sequence.Resolver
	lock       func(context.Context) error
	sleep      func(context.Context, time.Duration) error

	pickerTimeout time.Duration

	mu        sync.Mutex
	cfg       config.AutoTypeConfig
	running   bool
	selecting bool
	pending   *pendingEvent
}

type pendingEvent struct {
	window platform.WindowInfo
	queued time.Time
}

// New returns an idle orchestrator.
func New(opts Options) (*AutoType, error) {
	if opts.Platform == nil || opts.Provider == nil || opts.Picker == nil {
		return nil, errors.New("autotype: platform, provider and picker are required")
	}
	a := &AutoType{
		platform:      opts.Platform,
		provider:      opts.Provider,
		picker:        opts.Picker,
		notifier:      opts.Notifier,
		log:           opts.Logger,
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		obfuscator:    opts.Obfuscator,
		resolver:      opts.Resolver,
		lock:          opts.LockWorkspace,
		sleep:         opts.Sleep,
		pickerTimeout: opts.PickerTimeout,
		cfg:           opts.Config,
	}
	if a.log == nil {
		a.log = logging.Default()
	}
	a.log = a.log.WithComponent("autotype")
	if a.notifier == nil {
		a.notifier = notify.Log{Logger: a.log}
	}
	if a.metrics == nil {
		a.metrics = metrics.NewAutoType(nil)
	}
	if a.obfuscator == nil {
		obf, err := obfuscate.New()
		if err != nil {
			return nil, err
		}
		a.obfuscator = obf
	}
	if a.sleep == nil {
		a.sleep = sleep
	}
	if a.cfg.DefaultSequence == "" {
		a.cfg.DefaultSequence = config.DefaultSequence
	}
	return a, nil
}

// SetConfig replaces the auto-type settings. Runs in progress keep the
// settings they started with.
func (a *AutoType) SetConfig(cfg config.AutoTypeConfig) {
	if cfg.DefaultSequence == "" {
		cfg.DefaultSequence = config.DefaultSequence
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *AutoType) settings() config.AutoTypeConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Status is a snapshot of the orchestrator state.
type Status struct {
	Running   bool   `json:"running"`
	Selecting bool   `json:"selecting"`
	Pending   bool   `json:"pending"`
	Window    string `json:"pending_window,omitempty"`
}

// Status reports the current state.
func (a *AutoType) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Status{Running: a.running, Selecting: a.selecting, Pending: a.pending != nil}
	if a.pending != nil {
		s.Window = a.pending.window.String()
	}
	return s
}

// Metrics returns the orchestrator's metrics.
func (a *AutoType) Metrics() *metrics.AutoType { return a.metrics }

// HandleEvent processes a trigger and returns once the resulting run, if
// any, has finished. A trigger while another run is in progress is
// dropped. Errors are also reported through the notifier.
func (a *AutoType) HandleEvent(ctx context.Context, ev Event) (Outcome, error) {
	a.metrics.Triggers.Inc()

	if ev.Entry != nil {
		if !a.claimRun() {
			return a.ignored("run in progress"), nil
		}
		if err := a.hideWindow(ctx); err != nil {
			a.releaseRun()
			return a.fail(ctx, err)
		}
		return a.runAndReport(ctx, ev, platform.WindowInfo{})
	}

	a.mu.Lock()
	switch {
	case a.running:
		a.mu.Unlock()
		return a.ignored("run in progress"), nil
	case a.selecting:
		a.mu.Unlock()
		return a.ignored("picker is open"), nil
	}
	a.mu.Unlock()

	if a.platform.IsAppFocused(ctx) {
		a.notifyError(ctx, ErrAppFocused)
		return OutcomeRejected, ErrAppFocused
	}
	return a.selectEntryAndRun(ctx, ev)
}

// Validate parses sequence and resolves it against e without typing
// anything. An empty sequence validates the entry's effective one.
func (a *AutoType) Validate(ctx context.Context, e *entry.Entry, seq string) error {
	if seq == "" {
		seq = e.EffectiveAutoTypeSeq(a.settings().DefaultSequence)
	}
	ops, err := sequence.Parse(seq)
	if err != nil {
		return err
	}
	_, err = a.resolver.Resolve(ctx, ops, e)
	return err
}

// ResetPendingEvent drops a queued trigger. It is called when the main
// window loses focus or closes.
func (a *AutoType) ResetPendingEvent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return false
	}
	a.pending = nil
	a.metrics.Pending.SetBool(false)
	a.log.Debug("pending trigger cancelled")
	return true
}

// ProcessPendingEvent runs a queued trigger once entries are open. It is
// a no-op without a pending trigger or while entries are still closed.
func (a *AutoType) ProcessPendingEvent(ctx context.Context) (Outcome, error) {
	a.mu.Lock()
	p := a.pending
	if p == nil || !a.provider.HasOpenFiles() {
		a.mu.Unlock()
		return OutcomeIgnored, nil
	}
	a.pending = nil
	a.metrics.Pending.SetBool(false)
	a.mu.Unlock()

	a.log.Debug("processing pending trigger", "queued_for", time.Since(p.queued).Round(time.Millisecond))
	return a.processWithFilter(ctx, Event{}, p.window)
}

// WatchChanges replays the pending trigger whenever changes fires. It
// returns when ctx is done or changes is closed.
func (a *AutoType) WatchChanges(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if _, err := a.ProcessPendingEvent(ctx); err != nil {
				a.log.Debug("pending trigger finished with error", "error", err)
			}
		}
	}
}

func (a *AutoType) selectEntryAndRun(ctx context.Context, ev Event) (Outcome, error) {
	win, err := a.activeWindow(ctx)
	if err != nil {
		a.log.Error("getting window info", "error", err)
	}

	if !a.provider.HasOpenFiles() {
		a.mu.Lock()
		a.pending = &pendingEvent{window: win, queued: time.Now()}
		a.mu.Unlock()
		a.metrics.PendingQueued.Inc()
		a.metrics.Pending.SetBool(true)
		a.log.Debug("trigger delayed until entries are open", "window", win.String())
		a.focusMainWindow(ctx)
		return OutcomePending, nil
	}
	return a.processWithFilter(ctx, ev, win)
}

func (a *AutoType) processWithFilter(ctx context.Context, ev Event, win platform.WindowInfo) (Outcome, error) {
	cfg := a.settings()
	f := filter.New(win, a.provider)

	entries, err := f.Entries(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}
	if len(entries) == 1 && cfg.DirectAutoType {
		if !a.claimRun() {
			return a.ignored("run in progress"), nil
		}
		if err := a.hideWindow(ctx); err != nil {
			a.releaseRun()
			return a.fail(ctx, err)
		}
		ev.Entry = entries[0]
		return a.runAndReport(ctx, ev, win)
	}

	a.mu.Lock()
	if a.selecting {
		a.mu.Unlock()
		return a.ignored("picker is open"), nil
	}
	a.selecting = true
	a.mu.Unlock()

	a.focusMainWindow(ctx)
	f.IgnoreWindowInfo = true
	sel, err := a.pick(ctx, f)

	a.mu.Lock()
	a.selecting = false
	a.mu.Unlock()

	if err != nil {
		return a.fail(ctx, fmt.Errorf("picker: %w", err))
	}
	if err := a.hideWindow(ctx); err != nil {
		return a.fail(ctx, err)
	}
	if sel == nil || sel.Entry == nil {
		a.log.Debug("picker cancelled")
		return OutcomeCancelled, nil
	}
	a.log.Debug("entry selected", "entry", sel.Entry.Title)

	if err := a.activeWindowMatches(ctx, win, sel.Entry.Title); err != nil {
		a.metrics.WindowMismatches.Inc()
		a.log.Info("auto-type aborted", "reason", err)
		return OutcomeAborted, nil
	}

	if !a.claimRun() {
		return a.ignored("run in progress"), nil
	}
	ev.Entry = sel.Entry
	if sel.Sequence != "" {
		ev.Sequence = sel.Sequence
	}
	return a.runAndReport(ctx, ev, win)
}

func (a *AutoType) pick(ctx context.Context, f *filter.Filter) (*picker.Selection, error) {
	a.metrics.PickerShown.Inc()
	defer a.metrics.PickerDuration.Since(time.Now())

	if a.pickerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.pickerTimeout)
		defer cancel()
	}
	sel, err := a.picker.Select(ctx, f)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Debug("picker timed out")
		return nil, nil
	}
	return sel, err
}

// activeWindowMatches re-reads the focused window and requires the same
// id and URL as at trigger time. Without a captured id the check passes.
func (a *AutoType) activeWindowMatches(ctx context.Context, want platform.WindowInfo, title string) error {
	if want.ID == "" {
		a.log.Debug("skipped active window check, window id unknown")
		return nil
	}
	got, err := a.activeWindow(ctx)
	if err != nil {
		a.audit.LogWindowMismatch(ctx, title, want.Title, "")
		return fmt.Errorf("%w: %v", ErrWindowMismatch, err)
	}
	if !want.SameTarget(got) {
		a.audit.LogWindowMismatch(ctx, title, want.Title, got.Title)
		return fmt.Errorf("%w: expected %s, got %s", ErrWindowMismatch, want, got)
	}
	return nil
}

func (a *AutoType) activeWindow(ctx context.Context) (platform.WindowInfo, error) {
	win, err := a.platform.ActiveWindow(ctx)
	if err != nil {
		return platform.WindowInfo{}, err
	}
	win = win.WithTitleURL()
	a.log.Debug("window info", "id", win.ID, "title", win.Title, "url", win.URL)
	return win, nil
}

func (a *AutoType) hideWindow(ctx context.Context) error {
	if !a.platform.IsAppFocused(ctx) {
		return nil
	}
	a.log.Debug("hiding window")
	if err := a.platform.HideApp(ctx); err != nil {
		return fmt.Errorf("hide app: %w", err)
	}
	return a.sleep(ctx, ms(a.settings().HideSettleMs))
}

func (a *AutoType) focusMainWindow(ctx context.Context) {
	if err := a.sleep(ctx, ms(a.settings().RedrawDelayMs)); err != nil {
		return
	}
	if err := a.platform.ShowMainWindow(ctx); err != nil {
		a.log.Warn("show main window", "error", err)
	}
}

// runAndReport runs ev and reports failures to the user. The caller
// holds the run claim; it is released here.
func (a *AutoType) runAndReport(ctx context.Context, ev Event, win platform.WindowInfo) (Outcome, error) {
	cfg := a.settings()
	err := a.run(ctx, ev, win, cfg)

	if cfg.LockOnAutoType && a.lock != nil {
		if lerr := a.lock(ctx); lerr != nil {
			a.log.Warn("lock workspace", "error", lerr)
		}
	}
	if err != nil {
		a.notifyError(ctx, err)
		return OutcomeFailed, err
	}
	return OutcomeTyped, nil
}

func (a *AutoType) run(ctx context.Context, ev Event, win platform.WindowInfo, cfg config.AutoTypeConfig) (err error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := a.log.WithRunID(runID)

	a.metrics.Runs.Inc()
	a.metrics.Running.SetBool(true)
	start := time.Now()

	obfuscated := ev.Obfuscate || ev.Entry.AutoTypeObfuscation || cfg.ObfuscateByDefault
	defer func() {
		a.releaseRun()
		a.metrics.Running.SetBool(false)
		a.metrics.RunDuration.Since(start)
		if err != nil {
			a.metrics.RunFailures.Inc()
		}
		if aerr := a.audit.LogRun(ctx, ev.Entry.ID, ev.Entry.Title, win.Title, obfuscated, err); aerr != nil {
			log.Warn("audit", "error", aerr)
		}
	}()

	seq := ev.Sequence
	if seq == "" {
		seq = ev.Entry.EffectiveAutoTypeSeq(cfg.DefaultSequence)
	}
	log.Debug("start", "entry", ev.Entry.Title, "sequence", seq)

	ops, err := sequence.Parse(seq)
	if err != nil {
		log.Error("parse error", "error", err)
		return err
	}
	log.Debug("parsed", "ops", sequence.Describe(ops, cfg.ClearTextLog))

	ops, err = a.resolver.Resolve(ctx, ops, ev.Entry)
	if err != nil {
		log.Error("resolve error", "error", err)
		return err
	}
	log.Debug("resolved", "ops", sequence.Describe(ops, cfg.ClearTextLog))

	if obfuscated {
		if ops, err = a.obfuscator.Obfuscate(ops); err != nil {
			log.Error("obfuscate error", "error", err)
			return err
		}
		log.Debug("obfuscated")
	}

	r := runner.New(counting{a.platform, a.metrics.Actions}, ms(cfg.KeyDelayMs))
	r.Sleep = a.sleep
	if err := r.Run(ctx, ops); err != nil {
		log.Error("run error", "error", err)
		return err
	}
	log.Debug("complete", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (a *AutoType) claimRun() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return false
	}
	a.running = true
	return true
}

func (a *AutoType) releaseRun() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *AutoType) ignored(reason string) Outcome {
	a.metrics.TriggersIgnored.Inc()
	a.log.Debug("trigger ignored", "reason", reason)
	a.audit.Log(context.Background(), logging.AuditEvent{
		Type:    logging.AuditTriggerIgnored,
		Result:  logging.ResultAborted,
		Details: map[string]any{"reason": reason},
	})
	return OutcomeIgnored
}

func (a *AutoType) fail(ctx context.Context, err error) (Outcome, error) {
	a.log.Error("auto-type failed", "error", err)
	a.notifyError(ctx, err)
	return OutcomeFailed, err
}

func (a *AutoType) notifyError(ctx context.Context, err error) {
	if nerr := a.notifier.Error(context.WithoutCancel(ctx), "Auto-type error", err.Error()); nerr != nil {
		a.log.Warn("notify", "error", nerr)
	}
}

// counting forwards to a platform and counts successful injections.
type counting struct {
	platform.Platform
	n *metrics.Counter
}

func (c counting) Inject(ctx context.Context, act platform.Action) error {
	if err := c.Platform.Inject(ctx, act); err != nil {
		return err
	}
	c.n.Inc()
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
