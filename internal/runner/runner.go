// Package runner executes a finalized operation tree against a platform.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autotyped/internal/platform"
	"autotyped/internal/sequence"
)

// ErrUnresolved is returned when a tree still holds a placeholder.
var ErrUnresolved = errors.New("runner: unresolved placeholder")

// InjectionError wraps a platform failure with the action that failed.
// The action's literal text is masked in the message.
type InjectionError struct {
	Action platform.Action
	Err    error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("auto-type: inject %s: %v", e.Action, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// Runner interprets operation trees. It does no parsing or resolution.
type Runner struct {
	Platform platform.Platform

	// KeyDelay is the pause between injected actions until a {DELAY=n}
	// changes it for the rest of the run.
	KeyDelay time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a runner over p.
func New(p platform.Platform, keyDelay time.Duration) *Runner {
	return &Runner{Platform: p, KeyDelay: keyDelay}
}

// Run executes ops depth-first, left to right. The first platform error
// aborts the run without retry. Modifiers pressed for an op are released
// after it even when it fails.
func (r *Runner) Run(ctx context.Context, ops []*sequence.Op) error {
	var unresolved bool
	sequence.Walk(ops, func(op *sequence.Op) bool {
		unresolved = unresolved || op.Kind == sequence.KindPlaceholder
		return !unresolved
	})
	if unresolved {
		return ErrUnresolved
	}

	s := &state{r: r, delay: r.KeyDelay, sleep: r.Sleep}
	if s.sleep == nil {
		s.sleep = sleep
	}
	return s.runOps(ctx, ops)
}

type state struct {
	r        *Runner
	delay    time.Duration
	sleep    func(context.Context, time.Duration) error
	injected int
}

func (s *state) runOps(ctx context.Context, ops []*sequence.Op) error {
	for _, op := range ops {
		if err := s.runOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) runOp(ctx context.Context, op *sequence.Op) (err error) {
	if op.Mods != 0 {
		held, perr := s.press(ctx, op.Mods)
		defer func() {
			if rerr := s.release(ctx, held); err == nil {
				err = rerr
			}
		}()
		if perr != nil {
			return perr
		}
	}

	switch op.Kind {
	case sequence.KindGroup:
		return s.runOps(ctx, op.Ops)
	case sequence.KindKey:
		for i := 0; i < op.Repeat; i++ {
			if err := s.inject(ctx, platform.Press(op.Value)); err != nil {
				return err
			}
		}
	case sequence.KindText:
		if op.Value != "" {
			return s.inject(ctx, platform.Type(op.Value))
		}
	case sequence.KindDelay:
		return s.sleep(ctx, time.Duration(op.Ms)*time.Millisecond)
	case sequence.KindSetDelay:
		s.delay = time.Duration(op.Ms) * time.Millisecond
	case sequence.KindPlaceholder:
		return ErrUnresolved
	}
	return nil
}

func (s *state) press(ctx context.Context, mods sequence.Modifiers) ([]string, error) {
	var held []string
	for _, m := range mods.List() {
		name := m.Name()
		if err := s.inject(ctx, platform.Down(name)); err != nil {
			return held, err
		}
		held = append(held, name)
	}
	return held, nil
}

// release lets go of held in reverse order. It ignores cancellation so
// that a modifier is never left down.
func (s *state) release(ctx context.Context, held []string) error {
	ctx = context.WithoutCancel(ctx)
	var first error
	for i := len(held) - 1; i >= 0; i-- {
		if err := s.r.Platform.Inject(ctx, platform.Up(held[i])); err != nil && first == nil {
			first = &InjectionError{Action: platform.Up(held[i]), Err: err}
		}
	}
	return first
}

func (s *state) inject(ctx context.Context, a platform.Action) error {
	if s.injected > 0 && s.delay > 0 {
		if err := s.sleep(ctx, s.delay); err != nil {
			return err
		}
	}
	s.injected++
	if err := s.r.Platform.Inject(ctx, a); err != nil {
		return &InjectionError{Action: a, Err: err}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
