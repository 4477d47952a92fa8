// Package health runs the daemon's self checks: whether the entry store
// answers, the input backend can reach a display and the audit log is
// writable. Results are reported through the status command.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"autotyped/internal/platform"
)

// Status is the health of one component or of the daemon as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Error       string        `json:"error,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
}

// Check performs one health check. A returned error marks the component
// unhealthy, or degraded when it is not critical.
type Check func(ctx context.Context) (string, error)

// Component is a named check.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker runs registered components concurrently and keeps the last results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	now        func() time.Time
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		now:        time.Now,
	}
}

// Register adds c, replacing any component with the same name.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = 2 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[comp.Name] = comp
	c.results[comp.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers check under name.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Names returns the registered component names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for n := range c.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check runs every component and returns the results by name.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string]CheckResult, len(comps))
	)
	for _, comp := range comps {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()
			r := c.run(ctx, comp)
			mu.Lock()
			out[comp.Name] = r
			mu.Unlock()
		}(comp)
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range out {
		if _, ok := c.components[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return out
}

func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	msg, err := comp.Check(ctx)
	r := CheckResult{
		Status:      StatusHealthy,
		Message:     msg,
		LastChecked: start,
		Duration:    time.Since(start),
	}
	if err != nil {
		r.Error = err.Error()
		r.Status = StatusDegraded
		if comp.Critical {
			r.Status = StatusUnhealthy
		}
	}
	return r
}

// Results returns the most recent results without running anything.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Overall folds results into one status: any unhealthy result wins, then
// degraded, then unknown.
func Overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		case StatusUnknown:
			if status == StatusHealthy {
				status = StatusUnknown
			}
		}
	}
	return status
}

// PingCheck wraps a connection ping.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) (string, error) {
		if err := ping(ctx); err != nil {
			return "", err
		}
		return "reachable", nil
	}
}

// PlatformCheck probes p when its backend supports it.
func PlatformCheck(p platform.Platform) Check {
	return func(ctx context.Context) (string, error) {
		pr, ok := p.(platform.Prober)
		if !ok {
			return fmt.Sprintf("%T", p), nil
		}
		if err := pr.Probe(ctx); err != nil {
			return "", err
		}
		return "display " + platform.DetectDisplay(), nil
	}
}

// WritableDirCheck verifies that a file can be created next to path.
func WritableDirCheck(path string) Check {
	return func(context.Context) (string, error) {
		dir := filepath.Dir(path)
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return "", err
		}
		name := f.Name()
		f.Close()
		return dir, os.Remove(name)
	}
}

// FuncCheck adapts a plain error-returning function.
func FuncCheck(msg string, fn func() error) Check {
	return func(context.Context) (string, error) {
		if fn == nil {
			return "", errors.New("no check function")
		}
		if err := fn(); err != nil {
			return "", err
		}
		return msg, nil
	}
}
