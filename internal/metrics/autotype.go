package metrics

import "time"

// AutoType holds the metrics recorded by the auto-type orchestrator.
type AutoType struct {
	registry *Registry
	started  time.Time

	Triggers         *Counter
	TriggersIgnored  *Counter
	PendingQueued    *Counter
	Runs             *Counter
	RunFailures      *Counter
	WindowMismatches *Counter
	PickerShown      *Counter
	Actions          *Counter

	Running       *Gauge
	Pending       *Gauge
	UptimeSeconds *Gauge

	RunDuration    *Histogram
	PickerDuration *Histogram
}

// NewAutoType registers the auto-type metrics on r. A nil r gets a fresh
// registry in the "autotype" namespace.
func NewAutoType(r *Registry) *AutoType {
	if r == nil {
		r = NewRegistry("autotype")
	}
	return &AutoType{
		registry: r,
		started:  time.Now(),

		Triggers:         r.Counter("triggers_total", "Auto-type triggers received", nil),
		TriggersIgnored:  r.Counter("triggers_ignored_total", "Triggers dropped because a run or picker was active", nil),
		PendingQueued:    r.Counter("pending_queued_total", "Triggers held until entries were opened", nil),
		Runs:             r.Counter("runs_total", "Auto-type runs started", nil),
		RunFailures:      r.Counter("run_failures_total", "Runs that ended with an error", nil),
		WindowMismatches: r.Counter("window_mismatches_total", "Runs aborted because the target window changed", nil),
		PickerShown:      r.Counter("picker_shown_total", "Times the entry picker was opened", nil),
		Actions:          r.Counter("actions_total", "Input actions injected", nil),

		Running:       r.Gauge("running", "1 while a run is in progress", nil),
		Pending:       r.Gauge("pending", "1 while a trigger is waiting for entries", nil),
		UptimeSeconds: r.Gauge("uptime_seconds", "Seconds since the daemon started", nil),

		RunDuration:    r.Histogram("run_duration_seconds", "Time from pipeline start to last injected action", nil, nil),
		PickerDuration: r.Histogram("picker_duration_seconds", "Time the user spent in the picker", nil, nil),
	}
}

// Registry returns the registry the metrics live in.
func (m *AutoType) Registry() *Registry { return m.registry }

// UpdateUptime refreshes UptimeSeconds.
func (m *AutoType) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}
