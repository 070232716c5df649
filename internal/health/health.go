package health

import (
	"sync"
	"time"
)

// SourceStatus is one upstream source's liveness.
type SourceStatus struct {
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error,omitempty"`
}

// Check reports a source's current status when the registry is polled.
type Check func() SourceStatus

// Report is the aggregate health view.
type Report struct {
	Status  string                  `json:"status"` // healthy, degraded, unhealthy
	Sources map[string]SourceStatus `json:"sources"`
	Uptime  string                  `json:"uptime"`
}

// Registry collects per-source checks. Register before serving; checks
// run on demand.
type Registry struct {
	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checks:  make(map[string]Check),
		started: time.Now(),
	}
}

// Register adds a named source check, replacing any previous one.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Snapshot polls every check. All sources up is healthy, some up is
// degraded, none up is unhealthy. No sources registered is healthy.
func (r *Registry) Snapshot() Report {
	r.mu.RLock()
	checks := make(map[string]Check, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	started := r.started
	r.mu.RUnlock()

	report := Report{
		Sources: make(map[string]SourceStatus, len(checks)),
		Uptime:  time.Since(started).Round(time.Second).String(),
	}

	up := 0
	for name, check := range checks {
		status := check()
		report.Sources[name] = status
		if status.Connected {
			up++
		}
	}

	switch {
	case len(checks) == 0 || up == len(checks):
		report.Status = "healthy"
	case up > 0:
		report.Status = "degraded"
	default:
		report.Status = "unhealthy"
	}
	return report
}
