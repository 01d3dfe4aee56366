package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Overall states reported by GetHealth and GetReadiness
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// CriticalComponents gate readiness. An unhealthy critical component makes
// the node unhealthy; any other unhealthy component only degrades it.
var CriticalComponents = []string{"state", "converge"}

// HealthStatus is a point-in-time view of the registry
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

func (c ComponentHealth) describe() string {
	if c.Healthy {
		return StatusHealthy
	}
	return StatusUnhealthy + ": " + c.Message
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	started    time.Time
	version    string
}

func newRegistry(version string) *registry {
	return &registry{
		components: make(map[string]ComponentHealth),
		started:    time.Now(),
		version:    version,
	}
}

var health = newRegistry("")

// SetVersion sets the version string of health responses
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// RegisterComponent records the state of a component, replacing any earlier one
func RegisterComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for components already known
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// Component returns the last reported state of name
func Component(name string) (ComponentHealth, bool) {
	health.mu.RLock()
	defer health.mu.RUnlock()
	c, ok := health.components[name]
	return c, ok
}

func (r *registry) status(state string) HealthStatus {
	return HealthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

// GetHealth reports every registered component
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	out := health.status(StatusHealthy)
	var failing []string
	for name, c := range health.components {
		out.Components[name] = c.describe()
		if c.Healthy {
			continue
		}
		failing = append(failing, name)
		if lo.Contains(CriticalComponents, name) {
			out.Status = StatusUnhealthy
		} else if out.Status == StatusHealthy {
			out.Status = StatusDegraded
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		out.Message = "failing: " + failing[0]
		for _, name := range failing[1:] {
			out.Message += ", " + name
		}
	}
	return out
}

// GetReadiness reports the critical components only. A critical component
// that never registered is not ready.
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	out := health.status(StatusReady)
	for _, name := range CriticalComponents {
		c, ok := health.components[name]
		switch {
		case !ok:
			out.Components[name] = "not registered"
		case c.Healthy:
			out.Components[name] = StatusReady
			continue
		default:
			out.Components[name] = "not ready: " + c.Message
		}
		if out.Status == StatusReady {
			out.Status = StatusNotReady
			out.Message = "waiting for " + name
		}
	}
	return out
}
