package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the JSON body served by the health and readiness
// endpoints.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// GateFunc samples a live readiness signal, such as dead-letter backlog or
// queue saturation. A false result keeps /ready at 503 with the detail in
// the response body.
type GateFunc func() (ok bool, detail string)

type componentState struct {
	healthy bool
	detail  string
	updated time.Time
}

type healthRegistry struct {
	mu         sync.RWMutex
	components map[string]componentState
	gates      map[string]GateFunc
	version    string
	startTime  time.Time
}

var health = &healthRegistry{
	components: make(map[string]componentState),
	gates:      make(map[string]GateFunc),
	startTime:  time.Now(),
}

// SetVersion sets the version string reported by the health endpoints.
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// RegisterComponent records a component's lifecycle health. Components are
// registered as they start; a process with none registered is not ready.
func RegisterComponent(name string, healthy bool, detail string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[name] = componentState{
		healthy: healthy,
		detail:  detail,
		updated: time.Now(),
	}
}

// UpdateComponent updates a registered component's health.
func UpdateComponent(name string, healthy bool, detail string) {
	RegisterComponent(name, healthy, detail)
}

// RegisterGate installs a readiness gate under a name, replacing any gate
// already registered under it.
func RegisterGate(name string, fn GateFunc) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.gates[name] = fn
}

// UnregisterGate removes a readiness gate.
func UnregisterGate(name string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	delete(health.gates, name)
}

// GetHealth aggregates component lifecycle health: unhealthy when any
// registered component is down.
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(health.components))
	for name, comp := range health.components {
		if comp.healthy {
			components[name] = "healthy"
			continue
		}
		status = "unhealthy"
		components[name] = "unhealthy: " + comp.detail
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    health.version,
		Uptime:     time.Since(health.startTime).String(),
		StartTime:  health.startTime,
	}
}

// GetReadiness reports whether the process should receive traffic: every
// registered component must be healthy and every readiness gate must pass.
// Gates sample live signals (dead-letter backlog, queue saturation, state
// degradation) so readiness can drop while the components themselves stay
// up.
func GetReadiness() HealthStatus {
	health.mu.RLock()
	componentCount := len(health.components)
	components := make(map[string]string, componentCount+len(health.gates))
	status := "ready"
	message := ""
	for name, comp := range health.components {
		if comp.healthy {
			components[name] = "ready"
			continue
		}
		status = "not_ready"
		message = "waiting for " + name
		components[name] = "not ready: " + comp.detail
	}
	gateNames := make([]string, 0, len(health.gates))
	for name := range health.gates {
		gateNames = append(gateNames, name)
	}
	gates := make(map[string]GateFunc, len(health.gates))
	for name, fn := range health.gates {
		gates[name] = fn
	}
	version := health.version
	startTime := health.startTime
	health.mu.RUnlock()

	if componentCount == 0 {
		status = "not_ready"
		message = "no components registered"
	}

	// Gates run outside the registry lock; they read other components'
	// stats and must not nest under it.
	sort.Strings(gateNames)
	for _, name := range gateNames {
		ok, detail := gates[name]()
		if ok {
			components[name] = "ready"
			continue
		}
		status = "not_ready"
		if message == "" {
			message = detail
		}
		components[name] = "not ready: " + detail
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    version,
		Uptime:     time.Since(startTime).String(),
		StartTime:  startTime,
	}
}

// HealthHandler serves /health: 503 when any component is unhealthy.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := GetHealth()
		code := http.StatusOK
		if st.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}
}

// ReadyHandler serves /ready: 503 until every component and gate passes.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := GetReadiness()
		code := http.StatusOK
		if st.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}
}

// LivenessHandler serves /livez: 200 whenever the process can answer.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(health.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
