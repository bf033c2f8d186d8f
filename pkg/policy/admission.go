package policy

import (
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Denial reasons surfaced by Admit.
const (
	ReasonRateLimit         = "rate_limit_exceeded"
	ReasonQueueFull         = "queue_full"
	ReasonResourceLimit     = "resource_limit"
	ReasonClientConcurrency = "client_concurrency_exceeded"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Approved bool
	Reason   string
}

type admissionState struct {
	cfg   config.AdmissionConfig
	clock types.Clock

	mu        sync.Mutex
	windows   map[string][]time.Time // clientIP -> request timestamps
	active    map[string]string      // sagaID -> clientIP
	perClient map[string]int         // clientIP -> active saga count
}

func newAdmissionState(cfg config.AdmissionConfig, clock types.Clock) *admissionState {
	return &admissionState{
		cfg:       cfg,
		clock:     clock,
		windows:   make(map[string][]time.Time),
		active:    make(map[string]string),
		perClient: make(map[string]int),
	}
}

// Admit runs the admission checks in order: per-client sliding-window rate
// limit, per-client concurrency cap, queue depth, global saga limit. On
// approval the saga enters the active set; Release must be called when it
// terminates.
func (p *Policy) Admit(sagaID, clientIP string, queueSize, activeSagas int) Decision {
	d := p.admission.admit(sagaID, clientIP, queueSize, activeSagas)
	if d.Approved {
		p.emit(types.TopicAdmissionApproved, map[string]any{
			"sagaId":   sagaID,
			"clientIp": clientIP,
		}, sagaID, "")
		return d
	}

	p.recordViolation("admission_denied", map[string]any{
		"sagaId":   sagaID,
		"clientIp": clientIP,
		"reason":   d.Reason,
	})
	p.emit(types.TopicAdmissionDenied, map[string]any{
		"sagaId":   sagaID,
		"clientIp": clientIP,
		"reason":   d.Reason,
	}, sagaID, "")
	return d
}

// Release removes a terminated saga from the active set.
func (p *Policy) Release(sagaID string) {
	p.admission.release(sagaID)
}

// ActiveSagas reports the admitted, unreleased saga count.
func (p *Policy) ActiveSagas() int {
	return p.admission.activeCount()
}

func (a *admissionState) admit(sagaID, clientIP string, queueSize, activeSagas int) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	window := a.cfg.Window.D()

	// Prune the client's window before counting.
	times := a.windows[clientIP]
	kept := times[:0]
	for _, t := range times {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	a.windows[clientIP] = kept

	if a.cfg.MaxRequests > 0 && len(kept) >= a.cfg.MaxRequests {
		return Decision{Reason: ReasonRateLimit}
	}
	if a.cfg.MaxPerClientConcurrent > 0 && a.perClient[clientIP] >= a.cfg.MaxPerClientConcurrent {
		return Decision{Reason: ReasonClientConcurrency}
	}
	if a.cfg.MaxQueueSize > 0 && queueSize >= a.cfg.MaxQueueSize {
		return Decision{Reason: ReasonQueueFull}
	}
	if a.cfg.MaxConcurrentSagas > 0 && activeSagas >= a.cfg.MaxConcurrentSagas {
		return Decision{Reason: ReasonResourceLimit}
	}

	a.windows[clientIP] = append(a.windows[clientIP], now)
	a.active[sagaID] = clientIP
	a.perClient[clientIP]++
	return Decision{Approved: true}
}

func (a *admissionState) release(sagaID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	clientIP, ok := a.active[sagaID]
	if !ok {
		return
	}
	delete(a.active, sagaID)
	if a.perClient[clientIP] > 1 {
		a.perClient[clientIP]--
	} else {
		delete(a.perClient, clientIP)
	}
}

func (a *admissionState) activeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}
