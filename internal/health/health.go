// Package health aggregates readiness probes for the settlement core's
// dependencies: the Horizon instance, the database when one is configured,
// and the chain observer's stream connection. The server exposes the
// aggregate on /readyz.
package health

import (
	"context"
	"sync"
)

// Status is one probe's verdict. Detail carries the failure cause and is
// empty for healthy probes.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single dependency. Implementations should honor ctx
// deadlines; a hung probe blocks the whole readiness response.
type Checker func(ctx context.Context) Status

// Registry runs a fixed set of named probes on demand.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

type probe struct {
	name  string
	check Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe under name. Probes run in registration order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every probe and reports the overall verdict together with
// the individual results. Overall health requires every probe to pass.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(probes))
	for i, p := range probes {
		statuses[i] = p.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
