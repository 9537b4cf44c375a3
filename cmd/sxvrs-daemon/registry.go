package main

import (
	"sync"

	"github.com/zebatus/sxvrs-go/internal/health"
)

// statusRegistry collects the latest health.ServiceInfo per camera so the
// /healthz and /metrics handlers always see a consistent fleet-wide
// snapshot, independent of per-camera Report timing.
type statusRegistry struct {
	mu       sync.Mutex
	services map[string]health.ServiceInfo
}

func newStatusRegistry() *statusRegistry {
	return &statusRegistry{services: make(map[string]health.ServiceInfo)}
}

func (r *statusRegistry) update(info health.ServiceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[info.Name] = info
}

// Services implements health.StatusProvider.
func (r *statusRegistry) Services() []health.ServiceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]health.ServiceInfo, 0, len(r.services))
	for _, info := range r.services {
		out = append(out, info)
	}
	return out
}
