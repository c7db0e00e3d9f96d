package broadcast

import (
	"sync"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/google/uuid"
)

// Registry is the live set of viewers eligible for broadcast.
type Registry struct {
	mu      sync.RWMutex
	viewers map[uuid.UUID]domain.Viewer
	metrics *metrics.RelayMetrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.RelayMetrics) *Registry {
	return &Registry{
		viewers: make(map[uuid.UUID]domain.Viewer),
		metrics: m,
	}
}

// Add inserts v. Reports false if a viewer with the same ID is already present.
func (r *Registry) Add(v domain.Viewer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.viewers[v.ID()]; exists {
		return false
	}
	r.viewers[v.ID()] = v
	r.observe()
	return true
}

// Remove deletes v by ID. Reports false if it was not present.
func (r *Registry) Remove(v domain.Viewer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.viewers[v.ID()]; !exists {
		return false
	}
	delete(r.viewers, v.ID())
	r.observe()
	return true
}

// Contains reports whether a viewer with v's ID is registered.
func (r *Registry) Contains(v domain.Viewer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.viewers[v.ID()]
	return exists
}

// Snapshot returns the current members. The slice is owned by the caller
// and is not affected by later Add/Remove calls. Order is unspecified.
func (r *Registry) Snapshot() []domain.Viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v)
	}
	return out
}

// Len returns the number of registered viewers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// CloseAll removes every viewer and closes it with reason.
// Used on shutdown.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	viewers := r.viewers
	r.viewers = make(map[uuid.UUID]domain.Viewer)
	r.observe()
	r.mu.Unlock()

	for _, v := range viewers {
		_ = v.Close(reason)
	}
	return len(viewers)
}

// observe must be called with mu held.
func (r *Registry) observe() {
	if r.metrics != nil {
		r.metrics.ActiveViewers.Set(float64(len(r.viewers)))
	}
}
