package dispatch

import (
	"sync"

	"github.com/zen-systems/taskgate/pkg/schema"
)

// Registry tracks in-flight routing results keyed by execution ID. It exists
// for concurrency accounting only: entries are added at dispatch entry and
// always removed on completion, success or failure.
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*schema.RoutingResult
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{inflight: make(map[string]*schema.RoutingResult)}
}

// Add registers an in-flight result.
func (r *Registry) Add(executionID string, result *schema.RoutingResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[executionID] = result
}

// Remove drops an entry. Removing an unknown ID is a no-op.
func (r *Registry) Remove(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, executionID)
}

// Active returns the number of in-flight requests.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Contains reports whether an execution ID is still in flight.
func (r *Registry) Contains(executionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[executionID]
	return ok
}
