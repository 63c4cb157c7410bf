package presence

import "sync"

// Registry holds one Gate per connected user. Each gate remains the single
// process-wide presence state for that user's client; the registry only
// routes to it.
type Registry struct {
	mu    sync.Mutex
	gates map[string]Gate
}

func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]Gate)}
}

// ForUser returns the user's gate, creating it on first use.
func (r *Registry) ForUser(userID string) Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[userID]
	if !ok {
		g = NewGate()
		r.gates[userID] = g
	}
	return g
}

// SnapshotFor returns the user's presence snapshot. An unknown user has the
// zero snapshot: backgrounded, nothing open — so notifications dispatch.
func (r *Registry) SnapshotFor(userID string) Snapshot {
	r.mu.Lock()
	g, ok := r.gates[userID]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}
	}
	return g.Snapshot()
}
