package supervisor

import (
	"maps"
	"sync"
)

// Registry names the supervisors of long-lived subsystems so their
// snapshots can be reported together.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]*Supervisor{}}
}

// Set registers sup under name; a nil sup removes the entry.
func (r *Registry) Set(name string, sup *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

// Snapshots returns a snapshot of every registered supervisor plus extra,
// which callers use for supervisors that come and go (nil values are skipped).
func (r *Registry) Snapshots(extra map[string]*Supervisor) map[string]SupervisorSnapshot {
	r.mu.RLock()
	all := maps.Clone(r.m)
	r.mu.RUnlock()
	for name, sup := range extra {
		if sup != nil {
			all[name] = sup
		}
	}
	out := make(map[string]SupervisorSnapshot, len(all))
	for name, sup := range all {
		out[name] = sup.Snapshot()
	}
	return out
}
