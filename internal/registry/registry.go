// Package registry tracks the connections that take part in the timestamp
// fanout. It is safe for concurrent use.
package registry

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotRegistered is returned by Send when the identifier is not (or no
// longer) a member of the registry.
var ErrNotRegistered = errors.New("registry: connection not registered")

// Sender delivers a single text message to one connection.
type Sender interface {
	Send(msg string) error
}

// Registry is a set of connection identifiers, each bound to the Sender used
// to address it.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Sender
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{members: make(map[string]Sender)}
}

// Register adds id to the registry. Registering an id that is already present
// is a no-op and reports false.
func (r *Registry) Register(id string, s Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = s
	return true
}

// Deregister removes id. Removing an absent id is a no-op and reports false.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[id]
	return ok
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}

// Snapshot returns the registered identifiers in lexical order. The returned
// slice is owned by the caller; later mutations of the registry do not affect it.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Send delivers msg to the connection registered under id. The lock is not
// held while the Sender runs.
func (r *Registry) Send(id, msg string) error {
	r.mu.RLock()
	s, ok := r.members[id]
	r.mu.RUnlock()

	if !ok {
		return ErrNotRegistered
	}
	return s.Send(msg)
}
