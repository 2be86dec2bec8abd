package model

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps client identifiers to model clients. It is process-wide
// configuration: populated at platform start, immutable thereafter except
// through the explicit mutation API intended for tests.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]Client
	providers map[string]string // id -> provider family
	def       string
}

// NewRegistry returns an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[string]Client),
		providers: make(map[string]string),
	}
}

// Register adds a client under id for the given provider family. The first
// registered client becomes the default.
func (r *Registry) Register(id, provider string, c Client) error {
	if id == "" || c == nil {
		return fmt.Errorf("model: client id and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.clients[id]; dup {
		return fmt.Errorf("model: client %q already registered", id)
	}
	r.clients[id] = c
	r.providers[id] = provider
	if r.def == "" {
		r.def = id
	}
	return nil
}

// SetDefault changes the default client id.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return fmt.Errorf("model: unknown client %q", id)
	}
	r.def = id
	return nil
}

// Client returns the client registered under id, or the default client when
// id is empty.
func (r *Registry) Client(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.def
	}
	c, ok := r.clients[id]
	return c, ok
}

// Select returns the first client (by sorted id) matching the criteria, the
// default when criteria are empty, or an error naming the registered ids.
func (r *Registry) Select(criteria SelectionCriteria) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if criteria.Provider == "" && criteria.Model == "" {
		if c, ok := r.clients[r.def]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("model: no clients registered")
	}
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if criteria.Provider != "" && r.providers[id] != criteria.Provider {
			continue
		}
		if criteria.Model != "" && id != criteria.Model {
			continue
		}
		return r.clients[id], nil
	}
	return nil, fmt.Errorf("model: no client matches criteria %+v (registered: %v)", criteria, ids)
}
