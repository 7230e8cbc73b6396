package session

import "sync"

// Registry keeps one Manager per client, typically one per open tab.
type Registry struct {
	deps Deps

	mu      sync.Mutex
	clients map[string]*Manager
}

func NewRegistry(d Deps) *Registry {
	return &Registry{deps: d, clients: map[string]*Manager{}}
}

// Manager returns the client's manager, creating it on first use.
func (r *Registry) Manager(client string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.clients[client]
	if !ok {
		m = NewManager(r.deps)
		r.clients[client] = m
	}
	return m
}

// Lookup returns the client's active session.
func (r *Registry) Lookup(client string) (*Session, error) {
	r.mu.Lock()
	m, ok := r.clients[client]
	r.mu.Unlock()
	if !ok {
		return nil, ErrInactive
	}
	s := m.Current()
	if s == nil {
		return nil, ErrInactive
	}
	return s, nil
}

// Drop stops and forgets the client.
func (r *Registry) Drop(client string) {
	r.mu.Lock()
	m, ok := r.clients[client]
	delete(r.clients, client)
	r.mu.Unlock()
	if ok {
		m.Stop()
	}
}

// Close stops every session; used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	ms := make([]*Manager, 0, len(r.clients))
	for _, m := range r.clients {
		ms = append(ms, m)
	}
	r.clients = map[string]*Manager{}
	r.mu.Unlock()
	for _, m := range ms {
		m.Stop()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
