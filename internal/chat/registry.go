package chat

import "sync"

// Registry maps live connections to the nickname chosen during the handshake.
// Nicknames are not required to be unique.
type Registry struct {
	mu      sync.RWMutex
	clients map[ConnID]string
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[ConnID]string)}
}

// Insert records nickname for id, replacing any previous entry.
func (r *Registry) Insert(id ConnID, nickname string) {
	r.mu.Lock()
	r.clients[id] = nickname
	n := len(r.clients)
	r.mu.Unlock()

	ConnectedClients.Set(float64(n))
}

// Get returns the nickname for id, or UnknownNickname if there is none.
func (r *Registry) Get(id ConnID) string {
	if nickname, ok := r.Lookup(id); ok {
		return nickname
	}
	return UnknownNickname
}

func (r *Registry) Lookup(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nickname, ok := r.clients[id]
	return nickname, ok
}

// Remove deletes the entry for id and returns the nickname it held.
func (r *Registry) Remove(id ConnID) (string, bool) {
	r.mu.Lock()
	nickname, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	n := len(r.clients)
	r.mu.Unlock()

	if ok {
		ConnectedClients.Set(float64(n))
	}
	return nickname, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
