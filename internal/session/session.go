package session

import (
	"sync"

	"duel/internal/types"
	"duel/internal/utils"
)

// Registry tracks live connections and the broadcast groups (rooms) they belong to.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*types.Client
	rooms   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*types.Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) AddClient(c *types.Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

// RemoveClient forgets the connection and drops it from every room.
func (r *Registry) RemoveClient(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)
	for roomID, members := range r.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

func (r *Registry) IsConnected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[id]
	return ok
}

func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// JoinRoom adds the given connections to a broadcast group. Unknown ids are skipped.
func (r *Registry) JoinRoom(roomID string, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{}, len(ids))
		r.rooms[roomID] = members
	}
	for _, id := range ids {
		if _, live := r.clients[id]; live {
			members[id] = struct{}{}
		}
	}
}

func (r *Registry) DissolveRoom(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
}

// Emit sends one event to one connection. A missing connection is not an error.
func (r *Registry) Emit(id, typ string, data any) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return false
	}
	return utils.SendMessage(c.Send, typ, typ, data)
}

// Broadcast fans an event out to every member of the room.
func (r *Registry) Broadcast(roomID, typ string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.rooms[roomID] {
		if c, ok := r.clients[id]; ok {
			utils.SendMessage(c.Send, typ, typ, data)
		}
	}
}
