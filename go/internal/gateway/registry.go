package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks which connection belongs to which player and room. Every
// cross-connection lookup goes through its one mutex.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	rooms      map[uuid.UUID]map[string]*Connection
	connGame   map[string]uuid.UUID
	connPlayer map[string]uuid.UUID
	playerConn map[uuid.UUID]string
	adminGame  map[string]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]*Connection),
		rooms:      make(map[uuid.UUID]map[string]*Connection),
		connGame:   make(map[string]uuid.UUID),
		connPlayer: make(map[string]uuid.UUID),
		playerConn: make(map[uuid.UUID]string),
		adminGame:  make(map[string]uuid.UUID),
	}
}

// BindPlayer adds conn to the game's room as playerID. If the player was
// already bound to another connection, that connection is unbound and returned.
func (r *Registry) BindPlayer(conn *Connection, gameID, playerID uuid.UUID) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var replaced *Connection
	if oldID, ok := r.playerConn[playerID]; ok && oldID != conn.ID {
		replaced = r.conns[oldID]
		r.unbindLocked(oldID)
	}

	r.addLocked(conn, gameID)
	r.connPlayer[conn.ID] = playerID
	r.playerConn[playerID] = conn.ID
	return replaced
}

// BindAdmin adds conn to the game's room as an administrator
func (r *Registry) BindAdmin(conn *Connection, gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addLocked(conn, gameID)
	r.adminGame[conn.ID] = gameID
}

// Binding describes what a connection was bound to
type Binding struct {
	GameID   uuid.UUID
	PlayerID uuid.UUID
	IsAdmin  bool
}

// Lookup returns the binding of connID
func (r *Registry) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindingLocked(connID)
}

// Unbind removes connID from every map and returns what it was bound to.
// Unknown connections return ok=false.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindingLocked(connID)
	if ok {
		r.unbindLocked(connID)
	}
	return b, ok
}

// Room returns a snapshot of the connections in gameID's room
func (r *Registry) Room(gameID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[gameID]
	out := make([]*Connection, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// PlayerConnection returns the connection currently bound to playerID
func (r *Registry) PlayerConnection(playerID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.playerConn[playerID]
	if !ok {
		return nil, false
	}
	c, ok := r.conns[id]
	return c, ok
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Connections int            `json:"connections"`
	Players     int            `json:"players"`
	Admins      int            `json:"admins"`
	Rooms       map[string]int `json:"rooms"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]int, len(r.rooms))
	for id, room := range r.rooms {
		rooms[id.String()] = len(room)
	}
	return Stats{
		Connections: len(r.conns),
		Players:     len(r.playerConn),
		Admins:      len(r.adminGame),
		Rooms:       rooms,
	}
}

func (r *Registry) bindingLocked(connID string) (Binding, bool) {
	gameID, ok := r.connGame[connID]
	if !ok {
		return Binding{}, false
	}
	b := Binding{GameID: gameID}
	if pid, ok := r.connPlayer[connID]; ok {
		b.PlayerID = pid
	}
	_, b.IsAdmin = r.adminGame[connID]
	return b, true
}

func (r *Registry) addLocked(conn *Connection, gameID uuid.UUID) {
	// a connection lives in exactly one room
	if _, ok := r.connGame[conn.ID]; ok {
		r.unbindLocked(conn.ID)
	}
	room, ok := r.rooms[gameID]
	if !ok {
		room = make(map[string]*Connection)
		r.rooms[gameID] = room
	}
	room[conn.ID] = conn
	r.conns[conn.ID] = conn
	r.connGame[conn.ID] = gameID
}

func (r *Registry) unbindLocked(connID string) {
	if gameID, ok := r.connGame[connID]; ok {
		if room := r.rooms[gameID]; room != nil {
			delete(room, connID)
			if len(room) == 0 {
				delete(r.rooms, gameID)
			}
		}
	}
	if pid, ok := r.connPlayer[connID]; ok {
		if r.playerConn[pid] == connID {
			delete(r.playerConn, pid)
		}
	}
	delete(r.conns, connID)
	delete(r.connGame, connID)
	delete(r.connPlayer, connID)
	delete(r.adminGame, connID)
}
