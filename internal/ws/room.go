package ws

import (
	"errors"
	"sync"
)

// DefaultMaxPerUser caps simultaneous sockets of one user.
const DefaultMaxPerUser = 16

// ErrUserConnectionLimit is returned when a user already has too many sockets.
var ErrUserConnectionLimit = errors.New("too many connections for user")

// Room groups connections by user.
type Room struct {
	rooms      map[string]map[string]*Connection
	maxPerUser int
	mu         sync.RWMutex
}

// NewRoom creates a room with a per-user cap.
func NewRoom(maxPerUser int) *Room {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Room{
		rooms:      make(map[string]map[string]*Connection),
		maxPerUser: maxPerUser,
	}
}

// Join adds conn to its user's room.
func (r *Room) Join(userID string, conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[userID]
	if !ok {
		conns = make(map[string]*Connection)
		r.rooms[userID] = conns
	}
	if len(conns) >= r.maxPerUser {
		return ErrUserConnectionLimit
	}
	conns[conn.ID] = conn
	return nil
}

// Leave removes a connection. Empty rooms are dropped.
func (r *Room) Leave(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.rooms[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.rooms, userID)
		}
	}
}

// GetUserConnections returns the active connections of a user.
func (r *Room) GetUserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[userID]
	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		if conn.IsActive() {
			out = append(out, conn)
		}
	}
	return out
}

// GetUserConnectionCount returns how many active sockets a user holds.
func (r *Room) GetUserConnectionCount(userID string) int {
	return len(r.GetUserConnections(userID))
}

// IsUserOnline reports whether the user has an active socket.
func (r *Room) IsUserOnline(userID string) bool {
	return r.GetUserConnectionCount(userID) > 0
}

// GetOnlineUsers lists users with at least one active socket.
func (r *Room) GetOnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.rooms))
	for userID, conns := range r.rooms {
		for _, conn := range conns {
			if conn.IsActive() {
				users = append(users, userID)
				break
			}
		}
	}
	return users
}

// RoomStats summarises the rooms.
type RoomStats struct {
	TotalRooms            int
	TotalConnections      int
	MaxConnectionsPerUser int
	AvgConnectionsPerUser float64
}

// GetStats returns room statistics.
func (r *Room) GetStats() RoomStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RoomStats{TotalRooms: len(r.rooms)}
	for _, conns := range r.rooms {
		active := 0
		for _, conn := range conns {
			if conn.IsActive() {
				active++
			}
		}
		stats.TotalConnections += active
		if active > stats.MaxConnectionsPerUser {
			stats.MaxConnectionsPerUser = active
		}
	}
	if stats.TotalRooms > 0 {
		stats.AvgConnectionsPerUser = float64(stats.TotalConnections) / float64(stats.TotalRooms)
	}
	return stats
}
