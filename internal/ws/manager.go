package ws

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dnspotify/server/internal/stream"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// Config sizes a Manager.
type Config struct {
	MaxConnections int
	MaxPerUser     int
}

// Manager tracks the open sockets of this instance.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	room      *Room
	limiter   *ConnectionLimiter
	heartbeat *HeartbeatChecker

	metrics *telemetry.Metrics
	log     logger.Logger
	stats   ManagerStats
}

// ManagerStats holds manager counters.
type ManagerStats struct {
	TotalRegistered    int64
	TotalUnregistered  int64
	CurrentConnections int64
}

// NewManager creates a manager. metrics may be nil.
func NewManager(cfg Config, metrics *telemetry.Metrics, log logger.Logger) *Manager {
	if log == nil {
		log = logger.L()
	}
	m := &Manager{
		connections: make(map[string]*Connection),
		room:        NewRoom(cfg.MaxPerUser),
		limiter:     NewConnectionLimiter(cfg.MaxConnections),
		metrics:     metrics,
		log:         log.WithFields(logger.String("component", "ws")),
	}
	m.heartbeat = NewHeartbeatChecker(m)
	return m
}

// Run sweeps silent connections until ctx is done, then closes every socket.
func (m *Manager) Run(ctx context.Context) error {
	m.heartbeat.Run(ctx)
	m.shutdown()
	return nil
}

// Register admits a connection, enforcing the instance and per-user caps.
func (m *Manager) Register(conn *Connection) error {
	if err := m.limiter.Acquire(); err != nil {
		return err
	}
	if err := m.room.Join(conn.UserID, conn); err != nil {
		m.limiter.Release()
		return err
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()

	atomic.AddInt64(&m.stats.TotalRegistered, 1)
	atomic.AddInt64(&m.stats.CurrentConnections, 1)
	if m.metrics != nil {
		m.metrics.WSConnections.Add(context.Background(), 1)
	}
	conn.log.Debug("connection registered")
	return nil
}

// Unregister removes a connection and closes it. It is idempotent.
func (m *Manager) Unregister(conn *Connection) {
	m.mu.Lock()
	_, ok := m.connections[conn.ID]
	delete(m.connections, conn.ID)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.room.Leave(conn.UserID, conn.ID)
	m.limiter.Release()
	conn.Close("unregistered")

	atomic.AddInt64(&m.stats.TotalUnregistered, 1)
	atomic.AddInt64(&m.stats.CurrentConnections, -1)
	if m.metrics != nil {
		m.metrics.WSConnections.Add(context.Background(), -1)
	}
}

// Serve registers conn and pumps feed into it. It blocks until the client
// goes away or the connection is closed.
func (m *Manager) Serve(conn *Connection, feed stream.Feed) error {
	if err := m.Register(conn); err != nil {
		return err
	}
	defer m.Unregister(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go conn.WritePump()
	go func() {
		conn.Pump(ctx, feed.Frames(ctx))
		// a finished feed ends the socket too
		conn.Close("stream ended")
	}()

	conn.ReadPump()
	return nil
}

// CloseUser closes every socket of a user, e.g. after sign-out.
func (m *Manager) CloseUser(userID, reason string) int {
	conns := m.room.GetUserConnections(userID)
	for _, conn := range conns {
		conn.Close(reason)
		m.Unregister(conn)
	}
	return len(conns)
}

// CloseSession closes the sockets opened with one session.
func (m *Manager) CloseSession(userID, sessionID, reason string) int {
	n := 0
	for _, conn := range m.room.GetUserConnections(userID) {
		if conn.SessionID == sessionID {
			conn.Close(reason)
			m.Unregister(conn)
			n++
		}
	}
	return n
}

// GetConnection returns a connection by id.
func (m *Manager) GetConnection(connID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[connID]
	return conn, ok
}

// IsUserOnline reports whether the user has an open socket here.
func (m *Manager) IsUserOnline(userID string) bool {
	return m.room.IsUserOnline(userID)
}

// GetLimiter returns the instance limiter.
func (m *Manager) GetLimiter() *ConnectionLimiter { return m.limiter }

// GetStats returns a summary for the stats endpoint.
func (m *Manager) GetStats() map[string]interface{} {
	roomStats := m.room.GetStats()
	hb := m.heartbeat.GetStats()
	return map[string]interface{}{
		"total_registered":      atomic.LoadInt64(&m.stats.TotalRegistered),
		"total_unregistered":    atomic.LoadInt64(&m.stats.TotalUnregistered),
		"current_connections":   atomic.LoadInt64(&m.stats.CurrentConnections),
		"max_connections":       m.limiter.MaxConnections(),
		"available_connections": m.limiter.Available(),
		"rooms": map[string]interface{}{
			"total":                    roomStats.TotalRooms,
			"max_connections_per_user": roomStats.MaxConnectionsPerUser,
			"avg_connections_per_user": roomStats.AvgConnectionsPerUser,
		},
		"heartbeat": map[string]interface{}{
			"healthy":   hb.HealthyConnections,
			"warning":   hb.WarningConnections,
			"unhealthy": hb.UnhealthyConnections,
			"max_delay": hb.MaxPongDelay.Seconds(),
		},
	}
}

func (m *Manager) shutdown() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.Close("server shutdown")
		m.Unregister(conn)
	}
	if len(conns) > 0 {
		m.log.Info("websocket connections closed", logger.Int("count", len(conns)))
	}
}
