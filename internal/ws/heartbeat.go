package ws

import (
	"context"
	"time"

	"github.com/dnspotify/server/pkg/logger"
)

const (
	// HeartbeatCheckInterval is how often connections are swept.
	HeartbeatCheckInterval = 15 * time.Second
	// HeartbeatTimeout closes connections silent for longer than this.
	HeartbeatTimeout = 90 * time.Second
)

// HeartbeatChecker closes connections whose client stopped answering pings.
type HeartbeatChecker struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewHeartbeatChecker creates a checker with the default timings.
func NewHeartbeatChecker(manager *Manager) *HeartbeatChecker {
	return &HeartbeatChecker{
		manager:  manager,
		interval: HeartbeatCheckInterval,
		timeout:  HeartbeatTimeout,
		now:      time.Now,
	}
}

// Run sweeps until ctx is done.
func (h *HeartbeatChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkConnections()
		}
	}
}

func (h *HeartbeatChecker) checkConnections() int {
	now := h.now()
	var dead []*Connection

	h.manager.mu.RLock()
	for _, conn := range h.manager.connections {
		if conn.IsActive() && now.Sub(conn.GetLastPongTime()) > h.timeout {
			dead = append(dead, conn)
		}
	}
	h.manager.mu.RUnlock()

	for _, conn := range dead {
		conn.Close("heartbeat timeout")
		h.manager.Unregister(conn)
	}
	if len(dead) > 0 {
		h.manager.log.Info("closed silent connections", logger.Int("count", len(dead)))
	}
	return len(dead)
}

// HeartbeatStats buckets connections by time since the last pong.
type HeartbeatStats struct {
	CheckedAt            time.Time
	TotalConnections     int
	HealthyConnections   int // < 30s
	WarningConnections   int // 30s-60s
	UnhealthyConnections int // > 60s
	MaxPongDelay         time.Duration
}

// GetStats returns the current heartbeat picture.
func (h *HeartbeatChecker) GetStats() HeartbeatStats {
	now := h.now()
	stats := HeartbeatStats{CheckedAt: now}

	h.manager.mu.RLock()
	defer h.manager.mu.RUnlock()

	for _, conn := range h.manager.connections {
		if !conn.IsActive() {
			continue
		}
		elapsed := now.Sub(conn.GetLastPongTime())
		stats.TotalConnections++
		switch {
		case elapsed < 30*time.Second:
			stats.HealthyConnections++
		case elapsed < 60*time.Second:
			stats.WarningConnections++
		default:
			stats.UnhealthyConnections++
		}
		if elapsed > stats.MaxPongDelay {
			stats.MaxPongDelay = elapsed
		}
	}
	return stats
}
