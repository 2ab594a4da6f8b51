package ws

import (
	"errors"
	"sync/atomic"
)

// DefaultMaxConnections caps sockets per instance.
const DefaultMaxConnections = 10000

// ErrConnectionLimitExceeded is returned when the instance is full.
var ErrConnectionLimitExceeded = errors.New("connection limit exceeded")

// ConnectionLimiter is a non-blocking counting semaphore.
type ConnectionLimiter struct {
	maxConnections int32
	semaphore      chan struct{}
	currentCount   int32
}

// NewConnectionLimiter creates a limiter. Non-positive max uses the default.
func NewConnectionLimiter(maxConnections int) *ConnectionLimiter {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &ConnectionLimiter{
		maxConnections: int32(maxConnections),
		semaphore:      make(chan struct{}, maxConnections),
	}
}

// Acquire takes a slot or fails immediately.
func (l *ConnectionLimiter) Acquire() error {
	select {
	case l.semaphore <- struct{}{}:
		atomic.AddInt32(&l.currentCount, 1)
		return nil
	default:
		return ErrConnectionLimitExceeded
	}
}

// Release returns a slot. Extra releases are ignored.
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.semaphore:
		atomic.AddInt32(&l.currentCount, -1)
	default:
	}
}

// CurrentCount returns the slots in use.
func (l *ConnectionLimiter) CurrentCount() int32 { return atomic.LoadInt32(&l.currentCount) }

// MaxConnections returns the capacity.
func (l *ConnectionLimiter) MaxConnections() int32 { return l.maxConnections }

// Available returns the free slots.
func (l *ConnectionLimiter) Available() int32 { return l.maxConnections - l.CurrentCount() }
