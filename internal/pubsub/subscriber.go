package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/logger"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

// Subscriber relays events published by other instances into the local hub.
type Subscriber struct {
	rdb        *redispkg.Client
	hub        *Hub
	instanceID string
	log        logger.Logger

	reconnectInterval    time.Duration
	maxReconnectAttempts int

	ready     chan struct{}
	readyOnce sync.Once
	stats     SubscriberStats
}

// SubscriberStats holds subscriber counters.
type SubscriberStats struct {
	TotalReceived     int64 `json:"total_received"`
	ProcessedMessages int64 `json:"processed_messages"`
	FailedMessages    int64 `json:"failed_messages"`
	DroppedMessages   int64 `json:"dropped_messages"` // from this instance
	ReconnectCount    int64 `json:"reconnect_count"`
}

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	InstanceID           string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // 0 retries forever
}

// DefaultSubscriberConfig returns the default configuration.
func DefaultSubscriberConfig(instanceID string) *SubscriberConfig {
	return &SubscriberConfig{
		InstanceID:           instanceID,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 0,
	}
}

// NewSubscriber creates a subscriber.
func NewSubscriber(rdb *redispkg.Client, hub *Hub, cfg *SubscriberConfig, log logger.Logger) *Subscriber {
	if cfg == nil {
		cfg = DefaultSubscriberConfig("default")
	}
	if log == nil {
		log = logger.L()
	}
	return &Subscriber{
		rdb:                  rdb,
		hub:                  hub,
		instanceID:           cfg.InstanceID,
		log:                  log.WithFields(logger.String("component", "subscriber")),
		reconnectInterval:    cfg.ReconnectInterval,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		ready:                make(chan struct{}),
	}
}

// Ready is closed once the first subscription is confirmed.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Run subscribes to every event channel and blocks until ctx is done,
// reconnecting when the connection drops.
func (s *Subscriber) Run(ctx context.Context) error {
	attempts := 0
	pattern := redispkg.PubSubPattern()

	for {
		if ctx.Err() != nil {
			return nil
		}

		ps := s.rdb.Universal().PSubscribe(ctx, pattern)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			s.log.Warn("subscribe failed", logger.Error(err))
		} else {
			attempts = 0
			s.readyOnce.Do(func() { close(s.ready) })
			s.log.Info("subscribed", logger.String("pattern", pattern), logger.String("instance_id", s.instanceID))

			err = s.process(ctx, ps)
			if cerr := ps.Close(); cerr != nil {
				s.log.Debug("close pubsub", logger.Error(cerr))
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("subscription lost", logger.Error(err))
		}

		attempts++
		if s.maxReconnectAttempts > 0 && attempts > s.maxReconnectAttempts {
			return fmt.Errorf("subscriber gave up after %d attempts", s.maxReconnectAttempts)
		}
		atomic.AddInt64(&s.stats.ReconnectCount, 1)

		timer := time.NewTimer(s.reconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Subscriber) process(ctx context.Context, ps *redis.PubSub) error {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("channel closed")
			}
			if msg != nil {
				s.handleMessage(msg)
			}
		}
	}
}

func (s *Subscriber) handleMessage(msg *redis.Message) {
	atomic.AddInt64(&s.stats.TotalReceived, 1)

	var ev domain.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		atomic.AddInt64(&s.stats.FailedMessages, 1)
		s.log.Warn("malformed event", logger.String("channel", msg.Channel), logger.Error(err))
		return
	}

	// Own events already went through the hub when they were published.
	if ev.InstanceID == s.instanceID {
		atomic.AddInt64(&s.stats.DroppedMessages, 1)
		return
	}

	if ev.Topic == "" {
		topic, ok := redispkg.TopicFromChannel(msg.Channel)
		if !ok {
			atomic.AddInt64(&s.stats.FailedMessages, 1)
			return
		}
		ev.Topic = topic
	}

	s.hub.Deliver(ev)
	atomic.AddInt64(&s.stats.ProcessedMessages, 1)
}

// InstanceID returns the id whose events are dropped.
func (s *Subscriber) InstanceID() string { return s.instanceID }

// GetStats returns a snapshot of the subscriber counters.
func (s *Subscriber) GetStats() SubscriberStats {
	return SubscriberStats{
		TotalReceived:     atomic.LoadInt64(&s.stats.TotalReceived),
		ProcessedMessages: atomic.LoadInt64(&s.stats.ProcessedMessages),
		FailedMessages:    atomic.LoadInt64(&s.stats.FailedMessages),
		DroppedMessages:   atomic.LoadInt64(&s.stats.DroppedMessages),
		ReconnectCount:    atomic.LoadInt64(&s.stats.ReconnectCount),
	}
}
