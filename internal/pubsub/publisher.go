// Package pubsub carries change events between requests, streams and
// server instances over Redis pub/sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/logger"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

// Publisher publishes change events. Every event is delivered to the local
// hub first and then to Redis for the other instances.
type Publisher struct {
	rdb        *redispkg.Client
	hub        *Hub
	instanceID string
	log        logger.Logger
	now        func() time.Time

	stats PublisherStats
}

// PublisherStats holds publisher counters.
type PublisherStats struct {
	Published int64
	Failed    int64
}

// NewPublisher creates a publisher. rdb may be nil for a single-instance
// setup, in which case events only reach the local hub.
func NewPublisher(rdb *redispkg.Client, hub *Hub, instanceID string, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.L()
	}
	return &Publisher{
		rdb:        rdb,
		hub:        hub,
		instanceID: instanceID,
		log:        log.WithFields(logger.String("component", "publisher")),
		now:        time.Now,
	}
}

// NewEvent builds an event stamped with this instance.
func (p *Publisher) NewEvent(topic string, typ domain.EventType, data any) (domain.Event, error) {
	ev := domain.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Topic:      topic,
		Timestamp:  p.now().UTC(),
		InstanceID: p.instanceID,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return domain.Event{}, fmt.Errorf("marshal event data: %w", err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// Publish sends one event on topic.
func (p *Publisher) Publish(ctx context.Context, topic string, typ domain.EventType, data any) error {
	ev, err := p.NewEvent(topic, typ, data)
	if err != nil {
		return err
	}
	return p.PublishEvents(ctx, ev)
}

// PublishMany sends the same event to every topic in one pipeline.
func (p *Publisher) PublishMany(ctx context.Context, topics []string, typ domain.EventType, data any) error {
	if len(topics) == 0 {
		return nil
	}
	events := make([]domain.Event, 0, len(topics))
	for _, topic := range topics {
		ev, err := p.NewEvent(topic, typ, data)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}
	return p.PublishEvents(ctx, events...)
}

// PublishEvents delivers prepared events locally and then pipelines them to Redis.
func (p *Publisher) PublishEvents(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if p.hub != nil {
		for _, ev := range events {
			p.hub.Deliver(ev)
		}
	}
	if p.rdb == nil {
		atomic.AddInt64(&p.stats.Published, int64(len(events)))
		return nil
	}

	pipe := p.rdb.Pipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			atomic.AddInt64(&p.stats.Failed, 1)
			return fmt.Errorf("marshal event: %w", err)
		}
		pipe.Publish(ctx, redispkg.PubSubChannel(ev.Topic), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		atomic.AddInt64(&p.stats.Failed, int64(len(events)))
		p.log.Warn("publish failed",
			logger.Int("events", len(events)),
			logger.String("topic", events[0].Topic),
			logger.Error(err),
		)
		return fmt.Errorf("publish events: %w", err)
	}

	atomic.AddInt64(&p.stats.Published, int64(len(events)))
	p.log.Debug("events published",
		logger.Int("events", len(events)),
		logger.String("type", string(events[0].Type)),
	)
	return nil
}

// InstanceID returns the id stamped on published events.
func (p *Publisher) InstanceID() string { return p.instanceID }

// GetStats returns a snapshot of the publisher counters.
func (p *Publisher) GetStats() PublisherStats {
	return PublisherStats{
		Published: atomic.LoadInt64(&p.stats.Published),
		Failed:    atomic.LoadInt64(&p.stats.Failed),
	}
}
