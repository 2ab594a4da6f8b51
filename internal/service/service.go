// Package service holds the business operations behind the HTTP API.
package service

import (
	"context"
	"fmt"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

// EventPublisher publishes change events. *pubsub.Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, typ domain.EventType, data any) error
	PublishMany(ctx context.Context, topics []string, typ domain.EventType, data any) error
}

// nopPublisher drops events.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, domain.EventType, any) error { return nil }
func (nopPublisher) PublishMany(context.Context, []string, domain.EventType, any) error {
	return nil
}

// NopPublisher returns a publisher that drops every event.
func NopPublisher() EventPublisher { return nopPublisher{} }

// notify publishes an event. Change events are hints for subscribers, so a
// failure is logged and never fails the operation.
func notify(ctx context.Context, log logger.Logger, pub EventPublisher, topic string, typ domain.EventType, data any) {
	if err := pub.Publish(ctx, topic, typ, data); err != nil {
		log.WithContext(ctx).Warn("publish event failed",
			logger.String("topic", topic),
			logger.String("type", string(typ)),
			logger.Error(err),
		)
	}
}

// remoteWrite tags a store failure as RemoteWriteFailure.
func remoteWrite(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrRemoteWrite, op, err)
}

// requireSession fails with ErrUnauthenticated when there is no session.
func requireSession(sess *session.Session) error {
	if sess == nil || sess.UserID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// requireRole checks the role cached on the session.
func requireRole(sess *session.Session, role domain.Role) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if sess.Role != role {
		return domain.ErrRoleMismatch
	}
	return nil
}

func orLogger(log logger.Logger, component string) logger.Logger {
	if log == nil {
		log = logger.L()
	}
	return log.WithFields(logger.String("component", component))
}

func orPublisher(pub EventPublisher) EventPublisher {
	if pub == nil {
		return NopPublisher()
	}
	return pub
}
