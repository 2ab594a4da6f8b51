package service

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

// DefaultNotificationLimit caps List.
const DefaultNotificationLimit = 100

// NotificationService serves a recipient's notifications.
type NotificationService struct {
	repo repository.NotificationRepository
	pub  EventPublisher
	log  logger.Logger
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(repo repository.NotificationRepository, pub EventPublisher, log logger.Logger) *NotificationService {
	return &NotificationService{repo: repo, pub: orPublisher(pub), log: orLogger(log, "notification")}
}

// List returns the newest notifications of the signed-in user.
func (s *NotificationService) List(ctx context.Context, sess *session.Session, limit int) ([]*domain.Notification, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultNotificationLimit {
		limit = DefaultNotificationLimit
	}
	return s.repo.ListByUser(ctx, sess.UserID, limit)
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, sess *session.Session) (int64, error) {
	if err := requireSession(sess); err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, sess.UserID)
}

// MarkRead marks one notification read. Only its recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, sess *session.Session, id string) error {
	if err := s.owned(ctx, sess, id); err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, sess.UserID)
	return nil
}

// MarkAllRead marks every notification of the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, sess *session.Session) (int64, error) {
	if err := requireSession(sess); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(ctx, sess.UserID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.changed(ctx, sess.UserID)
	}
	return n, nil
}

// Delete removes one notification. Only its recipient may do so.
func (s *NotificationService) Delete(ctx context.Context, sess *session.Session, id string) error {
	if err := s.owned(ctx, sess, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, sess.UserID)
	return nil
}

func (s *NotificationService) owned(ctx context.Context, sess *session.Session, id string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != sess.UserID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *NotificationService) changed(ctx context.Context, userID string) {
	notify(ctx, s.log, s.pub, domain.UserNotificationsTopic(userID), domain.EventNotificationsChanged, nil)
}
