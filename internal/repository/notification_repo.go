package repository

import (
	"context"
	"time"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// NotificationRepositoryImpl is the PostgreSQL notification store.
type NotificationRepositoryImpl struct {
	db db.DB
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(db db.DB) NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

const notificationColumns = `id, user_id, artist_id, artist_name, message, type, read, created_at`

// CreateBatch inserts all notifications in a single statement.
func (r *NotificationRepositoryImpl) CreateBatch(ctx context.Context, ns []*domain.Notification) (int64, error) {
	if len(ns) == 0 {
		return 0, nil
	}
	var (
		ids      = make([]string, len(ns))
		users    = make([]string, len(ns))
		artists  = make([]string, len(ns))
		names    = make([]string, len(ns))
		messages = make([]string, len(ns))
		types    = make([]string, len(ns))
		created  = make([]time.Time, len(ns))
	)
	for i, n := range ns {
		ids[i] = n.ID
		users[i] = n.UserID
		artists[i] = n.ArtistID
		names[i] = n.ArtistName
		messages[i] = n.Message
		types[i] = string(n.Type)
		created[i] = n.CreatedAt
	}

	query := `
		INSERT INTO notifications (id, user_id, artist_id, artist_name, message, type, read, created_at)
		SELECT id, user_id, artist_id, artist_name, message, type, FALSE, created_at
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::timestamptz[])
			AS t(id, user_id, artist_id, artist_name, message, type, created_at)
	`
	tag, err := r.db.Exec(ctx, query, ids, users, artists, names, messages, types, created)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetByID loads a notification.
func (r *NotificationRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrNotificationNotFound)
	}
	return n, nil
}

// ListByUser returns the recipient's notifications, newest first.
func (r *NotificationRepositoryImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnread counts unread notifications of the recipient.
func (r *NotificationRepositoryImpl) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID).Scan(&n)
	return n, err
}

// MarkRead sets the read flag.
func (r *NotificationRepositoryImpl) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead sets the read flag on every unread notification of the user.
func (r *NotificationRepositoryImpl) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a notification.
func (r *NotificationRepositoryImpl) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// DeleteReadBefore purges read notifications created before the cutoff.
func (r *NotificationRepositoryImpl) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE read = TRUE AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row scanner) (*domain.Notification, error) {
	var (
		n   domain.Notification
		typ string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.ArtistID, &n.ArtistName, &n.Message, &typ, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	return &n, nil
}
