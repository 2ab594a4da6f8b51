package service

import (
	"context"
	"errors"
	"time"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/internal/stream"
)

// CatalogReader is the read side of the catalogue.
type CatalogReader interface {
	SongLister
	ArtistSongs(ctx context.Context, artistID string) ([]*domain.Song, error)
}

// RelationReader is the read side of likes, favourites and follows.
type RelationReader interface {
	Liked(ctx context.Context, sess *session.Session) ([]*domain.Song, error)
	Favourites(ctx context.Context, sess *session.Session) ([]*domain.Song, error)
	Following(ctx context.Context, sess *session.Session) ([]*domain.Follow, error)
	FollowerCount(ctx context.Context, artistID string) (int64, error)
}

// NotificationReader lists the notifications of a session.
type NotificationReader interface {
	List(ctx context.Context, sess *session.Session, limit int) ([]*domain.Notification, error)
}

// CommentReader lists the comments of a song.
type CommentReader interface {
	List(ctx context.Context, songID string) ([]*domain.Comment, error)
}

// SessionReader loads a stored session. *session.Store implements it.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// SessionStatus is the snapshot of a user:{id}:session stream.
type SessionStatus struct {
	SessionID string `json:"sessionId"`
	Active    bool   `json:"active"`
}

// FollowerStats is the snapshot of an artist:{id}:followers stream.
type FollowerStats struct {
	ArtistID       string `json:"artistId"`
	FollowersCount int64  `json:"followersCount"`
}

// StreamService opens authorised snapshot feeds by topic.
type StreamService struct {
	src           stream.Source
	catalog       CatalogReader
	relations     RelationReader
	notifications NotificationReader
	comments      CommentReader
	sessions      SessionReader
	settle        time.Duration
}

// StreamDeps groups the collaborators of StreamService.
type StreamDeps struct {
	Source        stream.Source
	Catalog       CatalogReader
	Relations     RelationReader
	Notifications NotificationReader
	Comments      CommentReader
	Sessions      SessionReader
	// Settle overrides stream.DefaultSettle when positive.
	Settle time.Duration
}

// NewStreamService creates a StreamService.
func NewStreamService(d StreamDeps) *StreamService {
	settle := d.Settle
	if settle <= 0 {
		settle = stream.DefaultSettle
	}
	return &StreamService{
		src:           d.Source,
		catalog:       d.Catalog,
		relations:     d.Relations,
		notifications: d.Notifications,
		comments:      d.Comments,
		sessions:      d.Sessions,
		settle:        settle,
	}
}

// Feed returns the stream for topic. User topics are readable by that user
// only, and an artist's follower topic by that artist only.
func (s *StreamService) Feed(sess *session.Session, topic string) (stream.Feed, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	kind, id, ok := domain.ParseTopic(topic)
	if !ok {
		return nil, domain.ErrInvalidTopic
	}
	if err := authorizeTopic(sess, kind, id); err != nil {
		return nil, err
	}

	switch kind {
	case domain.TopicKindSongs:
		return feed(s, func(ctx context.Context) ([]*domain.Song, error) {
			return s.catalog.Songs(ctx, sess, domain.SongFilter{Tab: domain.TabAll})
		}, topic), nil
	case domain.TopicKindArtistSongs:
		return feed(s, func(ctx context.Context) ([]*domain.Song, error) {
			return s.catalog.ArtistSongs(ctx, id)
		}, topic), nil
	case domain.TopicKindArtistFollowers:
		return feed(s, func(ctx context.Context) (FollowerStats, error) {
			n, err := s.relations.FollowerCount(ctx, id)
			return FollowerStats{ArtistID: id, FollowersCount: n}, err
		}, topic), nil
	case domain.TopicKindUserLikes:
		return feed(s, func(ctx context.Context) ([]*domain.Song, error) {
			return s.relations.Liked(ctx, sess)
		}, topic), nil
	case domain.TopicKindUserFavourites:
		return feed(s, func(ctx context.Context) ([]*domain.Song, error) {
			return s.relations.Favourites(ctx, sess)
		}, topic), nil
	case domain.TopicKindUserFollows:
		return feed(s, func(ctx context.Context) ([]*domain.Follow, error) {
			return s.relations.Following(ctx, sess)
		}, topic), nil
	case domain.TopicKindUserNotifications:
		return feed(s, func(ctx context.Context) ([]*domain.Notification, error) {
			return s.notifications.List(ctx, sess, DefaultNotificationLimit)
		}, topic), nil
	case domain.TopicKindSongComments:
		return feed(s, func(ctx context.Context) ([]*domain.Comment, error) {
			return s.comments.List(ctx, id)
		}, topic), nil
	case domain.TopicKindUserSession:
		return feed(s, func(ctx context.Context) (SessionStatus, error) {
			return s.sessionStatus(ctx, sess)
		}, topic), nil
	}
	return nil, domain.ErrInvalidTopic
}

func (s *StreamService) sessionStatus(ctx context.Context, sess *session.Session) (SessionStatus, error) {
	st := SessionStatus{SessionID: sess.ID}
	_, err := s.sessions.Get(ctx, sess.ID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return st, nil
	case err != nil:
		return st, err
	}
	st.Active = true
	return st, nil
}

func feed[T any](s *StreamService, fetch func(context.Context) (T, error), topic string) stream.Feed {
	return stream.New[T](s.src, fetch, topic).WithSettle(s.settle)
}

func authorizeTopic(sess *session.Session, kind domain.TopicKind, id string) error {
	switch kind {
	case domain.TopicKindUserLikes, domain.TopicKindUserFollows, domain.TopicKindUserFavourites,
		domain.TopicKindUserNotifications, domain.TopicKindUserSession:
		if id != sess.UserID {
			return domain.ErrForbidden
		}
	case domain.TopicKindArtistFollowers:
		if id != sess.UserID || sess.Role != domain.RoleArtist {
			return domain.ErrForbidden
		}
	}
	return nil
}
