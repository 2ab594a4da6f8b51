package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dnspotify/server/internal/domain"
)

// CredentialRepository stores sign-in credentials.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	GetByEmail(ctx context.Context, email string) (*domain.Credential, error)
	GetByProviderUID(ctx context.Context, providerUID string) (*domain.Credential, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)
}

// ProfileRepository stores user profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.UserProfile) error
	Upsert(ctx context.Context, profile *domain.UserProfile) error
	GetByID(ctx context.Context, id string) (*domain.UserProfile, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
}

// SongRepository stores songs and their denormalized counters.
type SongRepository interface {
	Create(ctx context.Context, song *domain.Song) error
	Upsert(ctx context.Context, song *domain.Song) error
	GetByID(ctx context.Context, id string) (*domain.Song, error)
	List(ctx context.Context) ([]*domain.Song, error)
	ListByArtist(ctx context.Context, artistID string) ([]*domain.Song, error)
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Song, error)
	Delete(ctx context.Context, id string) error
	AdjustLikes(ctx context.Context, id string, delta int64) (int64, error)
	IncrementPlays(ctx context.Context, id string) error
	ReconcileLikeCounts(ctx context.Context) (int64, error)
}

// AlbumRepository stores albums.
type AlbumRepository interface {
	Create(ctx context.Context, album *domain.Album) error
	Upsert(ctx context.Context, album *domain.Album) error
	GetByID(ctx context.Context, id string) (*domain.Album, error)
}

// LikeRepository stores like edges.
// Create and Delete report whether an edge was actually written or removed.
type LikeRepository interface {
	Create(ctx context.Context, like *domain.Like) (bool, error)
	Delete(ctx context.Context, userID, songID string) (bool, error)
	Exists(ctx context.Context, userID, songID string) (bool, error)
	ListSongIDs(ctx context.Context, userID string) ([]string, error)
}

// FavouriteRepository stores the favourites set of a profile.
type FavouriteRepository interface {
	Add(ctx context.Context, userID, songID string) error
	Remove(ctx context.Context, userID, songID string) error
	ListSongIDs(ctx context.Context, userID string) ([]string, error)
}

// FollowRepository stores follow edges.
type FollowRepository interface {
	Create(ctx context.Context, follow *domain.Follow) error
	Delete(ctx context.Context, followerID, artistID string) error
	ListByFollower(ctx context.Context, followerID string) ([]*domain.Follow, error)
	ListFollowerIDs(ctx context.Context, artistID string) ([]string, error)
	CountFollowers(ctx context.Context, artistID string) (int64, error)
}

// NotificationRepository stores follower notifications.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*domain.Notification) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// CommentRepository stores song comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListBySong(ctx context.Context, songID string) ([]*domain.Comment, error)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows to the given domain error.
func notFound(err, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
