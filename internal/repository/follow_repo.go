package repository

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// FollowRepositoryImpl is the PostgreSQL follow-edge store.
type FollowRepositoryImpl struct {
	db db.DB
}

// NewFollowRepository creates a follow repository.
func NewFollowRepository(db db.DB) FollowRepository {
	return &FollowRepositoryImpl{db: db}
}

// Create writes the edge. The artist name is refreshed if it already exists.
func (r *FollowRepositoryImpl) Create(ctx context.Context, f *domain.Follow) error {
	query := `
		INSERT INTO follows (follower_id, artist_id, artist_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (follower_id, artist_id) DO UPDATE SET artist_name = EXCLUDED.artist_name
	`
	_, err := r.db.Exec(ctx, query, f.FollowerID, f.ArtistID, f.ArtistName, f.CreatedAt)
	return err
}

// Delete removes the edge if present.
func (r *FollowRepositoryImpl) Delete(ctx context.Context, followerID, artistID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND artist_id = $2`, followerID, artistID)
	return err
}

// ListByFollower returns who the user follows, newest first.
func (r *FollowRepositoryImpl) ListByFollower(ctx context.Context, followerID string) ([]*domain.Follow, error) {
	query := `
		SELECT follower_id, artist_id, artist_name, created_at
		FROM follows
		WHERE follower_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, followerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	follows := make([]*domain.Follow, 0)
	for rows.Next() {
		var f domain.Follow
		if err := rows.Scan(&f.FollowerID, &f.ArtistID, &f.ArtistName, &f.CreatedAt); err != nil {
			return nil, err
		}
		follows = append(follows, &f)
	}
	return follows, rows.Err()
}

// ListFollowerIDs returns the followers of an artist.
func (r *FollowRepositoryImpl) ListFollowerIDs(ctx context.Context, artistID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT follower_id FROM follows WHERE artist_id = $1`, artistID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// CountFollowers counts the followers of an artist.
func (r *FollowRepositoryImpl) CountFollowers(ctx context.Context, artistID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE artist_id = $1`, artistID).Scan(&n)
	return n, err
}
