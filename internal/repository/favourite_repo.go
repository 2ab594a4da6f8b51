package repository

import (
	"context"

	"github.com/dnspotify/server/pkg/db"
)

// FavouriteRepositoryImpl stores UserProfile.favourites as rows.
type FavouriteRepositoryImpl struct {
	db db.DB
}

// NewFavouriteRepository creates a favourites repository.
func NewFavouriteRepository(db db.DB) FavouriteRepository {
	return &FavouriteRepositoryImpl{db: db}
}

// Add puts songID in the set.
func (r *FavouriteRepositoryImpl) Add(ctx context.Context, userID, songID string) error {
	query := `
		INSERT INTO user_favourites (user_id, song_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, song_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userID, songID)
	return err
}

// Remove takes songID out of the set.
func (r *FavouriteRepositoryImpl) Remove(ctx context.Context, userID, songID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_favourites WHERE user_id = $1 AND song_id = $2`, userID, songID)
	return err
}

// ListSongIDs returns the set, most recently added first.
func (r *FavouriteRepositoryImpl) ListSongIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT song_id FROM user_favourites WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}
