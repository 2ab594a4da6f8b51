package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// LikeRepositoryImpl is the PostgreSQL like-edge store.
type LikeRepositoryImpl struct {
	db db.DB
}

// NewLikeRepository creates a like repository.
func NewLikeRepository(db db.DB) LikeRepository {
	return &LikeRepositoryImpl{db: db}
}

// Create writes the edge. Writing an existing edge is a no-op and reports
// false.
func (r *LikeRepositoryImpl) Create(ctx context.Context, like *domain.Like) (bool, error) {
	query := `
		INSERT INTO likes (id, user_id, song_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, like.ID, like.UserID, like.SongID, like.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the edge if present and reports whether it was.
func (r *LikeRepositoryImpl) Delete(ctx context.Context, userID, songID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM likes WHERE id = $1`, domain.LikeID(userID, songID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether the user likes the song.
func (r *LikeRepositoryImpl) Exists(ctx context.Context, userID, songID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM likes WHERE id = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, domain.LikeID(userID, songID)).Scan(&exists)
	return exists, err
}

// ListSongIDs returns the ids of songs the user likes.
func (r *LikeRepositoryImpl) ListSongIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT song_id FROM likes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
