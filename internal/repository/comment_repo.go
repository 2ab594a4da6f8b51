package repository

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// CommentRepositoryImpl is the PostgreSQL comment store.
type CommentRepositoryImpl struct {
	db db.DB
}

// NewCommentRepository creates a comment repository.
func NewCommentRepository(db db.DB) CommentRepository {
	return &CommentRepositoryImpl{db: db}
}

// Create appends a comment.
func (r *CommentRepositoryImpl) Create(ctx context.Context, c *domain.Comment) error {
	query := `
		INSERT INTO comments (id, song_id, artist_id, user_id, user_display_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.SongID, c.ArtistID, c.UserID, c.UserDisplayName, c.Text, c.CreatedAt)
	return err
}

// ListBySong returns a song's comments, oldest first.
func (r *CommentRepositoryImpl) ListBySong(ctx context.Context, songID string) ([]*domain.Comment, error) {
	query := `
		SELECT id, song_id, artist_id, user_id, user_display_name, text, created_at
		FROM comments
		WHERE song_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, songID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.SongID, &c.ArtistID, &c.UserID, &c.UserDisplayName, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
