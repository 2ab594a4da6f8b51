package repository

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// AlbumRepositoryImpl is the PostgreSQL album store.
type AlbumRepositoryImpl struct {
	db db.DB
}

// NewAlbumRepository creates an album repository.
func NewAlbumRepository(db db.DB) AlbumRepository {
	return &AlbumRepositoryImpl{db: db}
}

// Create inserts an album.
func (r *AlbumRepositoryImpl) Create(ctx context.Context, a *domain.Album) error {
	query := `
		INSERT INTO albums (id, title, artist_id, cover_url, song_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.Title, a.ArtistID, a.CoverURL, a.SongCount, a.CreatedAt)
	return err
}

// Upsert inserts or refreshes an album during import.
func (r *AlbumRepositoryImpl) Upsert(ctx context.Context, a *domain.Album) error {
	query := `
		INSERT INTO albums (id, title, artist_id, cover_url, song_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, cover_url = EXCLUDED.cover_url, song_count = EXCLUDED.song_count
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.Title, a.ArtistID, a.CoverURL, a.SongCount, a.CreatedAt)
	return err
}

// GetByID loads an album.
func (r *AlbumRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.Album, error) {
	query := `
		SELECT id, title, artist_id, cover_url, song_count, created_at
		FROM albums
		WHERE id = $1
	`
	var a domain.Album
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Title, &a.ArtistID, &a.CoverURL, &a.SongCount, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrAlbumNotFound)
	}
	return &a, nil
}
