package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// SongRepositoryImpl is the PostgreSQL song store.
type SongRepositoryImpl struct {
	db db.DB
}

// NewSongRepository creates a song repository.
func NewSongRepository(db db.DB) SongRepository {
	return &SongRepositoryImpl{db: db}
}

const songColumns = `id, title, artist_id, artist_display_name, audio_url, cover_url,
		likes_count, plays_count, album_id, created_at`

func scanSong(row scanner) (*domain.Song, error) {
	var s domain.Song
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.ArtistID,
		&s.ArtistDisplayName,
		&s.AudioURL,
		&s.CoverURL,
		&s.LikesCount,
		&s.PlaysCount,
		&s.AlbumID,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSongs(rows pgx.Rows) ([]*domain.Song, error) {
	defer rows.Close()
	songs := make([]*domain.Song, 0)
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// Create inserts a song.
func (r *SongRepositoryImpl) Create(ctx context.Context, s *domain.Song) error {
	query := `
		INSERT INTO songs (` + songColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.Title,
		s.ArtistID,
		s.ArtistDisplayName,
		s.AudioURL,
		s.CoverURL,
		s.LikesCount,
		s.PlaysCount,
		s.AlbumID,
		s.CreatedAt,
	)
	return err
}

// Upsert inserts or refreshes a song during import. Counters are replaced.
func (r *SongRepositoryImpl) Upsert(ctx context.Context, s *domain.Song) error {
	query := `
		INSERT INTO songs (` + songColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			artist_display_name = EXCLUDED.artist_display_name,
			audio_url = EXCLUDED.audio_url,
			cover_url = EXCLUDED.cover_url,
			likes_count = EXCLUDED.likes_count,
			plays_count = EXCLUDED.plays_count,
			album_id = EXCLUDED.album_id
	`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.Title,
		s.ArtistID,
		s.ArtistDisplayName,
		s.AudioURL,
		s.CoverURL,
		s.LikesCount,
		s.PlaysCount,
		s.AlbumID,
		s.CreatedAt,
	)
	return err
}

// GetByID loads a song.
func (r *SongRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = $1`
	s, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, domain.ErrSongNotFound)
	}
	return s, nil
}

// List returns every song, newest first.
func (r *SongRepositoryImpl) List(ctx context.Context) ([]*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectSongs(rows)
}

// ListByArtist returns an artist's songs, newest first.
func (r *SongRepositoryImpl) ListByArtist(ctx context.Context, artistID string) ([]*domain.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE artist_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, artistID)
	if err != nil {
		return nil, err
	}
	return collectSongs(rows)
}

// ListByIDs returns the songs among ids that still exist, newest first.
func (r *SongRepositoryImpl) ListByIDs(ctx context.Context, ids []string) ([]*domain.Song, error) {
	if len(ids) == 0 {
		return []*domain.Song{}, nil
	}
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ANY($1) ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	return collectSongs(rows)
}

// Delete removes the song row only. Blobs, notifications and the album's
// song count are left as they are.
func (r *SongRepositoryImpl) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSongNotFound
	}
	return nil
}

// AdjustLikes applies delta to likes_count in one statement, floored at
// zero, and returns the stored value.
func (r *SongRepositoryImpl) AdjustLikes(ctx context.Context, id string, delta int64) (int64, error) {
	query := `
		UPDATE songs SET likes_count = GREATEST(likes_count + $2, 0)
		WHERE id = $1
		RETURNING likes_count
	`
	var n int64
	if err := r.db.QueryRow(ctx, query, id, delta).Scan(&n); err != nil {
		return 0, notFound(err, domain.ErrSongNotFound)
	}
	return n, nil
}

// IncrementPlays adds one play.
func (r *SongRepositoryImpl) IncrementPlays(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE songs SET plays_count = plays_count + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSongNotFound
	}
	return nil
}

// ReconcileLikeCounts rewrites likes_count from the like edges wherever the
// two disagree and returns how many songs were repaired.
func (r *SongRepositoryImpl) ReconcileLikeCounts(ctx context.Context) (int64, error) {
	query := `
		UPDATE songs s SET likes_count = c.n
		FROM (
			SELECT s2.id, COUNT(l.id) AS n
			FROM songs s2
			LEFT JOIN likes l ON l.song_id = s2.id
			GROUP BY s2.id
		) c
		WHERE s.id = c.id AND s.likes_count <> c.n
	`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
