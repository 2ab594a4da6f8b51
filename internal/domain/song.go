package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Song is a published track. Counters never go below zero.
type Song struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	ArtistID          string    `json:"artistId"`
	ArtistDisplayName string    `json:"artistDisplayName"`
	AudioURL          string    `json:"audioUrl"`
	CoverURL          string    `json:"coverUrl"`
	LikesCount        int64     `json:"likesCount"`
	PlaysCount        int64     `json:"playsCount"`
	AlbumID           *string   `json:"albumId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Validate checks the song before it is stored.
func (s *Song) Validate() error {
	if s.ID == "" {
		return ErrInvalidSongID
	}
	if strings.TrimSpace(s.Title) == "" {
		return ErrTitleRequired
	}
	if s.ArtistID == "" {
		return ErrInvalidArtistID
	}
	if s.AudioURL == "" {
		return ErrAudioRequired
	}
	if s.CoverURL == "" {
		return ErrCoverRequired
	}
	return nil
}

// MatchesQuery reports whether q occurs in the title or artist name,
// ignoring case. An empty query matches everything.
func (s *Song) MatchesQuery(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.ArtistDisplayName), q)
}

// Album groups songs uploaded together. SongCount is a snapshot taken at
// upload time.
type Album struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ArtistID  string    `json:"artistId"`
	CoverURL  string    `json:"coverUrl"`
	SongCount int       `json:"songCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the album before it is stored.
func (a *Album) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrTitleRequired
	}
	if a.ArtistID == "" {
		return ErrInvalidArtistID
	}
	if a.CoverURL == "" {
		return ErrCoverRequired
	}
	if a.SongCount < 1 {
		return ErrAudioRequired
	}
	return nil
}

// PublishKind is single or album.
type PublishKind string

const (
	PublishSingle PublishKind = "single"
	PublishAlbum  PublishKind = "album"
)

// TitleFromFileName strips the directory and extension of name.
func TitleFromFileName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CatalogTab selects the song source in the listener catalogue.
type CatalogTab string

const (
	TabAll        CatalogTab = "all"
	TabFavourites CatalogTab = "favourites"
)

// SongFilter narrows the visible song list.
type SongFilter struct {
	Tab        CatalogTab `json:"tab" form:"tab"`
	Query      string     `json:"query" form:"q"`
	PlaylistID string     `json:"playlistId" form:"playlist_id"`
}
