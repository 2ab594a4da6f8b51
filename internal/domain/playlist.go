package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxPlaylistNameLength is counted in characters.
const MaxPlaylistNameLength = 100

// Playlist is device-local. Songs are snapshots taken when added.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Songs     []Song    `json:"songs"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the playlist name.
func (p *Playlist) Validate() error {
	_, err := ValidatePlaylistName(p.Name)
	return err
}

// IndexOf returns the position of songID, or -1.
func (p *Playlist) IndexOf(songID string) int {
	for i := range p.Songs {
		if p.Songs[i].ID == songID {
			return i
		}
	}
	return -1
}

// AddSong appends a snapshot of s. Duplicates are rejected.
func (p *Playlist) AddSong(s Song) error {
	if p.IndexOf(s.ID) >= 0 {
		return ErrSongAlreadyInPlaylist
	}
	p.Songs = append(p.Songs, s)
	return nil
}

// RemoveSong drops songID and keeps the order of the rest.
func (p *Playlist) RemoveSong(songID string) error {
	i := p.IndexOf(songID)
	if i < 0 {
		return ErrSongNotInPlaylist
	}
	p.Songs = append(p.Songs[:i:i], p.Songs[i+1:]...)
	return nil
}

// ValidatePlaylistName trims name and checks its length.
func ValidatePlaylistName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidPlaylistName
	}
	if utf8.RuneCountInString(name) > MaxPlaylistNameLength {
		return "", ErrPlaylistNameTooLong
	}
	return name, nil
}
