package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is a loosely-typed record from the legacy document store.
type Document map[string]any

// LegacyExport is the top-level shape accepted by the import command.
type LegacyExport struct {
	Users  []Document `json:"users"`
	Albums []Document `json:"albums"`
	Songs  []Document `json:"songs"`
}

// NormalizeSongDocument maps the field spellings used over time
// (name/title, audio/url/audioUrl, cover/coverUrl, artist/artistName,
// artistUid/artistId) onto a Song.
func NormalizeSongDocument(doc Document) (*Song, error) {
	s := &Song{
		ID:                doc.str("id", "_id"),
		Title:             doc.str("title", "name", "songName"),
		ArtistID:          doc.str("artistId", "artistUid", "artist_id", "uid"),
		ArtistDisplayName: doc.str("artistDisplayName", "artistName", "artist"),
		AudioURL:          doc.str("audioUrl", "audio", "url", "audioURL"),
		CoverURL:          doc.str("coverUrl", "cover", "coverURL", "image"),
		LikesCount:        nonNegative(doc.num("likesCount", "likes")),
		PlaysCount:        nonNegative(doc.num("playsCount", "plays")),
		CreatedAt:         doc.time("createdAt", "uploadedAt"),
	}
	if album := doc.str("albumId", "album_id"); album != "" {
		s.AlbumID = &album
	}
	if s.ID == "" || s.Title == "" || s.AudioURL == "" {
		return nil, fmt.Errorf("%w: song %q", ErrInvalidLegacyField, s.ID)
	}
	if s.ArtistDisplayName == "" {
		s.ArtistDisplayName = "Unknown artist"
	}
	return s, nil
}

// NormalizeAlbumDocument maps a legacy album record onto an Album.
func NormalizeAlbumDocument(doc Document) (*Album, error) {
	a := &Album{
		ID:        doc.str("id", "_id"),
		Title:     doc.str("title", "name", "albumName"),
		ArtistID:  doc.str("artistId", "artistUid", "artist_id"),
		CoverURL:  doc.str("coverUrl", "cover", "coverURL"),
		SongCount: int(nonNegative(doc.num("songCount", "songs"))),
		CreatedAt: doc.time("createdAt"),
	}
	if a.ID == "" || a.Title == "" || a.ArtistID == "" {
		return nil, fmt.Errorf("%w: album %q", ErrInvalidLegacyField, a.ID)
	}
	return a, nil
}

// NormalizeProfileDocument maps a legacy user record onto a UserProfile.
// Profiles without a known role are rejected.
func NormalizeProfileDocument(doc Document) (*UserProfile, error) {
	p := &UserProfile{
		ID:          doc.str("id", "uid", "_id"),
		Email:       NormalizeEmail(doc.str("email")),
		DisplayName: doc.str("displayName", "name"),
		Role:        Role(strings.ToLower(doc.str("role"))),
		Favourites:  doc.strs("favourites", "favorites"),
		CreatedAt:   doc.time("createdAt"),
	}
	if p.ID == "" || !p.Role.Valid() {
		return nil, fmt.Errorf("%w: user %q", ErrInvalidLegacyField, p.ID)
	}
	if p.DisplayName == "" {
		p.DisplayName = strings.SplitN(p.Email, "@", 2)[0]
	}
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

func (d Document) str(keys ...string) string {
	for _, k := range keys {
		switch v := d[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func (d Document) num(keys ...string) int64 {
	for _, k := range keys {
		switch v := d[k].(type) {
		case float64:
			return int64(math.Round(v))
		case int:
			return int64(v)
		case int64:
			return v
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
			if f, err := v.Float64(); err == nil {
				return int64(math.Round(f))
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func (d Document) strs(keys ...string) []string {
	for _, k := range keys {
		raw, ok := d[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// time accepts RFC 3339 strings, unix seconds or milliseconds, and the
// {seconds, nanoseconds} timestamp object. Missing values yield the zero time.
func (d Document) time(keys ...string) time.Time {
	for _, k := range keys {
		switch v := d[k].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UTC()
			}
		case float64:
			return unixAuto(int64(v))
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return unixAuto(n)
			}
		case map[string]any:
			ts := Document(v)
			sec := ts.num("seconds", "_seconds")
			nsec := ts.num("nanoseconds", "_nanoseconds")
			if sec > 0 {
				return time.Unix(sec, nsec).UTC()
			}
		}
	}
	return time.Time{}
}

func unixAuto(n int64) time.Time {
	// Values past year 2286 in seconds are taken as milliseconds.
	if n > 1e10 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
