package service

import (
	"context"
	"strings"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
)

// FavouriteLister returns the favourite song ids of a session.
type FavouriteLister interface {
	FavouriteIDs(ctx context.Context, sess *session.Session) ([]string, error)
}

// PlaylistReader returns one local playlist of a session.
type PlaylistReader interface {
	GetPlaylist(ctx context.Context, sess *session.Session, id string) (*domain.Playlist, error)
}

// CatalogService lists songs for the listener catalogue.
type CatalogService struct {
	songs      repository.SongRepository
	favourites FavouriteLister
	playlists  PlaylistReader
}

// NewCatalogService creates a CatalogService. A nil playlists source makes
// every playlist filter fail with not found.
func NewCatalogService(songs repository.SongRepository, favourites FavouriteLister, playlists PlaylistReader) *CatalogService {
	return &CatalogService{songs: songs, favourites: favourites, playlists: playlists}
}

// Songs returns the visible list for filter. A playlist id takes precedence
// over the tab, and the query narrows whatever source was picked.
func (s *CatalogService) Songs(ctx context.Context, sess *session.Session, filter domain.SongFilter) ([]*domain.Song, error) {
	var (
		src []*domain.Song
		err error
	)
	switch {
	case strings.TrimSpace(filter.PlaylistID) != "":
		src, err = s.playlistSongs(ctx, sess, filter.PlaylistID)
	case filter.Tab == domain.TabFavourites:
		src, err = s.favouriteSongs(ctx, sess)
	case filter.Tab == "" || filter.Tab == domain.TabAll:
		src, err = s.songs.List(ctx)
	default:
		return nil, domain.ErrInvalidTab
	}
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Song, 0, len(src))
	for _, song := range src {
		if song.MatchesQuery(filter.Query) {
			out = append(out, song)
		}
	}
	return out, nil
}

// ArtistSongs returns the artist's songs, newest first.
func (s *CatalogService) ArtistSongs(ctx context.Context, artistID string) ([]*domain.Song, error) {
	if strings.TrimSpace(artistID) == "" {
		return nil, domain.ErrInvalidArtistID
	}
	return s.songs.ListByArtist(ctx, artistID)
}

func (s *CatalogService) favouriteSongs(ctx context.Context, sess *session.Session) ([]*domain.Song, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	ids, err := s.favourites.FavouriteIDs(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Song{}, nil
	}
	return s.songs.ListByIDs(ctx, ids)
}

func (s *CatalogService) playlistSongs(ctx context.Context, sess *session.Session, id string) ([]*domain.Song, error) {
	if s.playlists == nil {
		return nil, domain.ErrPlaylistNotFound
	}
	p, err := s.playlists.GetPlaylist(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Song, len(p.Songs))
	for i := range p.Songs {
		song := p.Songs[i]
		out[i] = &song
	}
	return out, nil
}
