package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
)

type staticFavourites []string

func (f staticFavourites) FavouriteIDs(context.Context, *session.Session) ([]string, error) {
	return f, nil
}

type staticPlaylists map[string]*domain.Playlist

func (p staticPlaylists) GetPlaylist(_ context.Context, _ *session.Session, id string) (*domain.Playlist, error) {
	if pl, ok := p[id]; ok {
		return pl, nil
	}
	return nil, domain.ErrPlaylistNotFound
}

func catalogSongs() []*domain.Song {
	return []*domain.Song{
		{ID: "s1", Title: "Midnight City", ArtistDisplayName: "M83"},
		{ID: "s2", Title: "Around the World", ArtistDisplayName: "Daft Punk"},
		{ID: "s3", Title: "Genesis", ArtistDisplayName: "Justice"},
	}
}

func ids(songs []*domain.Song) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.ID
	}
	return out
}

func TestCatalogService_Songs(t *testing.T) {
	songs := new(MockSongRepository)
	playlists := staticPlaylists{"p1": {ID: "p1", Songs: []domain.Song{{ID: "s3", Title: "Genesis"}, {ID: "s1", Title: "Midnight City"}}}}
	svc := NewCatalogService(songs, staticFavourites{"s2"}, playlists)
	ctx := context.Background()
	sess := listenerSession()

	songs.On("List", ctx).Return(catalogSongs(), nil)
	songs.On("ListByIDs", ctx, []string{"s2"}).Return([]*domain.Song{catalogSongs()[1]}, nil)

	tests := []struct {
		name   string
		filter domain.SongFilter
		want   []string
	}{
		{"all", domain.SongFilter{}, []string{"s1", "s2", "s3"}},
		{"query by title", domain.SongFilter{Tab: domain.TabAll, Query: "WORLD"}, []string{"s2"}},
		{"query by artist", domain.SongFilter{Query: "m8"}, []string{"s1"}},
		{"favourites", domain.SongFilter{Tab: domain.TabFavourites}, []string{"s2"}},
		{"favourites with query", domain.SongFilter{Tab: domain.TabFavourites, Query: "genesis"}, []string{}},
		{"playlist keeps order", domain.SongFilter{PlaylistID: "p1"}, []string{"s3", "s1"}},
		{"playlist with query", domain.SongFilter{PlaylistID: "p1", Query: "city"}, []string{"s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Songs(ctx, sess, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCatalogService_Songs_Errors(t *testing.T) {
	svc := NewCatalogService(new(MockSongRepository), staticFavourites{}, staticPlaylists{})
	ctx := context.Background()

	_, err := svc.Songs(ctx, listenerSession(), domain.SongFilter{Tab: "recent"})
	assert.ErrorIs(t, err, domain.ErrInvalidTab)

	_, err = svc.Songs(ctx, listenerSession(), domain.SongFilter{PlaylistID: "missing"})
	assert.ErrorIs(t, err, domain.ErrPlaylistNotFound)

	_, err = svc.Songs(ctx, nil, domain.SongFilter{Tab: domain.TabFavourites})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	got, err := svc.Songs(ctx, listenerSession(), domain.SongFilter{Tab: domain.TabFavourites})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalogService_ArtistSongs(t *testing.T) {
	songs := new(MockSongRepository)
	svc := NewCatalogService(songs, nil, nil)
	ctx := context.Background()

	_, err := svc.ArtistSongs(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArtistID)

	songs.On("ListByArtist", ctx, "a1").Return([]*domain.Song{{ID: "new"}, {ID: "old"}}, nil)
	got, err := svc.ArtistSongs(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(got))
}
