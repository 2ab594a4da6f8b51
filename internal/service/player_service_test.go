package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/localstore"
	"github.com/dnspotify/server/internal/player"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

type staticCatalog []*domain.Song

func (c staticCatalog) Songs(context.Context, *session.Session, domain.SongFilter) ([]*domain.Song, error) {
	return c, nil
}

type playerFixture struct {
	svc   *PlayerService
	store *localstore.Store
	songs *MockSongRepository
}

func newPlayerFixture(t *testing.T, queue staticCatalog) *playerFixture {
	t.Helper()
	store, _ := newDeviceStore(t)
	songs := new(MockSongRepository)
	for _, s := range []string{"A", "B", "C"} {
		songs.On("GetByID", mock.Anything, s).Return(&domain.Song{ID: s, Title: s, ArtistID: "a1"}, nil).Maybe()
	}
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return &playerFixture{
		svc: NewPlayerService(PlayerDeps{
			Songs:     songs,
			Catalog:   queue,
			History:   store,
			Plays:     songs,
			Publisher: pub,
			Logger:    logger.Nop(),
		}),
		store: store,
		songs: songs,
	}
}

func abc() staticCatalog {
	return staticCatalog{{ID: "A", ArtistID: "a1"}, {ID: "B", ArtistID: "a1"}, {ID: "C", ArtistID: "a1"}}
}

func historyIDs(h []domain.Song) []string {
	out := make([]string, len(h))
	for i, s := range h {
		out[i] = s.ID
	}
	return out
}

func TestPlayerService_SelectMovesSongToFrontOfHistory(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	sess := listenerSession()

	require.NoError(t, f.store.SaveHistory(ctx, "d1", "u1", []domain.Song{{ID: "A"}, {ID: "B"}, {ID: "C"}}))
	f.songs.On("IncrementPlays", ctx, "B").Return(nil).Once()

	st, err := f.svc.SelectSong(ctx, sess, "B")
	require.NoError(t, err)
	assert.Equal(t, player.StatusPlaying, st.Status)
	assert.Equal(t, 0.0, st.Position)
	assert.Equal(t, []string{"B", "A", "C"}, historyIDs(st.History))

	stored, err := f.store.LoadHistory(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, historyIDs(stored))
	f.songs.AssertNumberOfCalls(t, "IncrementPlays", 1)
}

func TestPlayerService_SkipWraps(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	sess := listenerSession()
	f.songs.On("IncrementPlays", ctx, mock.Anything).Return(nil)

	_, err := f.svc.SetQueue(ctx, sess, domain.SongFilter{})
	require.NoError(t, err)
	_, err = f.svc.SelectSong(ctx, sess, "A")
	require.NoError(t, err)

	st, err := f.svc.Skip(ctx, sess, -1)
	require.NoError(t, err)
	assert.Equal(t, "C", st.Song.ID)

	st, err = f.svc.Skip(ctx, sess, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", st.Song.ID)

	st, err = f.svc.TrackEnded(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "B", st.Song.ID)

	_, err = f.svc.Skip(ctx, sess, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidSkip)

	f.songs.AssertNumberOfCalls(t, "IncrementPlays", 4)
}

func TestPlayerService_SkipOnEmptyQueue(t *testing.T) {
	f := newPlayerFixture(t, staticCatalog{})
	ctx := context.Background()

	st, err := f.svc.Skip(ctx, listenerSession(), 1)
	require.NoError(t, err)
	assert.Equal(t, player.StatusIdle, st.Status)
	f.songs.AssertNotCalled(t, "IncrementPlays", mock.Anything, mock.Anything)
}

func TestPlayerService_PlayCountFailureDoesNotBlock(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	f.songs.On("IncrementPlays", ctx, "A").Return(errors.New("network down"))

	st, err := f.svc.SelectSong(ctx, listenerSession(), "A")
	require.NoError(t, err)
	assert.Equal(t, player.StatusPlaying, st.Status)
	assert.Equal(t, "A", st.Song.ID)
}

func TestPlayerService_Transport(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	sess := listenerSession()
	f.songs.On("IncrementPlays", ctx, mock.Anything).Return(nil)

	_, err := f.svc.Seek(ctx, sess, 0.5)
	assert.ErrorIs(t, err, domain.ErrNothingLoaded)

	st, err := f.svc.Toggle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, player.StatusIdle, st.Status)

	_, err = f.svc.SelectSong(ctx, sess, "A")
	require.NoError(t, err)
	_, err = f.svc.Loaded(ctx, sess, 200)
	require.NoError(t, err)

	st, err = f.svc.Seek(ctx, sess, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 50.0, st.Position)

	_, err = f.svc.Seek(ctx, sess, 1.5)
	assert.ErrorIs(t, err, domain.ErrInvalidSeek)

	st, err = f.svc.Position(ctx, sess, 500)
	require.NoError(t, err)
	assert.Equal(t, 200.0, st.Position)

	st, err = f.svc.Toggle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, player.StatusPaused, st.Status)
}

func TestPlayerService_MuteRestoresExactVolume(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	sess := listenerSession()

	for _, v := range []float64{0, 0.35} {
		_, err := f.svc.SetVolume(ctx, sess, v)
		require.NoError(t, err)
		st, err := f.svc.ToggleMute(ctx, sess)
		require.NoError(t, err)
		assert.True(t, st.Muted)
		st, err = f.svc.ToggleMute(ctx, sess)
		require.NoError(t, err)
		assert.False(t, st.Muted)
		assert.Equal(t, v, st.Volume)
	}
}

func TestPlayerService_PerDevice(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	f.songs.On("IncrementPlays", ctx, mock.Anything).Return(nil)

	phone := listenerSession()
	laptop := &session.Session{ID: "s2", UserID: "u1", Role: domain.RoleListener, DeviceID: "d2"}

	_, err := f.svc.SelectSong(ctx, phone, "A")
	require.NoError(t, err)

	st, err := f.svc.State(ctx, laptop)
	require.NoError(t, err)
	assert.Equal(t, player.StatusIdle, st.Status)
	assert.Empty(t, st.History)

	_, err = f.svc.State(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	f.svc.Forget(phone)
	h, err := f.svc.History(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, historyIDs(h))
}

func TestPlayerService_PruneDropsIdlePlayers(t *testing.T) {
	f := newPlayerFixture(t, abc())
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.songs.On("IncrementPlays", ctx, mock.Anything).Return(nil)

	idle := listenerSession()
	_, err := f.svc.SelectSong(ctx, idle, "A")
	require.NoError(t, err)

	now = now.Add(DefaultPlayerIdle - time.Minute)
	active := &session.Session{ID: "s2", UserID: "u2", Role: domain.RoleListener, DeviceID: "d2"}
	_, err = f.svc.SetVolume(ctx, active, 0.3)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	n, err := f.svc.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The pruned device starts from Idle with its stored history.
	st, err := f.svc.State(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, player.StatusIdle, st.Status)
	assert.Equal(t, []string{"A"}, historyIDs(st.History))

	st, err = f.svc.State(ctx, active)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, st.Volume, 1e-9)
}
