package player

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
)

func songs(ids ...string) []domain.Song {
	out := make([]domain.Song, len(ids))
	for i, id := range ids {
		out[i] = domain.Song{ID: id, Title: "Song " + id}
	}
	return out
}

func TestPlayer_StartsIdle(t *testing.T) {
	p := New()
	assert.Equal(t, StatusIdle, p.Status())
	assert.Equal(t, 1.0, p.Volume())

	p.TogglePlayPause()
	assert.Equal(t, StatusIdle, p.Status())
	assert.ErrorIs(t, p.Seek(0.5), domain.ErrNothingLoaded)
	assert.ErrorIs(t, p.LoadedMetadata(10), domain.ErrNothingLoaded)
}

func TestPlayer_SelectSongPlaysFromStart(t *testing.T) {
	p := New()
	list := songs("a", "b", "c")
	p.SetQueue(list)

	got := p.SelectSong(list[1])
	assert.Equal(t, "b", got.ID)

	st := p.State()
	assert.Equal(t, StatusPlaying, st.Status)
	assert.Equal(t, 0.0, st.Position)
	assert.Equal(t, 1, st.Index)
	require.NotNil(t, st.Song)
	assert.Equal(t, "b", st.Song.ID)
}

func TestPlayer_LoadDoesNotPlay(t *testing.T) {
	p := New()
	p.Load(songs("a")[0])
	assert.Equal(t, StatusLoaded, p.Status())
	assert.Empty(t, p.History())

	require.NoError(t, p.Seek(0))
	p.TogglePlayPause()
	assert.Equal(t, StatusPlaying, p.Status())
}

func TestPlayer_HistoryMovesReselectedSongToFront(t *testing.T) {
	p := New()
	a, b, c := songs("a", "b", "c")[0], songs("b")[0], songs("c")[0]
	p.SetHistory([]domain.Song{a, b, c})

	p.SelectSong(b)

	ids := []string{}
	for _, s := range p.History() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestPlayer_HistoryIsBounded(t *testing.T) {
	p := New()
	for i := 0; i < domain.MaxHistory+5; i++ {
		p.SelectSong(domain.Song{ID: string(rune('a' + i))})
	}
	assert.Len(t, p.History(), domain.MaxHistory)
}

func TestPlayer_TogglePlayPause(t *testing.T) {
	p := New()
	p.SelectSong(songs("a")[0])

	p.TogglePlayPause()
	assert.Equal(t, StatusPaused, p.Status())
	p.TogglePlayPause()
	assert.Equal(t, StatusPlaying, p.Status())
}

func TestPlayer_SeekAndPosition(t *testing.T) {
	p := New()
	p.SelectSong(songs("a")[0])
	require.NoError(t, p.LoadedMetadata(200))

	require.NoError(t, p.Seek(0.25))
	assert.Equal(t, 50.0, p.State().Position)

	assert.ErrorIs(t, p.Seek(1.5), domain.ErrInvalidSeek)
	assert.ErrorIs(t, p.Seek(-0.1), domain.ErrInvalidSeek)
	assert.ErrorIs(t, p.Seek(math.NaN()), domain.ErrInvalidSeek)
	assert.ErrorIs(t, p.Seek(2), domain.ErrValidation)

	require.NoError(t, p.ReportPosition(500))
	assert.Equal(t, 200.0, p.State().Position)
	require.NoError(t, p.ReportPosition(-3))
	assert.Equal(t, 0.0, p.State().Position)
}

func TestPlayer_SkipWraps(t *testing.T) {
	p := New()
	list := songs("a", "b", "c")
	p.SetQueue(list)

	p.SelectSong(list[2])
	next, err := p.Skip(1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "a", next.ID)
	assert.Equal(t, 0, p.State().Index)

	prev, err := p.Skip(-1)
	require.NoError(t, err)
	assert.Equal(t, "c", prev.ID)
	assert.Equal(t, 2, p.State().Index)
	assert.Equal(t, StatusPlaying, p.Status())
}

func TestPlayer_SkipEmptyListIsNoop(t *testing.T) {
	p := New()
	p.SelectSong(songs("a")[0])
	p.SetQueue(nil)

	got, err := p.Skip(1)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "a", p.State().Song.ID)
}

func TestPlayer_SkipRejectsBadDirection(t *testing.T) {
	p := New()
	p.SetQueue(songs("a"))
	_, err := p.Skip(2)
	assert.ErrorIs(t, err, domain.ErrInvalidSkip)
}

func TestPlayer_TrackEndAdvances(t *testing.T) {
	p := New()
	list := songs("a", "b")
	p.SetQueue(list)
	p.SelectSong(list[0])

	next, err := p.OnTrackEnd()
	require.NoError(t, err)
	assert.Equal(t, "b", next.ID)
}

func TestPlayer_SetQueueFollowsCurrentSong(t *testing.T) {
	p := New()
	p.SetQueue(songs("a", "b", "c"))
	p.SelectSong(songs("c")[0])

	p.SetQueue(songs("x", "c"))
	assert.Equal(t, 1, p.State().Index)

	p.SetQueue(songs("x", "y"))
	assert.Equal(t, -1, p.State().Index)
}

func TestPlayer_SkipFromOutsideQueue(t *testing.T) {
	p := New()
	p.SetQueue(songs("a", "b", "c"))
	p.SelectSong(songs("b")[0])

	// The list is filtered down to songs that exclude the current one.
	p.SetQueue(songs("x", "y", "z"))
	next, err := p.Skip(1)
	require.NoError(t, err)
	assert.Equal(t, "x", next.ID)
	assert.Equal(t, 0, p.State().Index)

	p.SetQueue(songs("m", "n"))
	prev, err := p.Skip(-1)
	require.NoError(t, err)
	assert.Equal(t, "n", prev.ID)
	assert.Equal(t, 1, p.State().Index)
}

func TestPlayer_TrackEndWithoutPosition(t *testing.T) {
	p := New()
	p.SetQueue(songs("a", "b"))
	assert.Equal(t, -1, p.State().Index)

	next, err := p.OnTrackEnd()
	require.NoError(t, err)
	assert.Equal(t, "a", next.ID)

	// Loading a song outside the list drops the position again.
	p.Load(domain.Song{ID: "solo"})
	assert.Equal(t, -1, p.State().Index)
	next, err = p.OnTrackEnd()
	require.NoError(t, err)
	assert.Equal(t, "a", next.ID)
}

func TestPlayer_Volume(t *testing.T) {
	p := New()
	p.SetVolume(1.7)
	assert.Equal(t, 1.0, p.Volume())
	p.SetVolume(-1)
	assert.Equal(t, 0.0, p.Volume())
}

func TestPlayer_MuteRestoresExactVolume(t *testing.T) {
	for _, v := range []float64{0.37, 0} {
		p := New()
		p.SetVolume(v)

		p.ToggleMute()
		assert.True(t, p.State().Muted)
		assert.Equal(t, 0.0, p.EffectiveVolume())

		p.ToggleMute()
		assert.False(t, p.State().Muted)
		assert.Equal(t, v, p.Volume())
		assert.Equal(t, v, p.EffectiveVolume())
	}
}

func TestPlayer_VolumeChangeUnmutes(t *testing.T) {
	p := New()
	p.SetVolume(0.5)
	p.ToggleMute()
	p.SetVolume(0.8)
	assert.False(t, p.State().Muted)
	assert.Equal(t, 0.8, p.EffectiveVolume())
}
