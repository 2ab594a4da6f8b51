// Package player is the playback state machine of one listener device.
//
//	Idle --SelectSong--> Loaded --> Playing <--TogglePlayPause--> Paused
//
// A Player is not safe for concurrent use; callers serialise access.
package player

import (
	"math"

	"github.com/dnspotify/server/internal/domain"
)

// Status is the playback state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoaded  Status = "loaded"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// State is a copy of the player for rendering.
type State struct {
	Status   Status        `json:"status"`
	Song     *domain.Song  `json:"song,omitempty"`
	Position float64       `json:"position"`
	Duration float64       `json:"duration"`
	Volume   float64       `json:"volume"`
	Muted    bool          `json:"muted"`
	Queue    []domain.Song `json:"queue"`
	// Index is -1 while the current song is not in Queue.
	Index    int           `json:"index"`
	History  []domain.Song `json:"history"`
}

// Player holds playback state, the visible queue and recent history.
type Player struct {
	status   Status
	song     *domain.Song
	position float64
	duration float64

	volume  float64
	muted   bool
	preMute float64

	queue   []domain.Song
	index   int
	history []domain.Song
}

// New returns an idle player at full volume.
func New() *Player {
	return &Player{status: StatusIdle, volume: 1, index: -1, history: []domain.Song{}}
}

// SetHistory seeds the recent-history list, e.g. from device storage.
func (p *Player) SetHistory(h []domain.Song) {
	if len(h) > domain.MaxHistory {
		h = h[:domain.MaxHistory]
	}
	p.history = append([]domain.Song{}, h...)
}

// History returns a copy of the recent-history list.
func (p *Player) History() []domain.Song {
	return append([]domain.Song{}, p.history...)
}

// SetQueue installs the currently visible list. The index follows the
// current song, or is -1 when the new list does not hold it.
func (p *Player) SetQueue(songs []domain.Song) {
	p.queue = append([]domain.Song{}, songs...)
	p.index = -1
	if p.song != nil {
		p.index = p.indexOf(p.song.ID)
	}
}

// SelectSong loads song and starts it from the beginning. It returns the
// song so the caller can record exactly one play.
func (p *Player) SelectSong(song domain.Song) domain.Song {
	p.Load(song)
	p.history = domain.PushHistory(p.history, song)
	p.status = StatusPlaying
	return song
}

// Load makes song current without starting it. No play is recorded and
// history is untouched.
func (p *Player) Load(song domain.Song) {
	s := song
	p.song = &s
	p.status = StatusLoaded
	p.position = 0
	p.duration = 0
	p.index = p.indexOf(song.ID)
}

// LoadedMetadata records the duration of the current song.
func (p *Player) LoadedMetadata(duration float64) error {
	if p.song == nil {
		return domain.ErrNothingLoaded
	}
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	p.duration = duration
	p.position = clamp(p.position, 0, duration)
	return nil
}

// ReportPosition records playback progress, clamped to the duration.
func (p *Player) ReportPosition(position float64) error {
	if p.song == nil {
		return domain.ErrNothingLoaded
	}
	if math.IsNaN(position) {
		return nil
	}
	p.position = clamp(position, 0, p.duration)
	return nil
}

// TogglePlayPause flips between playing and paused. It does nothing when idle.
func (p *Player) TogglePlayPause() {
	switch p.status {
	case StatusPlaying:
		p.status = StatusPaused
	case StatusPaused, StatusLoaded:
		p.status = StatusPlaying
	}
}

// Seek moves to fraction of the duration.
func (p *Player) Seek(fraction float64) error {
	if p.status == StatusIdle {
		return domain.ErrNothingLoaded
	}
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return domain.ErrInvalidSeek
	}
	p.position = fraction * p.duration
	return nil
}

// Skip selects the neighbour in the visible list, wrapping at both ends.
// Without a current position it starts from the first or the last song.
// It returns nil when the list is empty.
func (p *Player) Skip(direction int) (*domain.Song, error) {
	if direction != 1 && direction != -1 {
		return nil, domain.ErrInvalidSkip
	}
	n := len(p.queue)
	if n == 0 {
		return nil, nil
	}
	var i int
	switch {
	case p.index < 0 && direction > 0:
		i = 0
	case p.index < 0:
		i = n - 1
	default:
		i = ((p.index+direction)%n + n) % n
	}
	s := p.SelectSong(p.queue[i])
	return &s, nil
}

// OnTrackEnd advances to the next song.
func (p *Player) OnTrackEnd() (*domain.Song, error) {
	return p.Skip(1)
}

// SetVolume sets the volume, clamped to [0,1]. A positive volume unmutes.
func (p *Player) SetVolume(v float64) {
	if math.IsNaN(v) {
		return
	}
	p.volume = clamp(v, 0, 1)
	if p.volume > 0 {
		p.muted = false
	}
}

// ToggleMute mutes, remembering the volume, or restores it exactly.
func (p *Player) ToggleMute() {
	if p.muted {
		p.muted = false
		p.volume = p.preMute
		return
	}
	p.preMute = p.volume
	p.muted = true
}

// EffectiveVolume is the volume actually applied to the output.
func (p *Player) EffectiveVolume() float64 {
	if p.muted {
		return 0
	}
	return p.volume
}

// Volume returns the set volume regardless of mute.
func (p *Player) Volume() float64 { return p.volume }

// Status returns the playback state.
func (p *Player) Status() Status { return p.status }

// State returns a copy of the player.
func (p *Player) State() State {
	st := State{
		Status:   p.status,
		Position: p.position,
		Duration: p.duration,
		Volume:   p.volume,
		Muted:    p.muted,
		Queue:    append([]domain.Song{}, p.queue...),
		Index:    p.index,
		History:  p.History(),
	}
	if p.song != nil {
		s := *p.song
		st.Song = &s
	}
	return st
}

func (p *Player) indexOf(songID string) int {
	for i, s := range p.queue {
		if s.ID == songID {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
