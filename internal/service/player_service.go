package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/player"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// HistoryStore persists recent history per user and device.
// *localstore.Store implements it.
type HistoryStore interface {
	LoadHistory(ctx context.Context, deviceID, userID string) ([]domain.Song, error)
	SaveHistory(ctx context.Context, deviceID, userID string, history []domain.Song) error
}

// PlayRecorder counts one play of a song. SongRepository implements it.
type PlayRecorder interface {
	IncrementPlays(ctx context.Context, songID string) error
}

// SongLister returns the visible song list for a filter.
type SongLister interface {
	Songs(ctx context.Context, sess *session.Session, filter domain.SongFilter) ([]*domain.Song, error)
}

// SongGetter loads one song.
type SongGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Song, error)
}

// DefaultPlayerIdle is how long an untouched player stays in memory.
const DefaultPlayerIdle = 24 * time.Hour

type playerEntry struct {
	mu       sync.Mutex
	p        *player.Player
	loaded   bool
	lastUsed time.Time
}

// PlayerService keeps one in-memory player per user and device.
type PlayerService struct {
	songs   SongGetter
	catalog SongLister
	history HistoryStore
	plays   PlayRecorder
	pub     EventPublisher
	metrics *telemetry.Metrics
	log     logger.Logger
	idle    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	players map[string]*playerEntry
}

// PlayerDeps groups the collaborators of PlayerService.
type PlayerDeps struct {
	Songs     SongGetter
	Catalog   SongLister
	History   HistoryStore
	Plays     PlayRecorder
	Publisher EventPublisher
	Metrics   *telemetry.Metrics
	Logger    logger.Logger
	// IdleTimeout defaults to DefaultPlayerIdle.
	IdleTimeout time.Duration
}

// NewPlayerService creates a PlayerService.
func NewPlayerService(d PlayerDeps) *PlayerService {
	if d.IdleTimeout <= 0 {
		d.IdleTimeout = DefaultPlayerIdle
	}
	return &PlayerService{
		songs:   d.Songs,
		catalog: d.Catalog,
		history: d.History,
		plays:   d.Plays,
		pub:     orPublisher(d.Publisher),
		metrics: d.Metrics,
		log:     orLogger(d.Logger, "player"),
		idle:    d.IdleTimeout,
		now:     time.Now,
		players: make(map[string]*playerEntry),
	}
}

// State returns the player of the session's device.
func (s *PlayerService) State(ctx context.Context, sess *session.Session) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error { return nil })
}

// History returns the recent-history list of the session's device.
func (s *PlayerService) History(ctx context.Context, sess *session.Session) ([]domain.Song, error) {
	st, err := s.State(ctx, sess)
	if err != nil {
		return nil, err
	}
	return st.History, nil
}

// SetQueue installs the list the listener currently sees.
func (s *PlayerService) SetQueue(ctx context.Context, sess *session.Session, filter domain.SongFilter) (player.State, error) {
	if err := requireDevice(sess); err != nil {
		return player.State{}, err
	}
	list, err := s.catalog.Songs(ctx, sess, filter)
	if err != nil {
		return player.State{}, err
	}
	queue := make([]domain.Song, len(list))
	for i, song := range list {
		queue[i] = *song
	}
	return s.with(ctx, sess, func(p *player.Player) error {
		p.SetQueue(queue)
		return nil
	})
}

// SelectSong starts songID from the beginning and counts one play.
func (s *PlayerService) SelectSong(ctx context.Context, sess *session.Session, songID string) (player.State, error) {
	if err := requireDevice(sess); err != nil {
		return player.State{}, err
	}
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return player.State{}, err
	}
	return s.selection(ctx, sess, func(p *player.Player) (*domain.Song, error) {
		selected := p.SelectSong(*song)
		return &selected, nil
	})
}

// Skip selects the neighbour in the visible list. An empty list is a no-op.
func (s *PlayerService) Skip(ctx context.Context, sess *session.Session, direction int) (player.State, error) {
	return s.selection(ctx, sess, func(p *player.Player) (*domain.Song, error) {
		return p.Skip(direction)
	})
}

// TrackEnded advances to the next song.
func (s *PlayerService) TrackEnded(ctx context.Context, sess *session.Session) (player.State, error) {
	return s.selection(ctx, sess, func(p *player.Player) (*domain.Song, error) {
		return p.OnTrackEnd()
	})
}

// Loaded records the duration reported by the audio element.
func (s *PlayerService) Loaded(ctx context.Context, sess *session.Session, duration float64) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error { return p.LoadedMetadata(duration) })
}

// Position records playback progress.
func (s *PlayerService) Position(ctx context.Context, sess *session.Session, position float64) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error { return p.ReportPosition(position) })
}

// Toggle flips between playing and paused.
func (s *PlayerService) Toggle(ctx context.Context, sess *session.Session) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error {
		p.TogglePlayPause()
		return nil
	})
}

// Seek moves to a fraction of the duration.
func (s *PlayerService) Seek(ctx context.Context, sess *session.Session, fraction float64) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error { return p.Seek(fraction) })
}

// SetVolume sets the output volume.
func (s *PlayerService) SetVolume(ctx context.Context, sess *session.Session, v float64) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error {
		p.SetVolume(v)
		return nil
	})
}

// ToggleMute mutes or restores the previous volume.
func (s *PlayerService) ToggleMute(ctx context.Context, sess *session.Session) (player.State, error) {
	return s.with(ctx, sess, func(p *player.Player) error {
		p.ToggleMute()
		return nil
	})
}

// Forget drops the in-memory player of the session's device. History
// stays in the device store.
func (s *PlayerService) Forget(sess *session.Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	delete(s.players, playerKey(sess))
	s.mu.Unlock()
}

// Prune drops players untouched for longer than the idle timeout. History
// stays in the device store and is reloaded on the next request.
func (s *PlayerService) Prune(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.players {
		if e.lastUsed.Before(cutoff) {
			delete(s.players, key)
			n++
		}
	}
	return n, nil
}

// selection runs fn and, when it selected a song, persists history and
// records the play. A failed play count never blocks playback.
func (s *PlayerService) selection(ctx context.Context, sess *session.Session, fn func(*player.Player) (*domain.Song, error)) (player.State, error) {
	var selected *domain.Song
	var history []domain.Song
	st, err := s.with(ctx, sess, func(p *player.Player) error {
		song, err := fn(p)
		if err != nil {
			return err
		}
		selected = song
		history = p.History()
		return nil
	})
	if err != nil || selected == nil {
		return st, err
	}

	if err := s.history.SaveHistory(ctx, sess.DeviceID, sess.UserID, history); err != nil {
		s.log.WithContext(ctx).Warn("save history",
			logger.String("device_id", sess.DeviceID),
			logger.Error(err),
		)
	}
	s.recordPlay(ctx, selected)
	return st, nil
}

func (s *PlayerService) recordPlay(ctx context.Context, song *domain.Song) {
	outcome := "ok"
	if err := s.plays.IncrementPlays(ctx, song.ID); err != nil {
		outcome = "failed"
		s.log.WithContext(ctx).Warn("record play",
			logger.String("song_id", song.ID),
			logger.Error(err),
		)
	} else {
		notify(ctx, s.log, s.pub, domain.ArtistSongsTopic(song.ArtistID), domain.EventSongsChanged,
			map[string]string{"song_id": song.ID})
	}
	if s.metrics != nil {
		s.metrics.PlaysRecorded.Add(ctx, 1, metric.WithAttributes(telemetry.Attr("outcome", outcome)))
	}
}

// with runs fn against the device's player under its lock and returns the
// resulting state.
func (s *PlayerService) with(ctx context.Context, sess *session.Session, fn func(*player.Player) error) (player.State, error) {
	if err := requireDevice(sess); err != nil {
		return player.State{}, err
	}
	e := s.entry(sess)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		h, err := s.history.LoadHistory(ctx, sess.DeviceID, sess.UserID)
		if err != nil {
			return player.State{}, err
		}
		e.p.SetHistory(h)
		e.loaded = true
	}
	if err := fn(e.p); err != nil {
		return player.State{}, err
	}
	return e.p.State(), nil
}

func (s *PlayerService) entry(sess *session.Session) *playerEntry {
	key := playerKey(sess)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.players[key]
	if !ok {
		e = &playerEntry{p: player.New()}
		s.players[key] = e
	}
	e.lastUsed = s.now()
	return e
}

func playerKey(sess *session.Session) string {
	return sess.UserID + "/" + sess.DeviceID
}
