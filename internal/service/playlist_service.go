package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

// PlaylistStore persists the playlist collection of a user on one device.
// *localstore.Store implements it.
type PlaylistStore interface {
	LoadPlaylists(ctx context.Context, deviceID, userID string) ([]domain.Playlist, error)
	SavePlaylists(ctx context.Context, deviceID, userID string, playlists []domain.Playlist) error
}

// PlaylistService manages device-local playlists. Every call reads the
// whole collection, changes it and writes it back.
type PlaylistService struct {
	store PlaylistStore
	songs repository.SongRepository
	log   logger.Logger
	now   func() time.Time

	mu sync.Mutex
}

// NewPlaylistService creates a PlaylistService.
func NewPlaylistService(store PlaylistStore, songs repository.SongRepository, log logger.Logger) *PlaylistService {
	return &PlaylistService{
		store: store,
		songs: songs,
		log:   orLogger(log, "playlist"),
		now:   time.Now,
	}
}

// CreatePlaylist adds an empty playlist.
func (s *PlaylistService) CreatePlaylist(ctx context.Context, sess *session.Session, name string) (*domain.Playlist, error) {
	name, err := domain.ValidatePlaylistName(name)
	if err != nil {
		return nil, err
	}
	p := domain.Playlist{
		ID:        uuid.New().String(),
		Name:      name,
		Songs:     []domain.Song{},
		CreatedAt: s.now(),
	}
	err = s.update(ctx, sess, func(all []domain.Playlist) ([]domain.Playlist, error) {
		return append(all, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlaylists returns the playlists in creation order.
func (s *PlaylistService) ListPlaylists(ctx context.Context, sess *session.Session) ([]domain.Playlist, error) {
	if err := requireDevice(sess); err != nil {
		return nil, err
	}
	return s.store.LoadPlaylists(ctx, sess.DeviceID, sess.UserID)
}

// GetPlaylist returns one playlist.
func (s *PlaylistService) GetPlaylist(ctx context.Context, sess *session.Session, id string) (*domain.Playlist, error) {
	all, err := s.ListPlaylists(ctx, sess)
	if err != nil {
		return nil, err
	}
	i := indexOfPlaylist(all, id)
	if i < 0 {
		return nil, domain.ErrPlaylistNotFound
	}
	return &all[i], nil
}

// RenamePlaylist changes the name of a playlist.
func (s *PlaylistService) RenamePlaylist(ctx context.Context, sess *session.Session, id, name string) (*domain.Playlist, error) {
	name, err := domain.ValidatePlaylistName(name)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, sess, id, func(p *domain.Playlist) error {
		p.Name = name
		return nil
	})
}

// DeletePlaylist removes a playlist.
func (s *PlaylistService) DeletePlaylist(ctx context.Context, sess *session.Session, id string) error {
	return s.update(ctx, sess, func(all []domain.Playlist) ([]domain.Playlist, error) {
		i := indexOfPlaylist(all, id)
		if i < 0 {
			return nil, domain.ErrPlaylistNotFound
		}
		return append(all[:i:i], all[i+1:]...), nil
	})
}

// AddSongToPlaylist appends a snapshot of the song as it is now.
func (s *PlaylistService) AddSongToPlaylist(ctx context.Context, sess *session.Session, id, songID string) (*domain.Playlist, error) {
	if err := requireDevice(sess); err != nil {
		return nil, err
	}
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, sess, id, func(p *domain.Playlist) error {
		return p.AddSong(*song)
	})
}

// RemoveSongFromPlaylist drops a song and keeps the order of the rest.
func (s *PlaylistService) RemoveSongFromPlaylist(ctx context.Context, sess *session.Session, id, songID string) (*domain.Playlist, error) {
	return s.modify(ctx, sess, id, func(p *domain.Playlist) error {
		return p.RemoveSong(songID)
	})
}

func (s *PlaylistService) modify(ctx context.Context, sess *session.Session, id string, fn func(*domain.Playlist) error) (*domain.Playlist, error) {
	var out domain.Playlist
	err := s.update(ctx, sess, func(all []domain.Playlist) ([]domain.Playlist, error) {
		i := indexOfPlaylist(all, id)
		if i < 0 {
			return nil, domain.ErrPlaylistNotFound
		}
		if err := fn(&all[i]); err != nil {
			return nil, err
		}
		out = all[i]
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// update serialises read-modify-write cycles of this process.
func (s *PlaylistService) update(ctx context.Context, sess *session.Session, fn func([]domain.Playlist) ([]domain.Playlist, error)) error {
	if err := requireDevice(sess); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.LoadPlaylists(ctx, sess.DeviceID, sess.UserID)
	if err != nil {
		return err
	}
	next, err := fn(all)
	if err != nil {
		return err
	}
	if err := s.store.SavePlaylists(ctx, sess.DeviceID, sess.UserID, next); err != nil {
		s.log.WithContext(ctx).Error("save playlists",
			logger.String("device_id", sess.DeviceID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func indexOfPlaylist(all []domain.Playlist, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

// requireDevice checks for a session bound to a device.
func requireDevice(sess *session.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if sess.DeviceID == "" {
		return domain.ErrInvalidDeviceID
	}
	return nil
}
