// Package localstore is device-local key/value persistence. Values are
// strings scoped to one device id; nothing here is shared across devices.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dnspotify/server/internal/domain"
	redispkg "github.com/dnspotify/server/pkg/redis"
)

// Store reads and writes device-scoped strings in Redis.
type Store struct {
	rdb *redispkg.Client
}

// New creates a device store.
func New(rdb *redispkg.Client) *Store {
	return &Store{rdb: rdb}
}

// Get returns the value under key for device. ok is false when unset.
func (s *Store) Get(ctx context.Context, deviceID, key string) (value string, ok bool, err error) {
	v, err := s.rdb.Get(ctx, redispkg.DeviceKey(deviceID, key))
	if errors.Is(err, redispkg.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key for device without expiry.
func (s *Store) Set(ctx context.Context, deviceID, key, value string) error {
	return s.rdb.Set(ctx, redispkg.DeviceKey(deviceID, key), value, 0)
}

// Delete removes key for device.
func (s *Store) Delete(ctx context.Context, deviceID, key string) error {
	return s.rdb.Delete(ctx, redispkg.DeviceKey(deviceID, key))
}

// HistoryKey is the key of a user's recent-history list.
func HistoryKey(userID string) string { return "history:" + userID }

// PlaylistsKey is the key of a user's playlist collection.
func PlaylistsKey(userID string) string { return "playlists:" + userID }

// LoadHistory returns the stored history, or an empty list.
func (s *Store) LoadHistory(ctx context.Context, deviceID, userID string) ([]domain.Song, error) {
	var out []domain.Song
	if err := s.loadJSON(ctx, deviceID, HistoryKey(userID), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Song{}
	}
	return out, nil
}

// SaveHistory stores the history list.
func (s *Store) SaveHistory(ctx context.Context, deviceID, userID string, history []domain.Song) error {
	return s.saveJSON(ctx, deviceID, HistoryKey(userID), history)
}

// LoadPlaylists returns the stored playlists, or an empty list.
func (s *Store) LoadPlaylists(ctx context.Context, deviceID, userID string) ([]domain.Playlist, error) {
	var out []domain.Playlist
	if err := s.loadJSON(ctx, deviceID, PlaylistsKey(userID), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Playlist{}
	}
	return out, nil
}

// SavePlaylists stores the playlist collection.
func (s *Store) SavePlaylists(ctx context.Context, deviceID, userID string, playlists []domain.Playlist) error {
	return s.saveJSON(ctx, deviceID, PlaylistsKey(userID), playlists)
}

func (s *Store) loadJSON(ctx context.Context, deviceID, key string, dst any) error {
	raw, ok, err := s.Get(ctx, deviceID, key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) saveJSON(ctx context.Context, deviceID, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, deviceID, key, string(data))
}
