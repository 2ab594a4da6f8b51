package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/pkg/logger"
)

// ImportStats counts what a legacy import wrote and skipped.
type ImportStats struct {
	Profiles   int      `json:"profiles"`
	Albums     int      `json:"albums"`
	Songs      int      `json:"songs"`
	Favourites int      `json:"favourites"`
	Skipped    []string `json:"skipped,omitempty"`
}

// ImportService loads a legacy export into the relational store. Records
// are upserted so that re-running an import is harmless.
type ImportService struct {
	profiles   repository.ProfileRepository
	albums     repository.AlbumRepository
	songs      repository.SongRepository
	favourites repository.FavouriteRepository
	log        logger.Logger
}

func NewImportService(profiles repository.ProfileRepository, albums repository.AlbumRepository,
	songs repository.SongRepository, favourites repository.FavouriteRepository, log logger.Logger) *ImportService {
	return &ImportService{
		profiles:   profiles,
		albums:     albums,
		songs:      songs,
		favourites: favourites,
		log:        orLogger(log, "import"),
	}
}

// ImportJSON decodes a domain.LegacyExport from r and imports it.
func (s *ImportService) ImportJSON(ctx context.Context, r io.Reader) (*ImportStats, error) {
	var export domain.LegacyExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decode legacy export: %w", err)
	}
	return s.Import(ctx, &export)
}

// Import writes users, then albums, then songs, then favourite edges.
// Records that fail normalization are skipped and reported; a store error
// stops the import.
func (s *ImportService) Import(ctx context.Context, export *domain.LegacyExport) (*ImportStats, error) {
	stats := &ImportStats{}
	log := s.log.WithContext(ctx)

	var profiles []*domain.UserProfile
	for _, doc := range export.Users {
		p, err := domain.NormalizeProfileDocument(doc)
		if err != nil {
			stats.skip(err)
			continue
		}
		if err := s.profiles.Upsert(ctx, p); err != nil {
			return stats, fmt.Errorf("upsert profile %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
		stats.Profiles++
	}

	for _, doc := range export.Albums {
		a, err := domain.NormalizeAlbumDocument(doc)
		if err != nil {
			stats.skip(err)
			continue
		}
		if err := s.albums.Upsert(ctx, a); err != nil {
			return stats, fmt.Errorf("upsert album %s: %w", a.ID, err)
		}
		stats.Albums++
	}

	for _, doc := range export.Songs {
		song, err := domain.NormalizeSongDocument(doc)
		if err != nil {
			stats.skip(err)
			continue
		}
		if err := s.songs.Upsert(ctx, song); err != nil {
			return stats, fmt.Errorf("upsert song %s: %w", song.ID, err)
		}
		stats.Songs++
	}

	for _, p := range profiles {
		for _, songID := range p.Favourites {
			if err := s.favourites.Add(ctx, p.ID, songID); err != nil {
				return stats, fmt.Errorf("add favourite %s/%s: %w", p.ID, songID, err)
			}
			stats.Favourites++
		}
	}

	log.Info("legacy import finished",
		logger.Int("profiles", stats.Profiles),
		logger.Int("albums", stats.Albums),
		logger.Int("songs", stats.Songs),
		logger.Int("favourites", stats.Favourites),
		logger.Int("skipped", len(stats.Skipped)),
	)
	return stats, nil
}

func (st *ImportStats) skip(err error) {
	st.Skipped = append(st.Skipped, err.Error())
}
