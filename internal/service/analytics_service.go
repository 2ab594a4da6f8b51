package service

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
)

// SongStats is one row of the analytics table.
type SongStats struct {
	SongID         string   `json:"songId"`
	Title          string   `json:"title"`
	Plays          int64    `json:"plays"`
	Likes          int64    `json:"likes"`
	EngagementRate *float64 `json:"engagementRate"`
}

// ArtistAnalytics summarizes an artist's catalogue.
type ArtistAnalytics struct {
	TotalPlays     int64       `json:"totalPlays"`
	TotalLikes     int64       `json:"totalLikes"`
	FollowersCount int64       `json:"followersCount"`
	SongCount      int         `json:"songCount"`
	Songs          []SongStats `json:"songs"`
}

// AnalyticsService is a read-only reduction over songs and followers.
type AnalyticsService struct {
	songs   repository.SongRepository
	follows repository.FollowRepository
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(songs repository.SongRepository, follows repository.FollowRepository) *AnalyticsService {
	return &AnalyticsService{songs: songs, follows: follows}
}

// Artist returns the analytics of the signed-in artist.
func (s *AnalyticsService) Artist(ctx context.Context, sess *session.Session) (*ArtistAnalytics, error) {
	if err := requireRole(sess, domain.RoleArtist); err != nil {
		return nil, err
	}

	var (
		songs     []*domain.Song
		followers int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		songs, err = s.songs.ListByArtist(gctx, sess.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		followers, err = s.follows.CountFollowers(gctx, sess.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Summarize(songs, followers), nil
}

// Summarize reduces songs into totals and per-song rows sorted by plays,
// highest first.
func Summarize(songs []*domain.Song, followers int64) *ArtistAnalytics {
	out := &ArtistAnalytics{
		FollowersCount: followers,
		SongCount:      len(songs),
		Songs:          make([]SongStats, 0, len(songs)),
	}
	for _, song := range songs {
		out.TotalPlays += song.PlaysCount
		out.TotalLikes += song.LikesCount
		out.Songs = append(out.Songs, SongStats{
			SongID:         song.ID,
			Title:          song.Title,
			Plays:          song.PlaysCount,
			Likes:          song.LikesCount,
			EngagementRate: EngagementRate(song.LikesCount, song.PlaysCount),
		})
	}
	sort.SliceStable(out.Songs, func(i, j int) bool {
		return out.Songs[i].Plays > out.Songs[j].Plays
	})
	return out
}

// EngagementRate is likes per hundred plays rounded to one decimal, or
// nil when there are no plays.
func EngagementRate(likes, plays int64) *float64 {
	if plays <= 0 {
		return nil
	}
	r := math.Round(float64(likes)/float64(plays)*100*10) / 10
	return &r
}
