package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// ViewSource returns the optimistic view of a session. *session.Manager
// implements it.
type ViewSource interface {
	View(ctx context.Context, sess *session.Session) (*session.View, error)
}

// NewViewLoader hydrates a session view from the edge tables.
func NewViewLoader(likes repository.LikeRepository, favs repository.FavouriteRepository, follows repository.FollowRepository) session.Loader {
	return func(ctx context.Context, userID string) (*session.ViewData, error) {
		var data session.ViewData
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ids, err := likes.ListSongIDs(ctx, userID)
			data.Liked = ids
			return err
		})
		g.Go(func() error {
			ids, err := favs.ListSongIDs(ctx, userID)
			data.Favourites = ids
			return err
		})
		g.Go(func() error {
			edges, err := follows.ListByFollower(ctx, userID)
			if err != nil {
				return err
			}
			data.Following = make([]string, 0, len(edges))
			for _, f := range edges {
				data.Following = append(data.Following, f.ArtistID)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &data, nil
	}
}

// RelationService toggles likes, favourites and follows. The session view
// changes first; a failed remote write rolls it back.
type RelationService struct {
	views    ViewSource
	songs    repository.SongRepository
	profiles repository.ProfileRepository
	likes    repository.LikeRepository
	favs     repository.FavouriteRepository
	follows  repository.FollowRepository
	pub      EventPublisher
	metrics  *telemetry.Metrics
	log      logger.Logger
	now      func() time.Time
}

// RelationDeps groups the collaborators of RelationService.
type RelationDeps struct {
	Views      ViewSource
	Songs      repository.SongRepository
	Profiles   repository.ProfileRepository
	Likes      repository.LikeRepository
	Favourites repository.FavouriteRepository
	Follows    repository.FollowRepository
	Publisher  EventPublisher
	Metrics    *telemetry.Metrics
	Logger     logger.Logger
}

// NewRelationService creates a RelationService.
func NewRelationService(d RelationDeps) *RelationService {
	return &RelationService{
		views:    d.Views,
		songs:    d.Songs,
		profiles: d.Profiles,
		likes:    d.Likes,
		favs:     d.Favourites,
		follows:  d.Follows,
		pub:      orPublisher(d.Publisher),
		metrics:  d.Metrics,
		log:      orLogger(d.Logger, "relation"),
		now:      time.Now,
	}
}

// ToggleLike likes or unlikes a song and moves its likesCount by one.
func (s *RelationService) ToggleLike(ctx context.Context, sess *session.Session, songID string) (*domain.ToggleResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if strings.TrimSpace(songID) == "" {
		return nil, domain.ErrInvalidSongID
	}
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	view, err := s.views.View(ctx, sess)
	if err != nil {
		return nil, err
	}

	rel := domain.RelationLike
	prior, next := view.Toggle(rel, songID, song.LikesCount)
	s.viewChanged(ctx, sess, rel, songID, next)

	var changed bool
	if next.Active {
		changed, err = s.likes.Create(ctx, domain.NewLike(sess.UserID, songID, s.now()))
	} else {
		changed, err = s.likes.Delete(ctx, sess.UserID, songID)
	}
	if err != nil {
		view.Restore(rel, songID, prior)
		s.record(ctx, rel, "rolled_back")
		s.log.WithContext(ctx).Warn("like edge write failed",
			logger.String("song_id", songID), logger.Error(err))
		return nil, remoteWrite("write like", err)
	}

	notifyLikes := func() {
		notify(ctx, s.log, s.pub, domain.UserLikesTopic(sess.UserID), domain.EventLikesChanged,
			map[string]any{"song_id": songID, "liked": next.Active, "session_id": sess.ID})
	}

	if !changed {
		// The store already had the edge in this state, so the counter
		// stays put and the stored count is the one to show.
		n := song.LikesCount
		view.SetLikeCount(songID, n)
		s.record(ctx, rel, "unchanged")
		notifyLikes()
		return &domain.ToggleResult{Relation: rel, Target: songID, Active: next.Active, LikesCount: &n}, nil
	}

	delta := int64(-1)
	if next.Active {
		delta = 1
	}
	n, err := s.songs.AdjustLikes(ctx, songID, delta)
	if err != nil {
		// The edge landed; only the local count goes back. Reconciliation
		// repairs the stored counter.
		view.RestoreCount(songID, prior)
		s.record(ctx, rel, "count_failed")
		s.log.WithContext(ctx).Warn("likes count write failed",
			logger.String("song_id", songID), logger.Error(err))
		return nil, remoteWrite("update likes count", err)
	}
	view.SetLikeCount(songID, n)
	s.record(ctx, rel, "ok")

	notifyLikes()
	if err := s.pub.PublishMany(ctx, []string{domain.TopicSongs, domain.ArtistSongsTopic(song.ArtistID)},
		domain.EventSongsChanged, map[string]any{"song_id": songID, "likes_count": n}); err != nil {
		s.log.WithContext(ctx).Warn("publish songs changed", logger.Error(err))
	}

	return &domain.ToggleResult{Relation: rel, Target: songID, Active: next.Active, LikesCount: &n}, nil
}

// ToggleFavourite adds or removes a song from the user's favourites.
func (s *RelationService) ToggleFavourite(ctx context.Context, sess *session.Session, songID string) (*domain.ToggleResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if strings.TrimSpace(songID) == "" {
		return nil, domain.ErrInvalidSongID
	}
	if _, err := s.songs.GetByID(ctx, songID); err != nil {
		return nil, err
	}
	view, err := s.views.View(ctx, sess)
	if err != nil {
		return nil, err
	}

	rel := domain.RelationFavourite
	prior, next := view.Toggle(rel, songID, 0)
	s.viewChanged(ctx, sess, rel, songID, next)

	if next.Active {
		err = s.favs.Add(ctx, sess.UserID, songID)
	} else {
		err = s.favs.Remove(ctx, sess.UserID, songID)
	}
	if err != nil {
		view.Restore(rel, songID, prior)
		s.record(ctx, rel, "rolled_back")
		return nil, remoteWrite("write favourite", err)
	}
	s.record(ctx, rel, "ok")

	notify(ctx, s.log, s.pub, domain.UserFavouritesTopic(sess.UserID), domain.EventFavouritesChanged,
		map[string]any{"song_id": songID, "favourite": next.Active, "session_id": sess.ID})
	return &domain.ToggleResult{Relation: rel, Target: songID, Active: next.Active}, nil
}

// ToggleFollow follows or unfollows an artist.
func (s *RelationService) ToggleFollow(ctx context.Context, sess *session.Session, artistID string) (*domain.ToggleResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	edge := &domain.Follow{FollowerID: sess.UserID, ArtistID: strings.TrimSpace(artistID), CreatedAt: s.now()}
	if err := edge.Validate(); err != nil {
		return nil, err
	}

	artist, err := s.profiles.GetByID(ctx, edge.ArtistID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, domain.ErrArtistNotFound
	}
	if err != nil {
		return nil, err
	}
	if artist.Role != domain.RoleArtist {
		return nil, domain.ErrNotAnArtist
	}
	edge.ArtistName = artist.DisplayName

	view, err := s.views.View(ctx, sess)
	if err != nil {
		return nil, err
	}

	rel := domain.RelationFollow
	prior, next := view.Toggle(rel, edge.ArtistID, 0)
	s.viewChanged(ctx, sess, rel, edge.ArtistID, next)

	if next.Active {
		err = s.follows.Create(ctx, edge)
	} else {
		err = s.follows.Delete(ctx, sess.UserID, edge.ArtistID)
	}
	if err != nil {
		view.Restore(rel, edge.ArtistID, prior)
		s.record(ctx, rel, "rolled_back")
		return nil, remoteWrite("write follow", err)
	}
	s.record(ctx, rel, "ok")

	data := map[string]any{"artist_id": edge.ArtistID, "following": next.Active, "session_id": sess.ID}
	notify(ctx, s.log, s.pub, domain.UserFollowsTopic(sess.UserID), domain.EventFollowsChanged, data)
	notify(ctx, s.log, s.pub, domain.ArtistFollowersTopic(edge.ArtistID), domain.EventFollowsChanged, data)
	return &domain.ToggleResult{Relation: rel, Target: edge.ArtistID, Active: next.Active}, nil
}

// Toggle dispatches on the relation kind.
func (s *RelationService) Toggle(ctx context.Context, rel domain.Relation, sess *session.Session, target string) (*domain.ToggleResult, error) {
	switch rel {
	case domain.RelationLike:
		return s.ToggleLike(ctx, sess, target)
	case domain.RelationFavourite:
		return s.ToggleFavourite(ctx, sess, target)
	case domain.RelationFollow:
		return s.ToggleFollow(ctx, sess, target)
	}
	return nil, domain.NewValidationError("unknown relation")
}

// Liked returns the songs the user likes, as the session sees them.
func (s *RelationService) Liked(ctx context.Context, sess *session.Session) ([]*domain.Song, error) {
	return s.songsOf(ctx, sess, domain.RelationLike)
}

// Favourites returns the user's favourite songs.
func (s *RelationService) Favourites(ctx context.Context, sess *session.Session) ([]*domain.Song, error) {
	return s.songsOf(ctx, sess, domain.RelationFavourite)
}

// FavouriteIDs returns the ids of the user's favourite songs.
func (s *RelationService) FavouriteIDs(ctx context.Context, sess *session.Session) ([]string, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	view, err := s.views.View(ctx, sess)
	if err != nil {
		return nil, err
	}
	return view.Members(domain.RelationFavourite), nil
}

func (s *RelationService) songsOf(ctx context.Context, sess *session.Session, rel domain.Relation) ([]*domain.Song, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	view, err := s.views.View(ctx, sess)
	if err != nil {
		return nil, err
	}
	ids := view.Members(rel)
	if len(ids) == 0 {
		return []*domain.Song{}, nil
	}
	songs, err := s.songs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if rel == domain.RelationLike {
		for _, song := range songs {
			if n, ok := view.LikeCount(song.ID); ok {
				song.LikesCount = n
			}
		}
	}
	return songs, nil
}

// Following returns the follow edges of the user.
func (s *RelationService) Following(ctx context.Context, sess *session.Session) ([]*domain.Follow, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.follows.ListByFollower(ctx, sess.UserID)
}

// FollowerCount returns how many users follow the artist.
func (s *RelationService) FollowerCount(ctx context.Context, artistID string) (int64, error) {
	if strings.TrimSpace(artistID) == "" {
		return 0, domain.ErrInvalidArtistID
	}
	return s.follows.CountFollowers(ctx, artistID)
}

func (s *RelationService) viewChanged(ctx context.Context, sess *session.Session, rel domain.Relation, target string, st session.EdgeState) {
	res := domain.ToggleResult{Relation: rel, Target: target, Active: st.Active}
	if st.HasCount {
		n := st.LikesCount
		res.LikesCount = &n
	}
	notify(ctx, s.log, s.pub, viewTopic(rel, sess.UserID), domain.EventViewChanged, res)
}

func viewTopic(rel domain.Relation, userID string) string {
	switch rel {
	case domain.RelationLike:
		return domain.UserLikesTopic(userID)
	case domain.RelationFavourite:
		return domain.UserFavouritesTopic(userID)
	default:
		return domain.UserFollowsTopic(userID)
	}
}

func (s *RelationService) record(ctx context.Context, rel domain.Relation, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RelationToggles.Add(ctx, 1, metric.WithAttributes(
		telemetry.Attr("relation", string(rel)),
		telemetry.Attr("outcome", outcome),
	))
}
