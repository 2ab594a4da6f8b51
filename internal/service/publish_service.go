package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/internal/storage"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// UploadFile is one file of a publish request.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// PublishRequest describes a single or an album.
type PublishRequest struct {
	Kind  domain.PublishKind
	Title string
	Cover *UploadFile
	Audio []UploadFile
	// TrackTitles optionally names album tracks by position. Blank entries
	// fall back to the file name.
	TrackTitles []string
}

// Validate checks the request shape before anything is uploaded.
func (r *PublishRequest) Validate() error {
	if r.Kind != domain.PublishSingle && r.Kind != domain.PublishAlbum {
		return domain.ErrInvalidPublishKind
	}
	if strings.TrimSpace(r.Title) == "" {
		return domain.ErrTitleRequired
	}
	if r.Cover == nil || r.Cover.Body == nil {
		return domain.ErrCoverRequired
	}
	if len(r.Audio) == 0 {
		return domain.ErrAudioRequired
	}
	if r.Kind == domain.PublishSingle && len(r.Audio) != 1 {
		return domain.ErrSingleOneAudio
	}
	for _, f := range r.Audio {
		if f.Body == nil {
			return domain.ErrAudioRequired
		}
	}
	return nil
}

func (r *PublishRequest) trackTitle(i int) string {
	if r.Kind == domain.PublishSingle {
		return strings.TrimSpace(r.Title)
	}
	if i < len(r.TrackTitles) {
		if t := strings.TrimSpace(r.TrackTitles[i]); t != "" {
			return t
		}
	}
	return domain.TitleFromFileName(r.Audio[i].Name)
}

// Asset names used in progress reports.
const (
	AssetCover = "cover"
	AssetAudio = "audio"
)

// ProgressFunc receives per-asset upload progress. index is the audio
// file's position and 0 for the cover.
type ProgressFunc func(asset string, index, percent int)

// PublishResult lists what was persisted. After a partial failure it holds
// exactly the records that landed.
type PublishResult struct {
	CoverURL string         `json:"coverUrl,omitempty"`
	Album    *domain.Album  `json:"album,omitempty"`
	Songs    []*domain.Song `json:"songs"`
	Notified int64          `json:"notified"`
	Failed   []string       `json:"failed,omitempty"`
}

// PublishService uploads releases and fans out follower notifications.
// Writes are sequential and never rolled back.
type PublishService struct {
	objects       storage.ObjectStore
	songs         repository.SongRepository
	albums        repository.AlbumRepository
	profiles      repository.ProfileRepository
	follows       repository.FollowRepository
	notifications repository.NotificationRepository
	pub           EventPublisher
	metrics       *telemetry.Metrics
	log           logger.Logger
	now           func() time.Time
}

// PublishDeps groups the collaborators of PublishService.
type PublishDeps struct {
	Objects       storage.ObjectStore
	Songs         repository.SongRepository
	Albums        repository.AlbumRepository
	Profiles      repository.ProfileRepository
	Follows       repository.FollowRepository
	Notifications repository.NotificationRepository
	Publisher     EventPublisher
	Metrics       *telemetry.Metrics
	Logger        logger.Logger
}

// NewPublishService creates a PublishService.
func NewPublishService(d PublishDeps) *PublishService {
	return &PublishService{
		objects:       d.Objects,
		songs:         d.Songs,
		albums:        d.Albums,
		profiles:      d.Profiles,
		follows:       d.Follows,
		notifications: d.Notifications,
		pub:           orPublisher(d.Publisher),
		metrics:       d.Metrics,
		log:           orLogger(d.Logger, "publish"),
		now:           time.Now,
	}
}

// Publish uploads the cover, writes the album if any, then uploads and
// writes each song in order and finally notifies followers.
//
// A cover failure returns ErrRemoteWrite with nothing persisted. Any later
// failure returns ErrPartialUpload together with the result so far.
func (s *PublishService) Publish(ctx context.Context, sess *session.Session, req PublishRequest, progress ProgressFunc) (*PublishResult, error) {
	if err := requireRole(sess, domain.RoleArtist); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	artist, err := s.profiles.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	log := s.log.WithContext(ctx).WithFields(
		logger.String("artist_id", artist.ID),
		logger.String("kind", string(req.Kind)),
	)
	report := s.reporter(ctx, artist.ID, progress)
	result := &PublishResult{Songs: make([]*domain.Song, 0, len(req.Audio))}

	coverURL, err := s.upload(ctx, storage.CoverPrefix, req.Cover, func(p int) { report(AssetCover, 0, p) })
	if err != nil {
		s.record(ctx, req.Kind, "cover_failed")
		log.Warn("cover upload failed", logger.Error(err))
		return nil, remoteWrite("upload cover", err)
	}
	result.CoverURL = coverURL

	var albumID *string
	if req.Kind == domain.PublishAlbum {
		album := &domain.Album{
			ID:        uuid.New().String(),
			Title:     strings.TrimSpace(req.Title),
			ArtistID:  artist.ID,
			CoverURL:  coverURL,
			SongCount: len(req.Audio),
			CreatedAt: s.now(),
		}
		if err := s.albums.Create(ctx, album); err != nil {
			return s.partial(ctx, log, req, result, "create album", err)
		}
		result.Album = album
		albumID = &album.ID
	}

	for i := range req.Audio {
		f := &req.Audio[i]
		idx := i
		audioURL, err := s.upload(ctx, storage.SongPrefix, f, func(p int) { report(AssetAudio, idx, p) })
		if err != nil {
			result.Failed = failedNames(req.Audio[i:])
			return s.partial(ctx, log, req, result, "upload "+f.Name, err)
		}

		song := &domain.Song{
			ID:                uuid.New().String(),
			Title:             req.trackTitle(i),
			ArtistID:          artist.ID,
			ArtistDisplayName: artist.DisplayName,
			AudioURL:          audioURL,
			CoverURL:          coverURL,
			AlbumID:           albumID,
			CreatedAt:         s.now(),
		}
		if err := s.songs.Create(ctx, song); err != nil {
			result.Failed = failedNames(req.Audio[i:])
			return s.partial(ctx, log, req, result, "create song "+song.Title, err)
		}
		result.Songs = append(result.Songs, song)
	}

	s.songsChanged(ctx, artist.ID)

	n, err := s.fanOut(ctx, artist, req)
	if err != nil {
		return s.partial(ctx, log, req, result, "notify followers", err)
	}
	result.Notified = n

	s.record(ctx, req.Kind, "ok")
	log.Info("release published",
		logger.Int("songs", len(result.Songs)),
		logger.Int64("notified", n),
	)
	return result, nil
}

func (s *PublishService) partial(ctx context.Context, log logger.Logger, req PublishRequest, result *PublishResult, op string, err error) (*PublishResult, error) {
	s.record(ctx, req.Kind, "partial")
	log.Warn("publish stopped part way",
		logger.String("step", op),
		logger.Int("songs_written", len(result.Songs)),
		logger.Bool("album_written", result.Album != nil),
		logger.Error(err),
	)
	if len(result.Songs) > 0 {
		s.songsChanged(ctx, result.Songs[0].ArtistID)
	}
	return result, fmt.Errorf("%w: %s: %v", domain.ErrPartialUpload, op, err)
}

func (s *PublishService) upload(ctx context.Context, prefix string, f *UploadFile, progress storage.ProgressFunc) (string, error) {
	key := storage.ObjectKey(prefix, f.Name, s.now())
	url, err := s.objects.Put(ctx, key, f.Body, f.Size, f.ContentType, progress)
	if err != nil {
		return "", err
	}
	if s.metrics != nil && f.Size > 0 {
		s.metrics.UploadedBytes.Add(ctx, f.Size, metric.WithAttributes(telemetry.Attr("prefix", prefix)))
	}
	return url, nil
}

// fanOut writes one notification per follower in a single statement and
// pings each follower's channel.
func (s *PublishService) fanOut(ctx context.Context, artist *domain.UserProfile, req PublishRequest) (int64, error) {
	followers, err := s.follows.ListFollowerIDs(ctx, artist.ID)
	if err != nil {
		return 0, err
	}
	if len(followers) == 0 {
		return 0, nil
	}

	typ := domain.NotificationTypeFor(req.Kind)
	msg := domain.ReleaseMessage(typ, artist.DisplayName, strings.TrimSpace(req.Title))
	now := s.now()
	batch := make([]*domain.Notification, 0, len(followers))
	topics := make([]string, 0, len(followers))
	for _, uid := range followers {
		batch = append(batch, &domain.Notification{
			ID:         uuid.New().String(),
			UserID:     uid,
			ArtistID:   artist.ID,
			ArtistName: artist.DisplayName,
			Message:    msg,
			Type:       typ,
			CreatedAt:  now,
		})
		topics = append(topics, domain.UserNotificationsTopic(uid))
	}

	n, err := s.notifications.CreateBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Add(ctx, n)
	}
	if err := s.pub.PublishMany(ctx, topics, domain.EventNotificationsChanged,
		map[string]string{"artist_id": artist.ID, "type": string(typ)}); err != nil {
		s.log.WithContext(ctx).Warn("publish notification events", logger.Error(err))
	}
	return n, nil
}

// reporter forwards every step to fn and publishes coarser steps on the
// artist's topic.
func (s *PublishService) reporter(ctx context.Context, artistID string, fn ProgressFunc) ProgressFunc {
	last := map[string]int{}
	return func(asset string, index, percent int) {
		if fn != nil {
			fn(asset, index, percent)
		}
		key := fmt.Sprintf("%s/%d", asset, index)
		prev, seen := last[key]
		if seen && percent/10 <= prev/10 && percent != 100 {
			return
		}
		last[key] = percent
		notify(ctx, s.log, s.pub, domain.ArtistSongsTopic(artistID), domain.EventUploadProgress,
			domain.UploadProgress{Asset: asset, Index: index, Percent: percent})
	}
}

func (s *PublishService) songsChanged(ctx context.Context, artistID string) {
	if err := s.pub.PublishMany(ctx, []string{domain.TopicSongs, domain.ArtistSongsTopic(artistID)},
		domain.EventSongsChanged, map[string]string{"artist_id": artistID}); err != nil {
		s.log.WithContext(ctx).Warn("publish songs changed", logger.Error(err))
	}
}

func (s *PublishService) record(ctx context.Context, kind domain.PublishKind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Uploads.Add(ctx, 1, metric.WithAttributes(
		telemetry.Attr("kind", string(kind)),
		telemetry.Attr("outcome", outcome),
	))
}

func failedNames(files []UploadFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

// Delete removes one of the artist's songs. Only the song row is removed.
func (s *PublishService) Delete(ctx context.Context, sess *session.Session, songID string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return err
	}
	if song.ArtistID != sess.UserID {
		return domain.ErrForbidden
	}
	if err := s.songs.Delete(ctx, songID); err != nil {
		return err
	}
	s.log.WithContext(ctx).Info("song deleted", logger.String("song_id", songID))
	s.songsChanged(ctx, song.ArtistID)
	return nil
}
