package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/storage"
)

// MockProfileRepository mocks repository.ProfileRepository.
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Create(ctx context.Context, p *domain.UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}

func (m *MockProfileRepository) UpdateDisplayName(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

// MockSongRepository mocks repository.SongRepository.
type MockSongRepository struct {
	mock.Mock
}

func (m *MockSongRepository) Create(ctx context.Context, song *domain.Song) error {
	args := m.Called(ctx, song)
	return args.Error(0)
}

func (m *MockSongRepository) Upsert(ctx context.Context, song *domain.Song) error {
	args := m.Called(ctx, song)
	return args.Error(0)
}

func (m *MockSongRepository) GetByID(ctx context.Context, id string) (*domain.Song, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Song), args.Error(1)
}

func (m *MockSongRepository) List(ctx context.Context) ([]*domain.Song, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *MockSongRepository) ListByArtist(ctx context.Context, artistID string) ([]*domain.Song, error) {
	args := m.Called(ctx, artistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *MockSongRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Song, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *MockSongRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSongRepository) AdjustLikes(ctx context.Context, id string, delta int64) (int64, error) {
	args := m.Called(ctx, id, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSongRepository) IncrementPlays(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSongRepository) ReconcileLikeCounts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockAlbumRepository mocks repository.AlbumRepository.
type MockAlbumRepository struct {
	mock.Mock
}

func (m *MockAlbumRepository) Create(ctx context.Context, album *domain.Album) error {
	args := m.Called(ctx, album)
	return args.Error(0)
}

func (m *MockAlbumRepository) Upsert(ctx context.Context, album *domain.Album) error {
	args := m.Called(ctx, album)
	return args.Error(0)
}

func (m *MockAlbumRepository) GetByID(ctx context.Context, id string) (*domain.Album, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Album), args.Error(1)
}

// MockLikeRepository mocks repository.LikeRepository.
type MockLikeRepository struct {
	mock.Mock
}

func (m *MockLikeRepository) Create(ctx context.Context, like *domain.Like) (bool, error) {
	args := m.Called(ctx, like)
	return args.Bool(0), args.Error(1)
}

func (m *MockLikeRepository) Delete(ctx context.Context, userID, songID string) (bool, error) {
	args := m.Called(ctx, userID, songID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLikeRepository) Exists(ctx context.Context, userID, songID string) (bool, error) {
	args := m.Called(ctx, userID, songID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLikeRepository) ListSongIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockFavouriteRepository mocks repository.FavouriteRepository.
type MockFavouriteRepository struct {
	mock.Mock
}

func (m *MockFavouriteRepository) Add(ctx context.Context, userID, songID string) error {
	args := m.Called(ctx, userID, songID)
	return args.Error(0)
}

func (m *MockFavouriteRepository) Remove(ctx context.Context, userID, songID string) error {
	args := m.Called(ctx, userID, songID)
	return args.Error(0)
}

func (m *MockFavouriteRepository) ListSongIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockFollowRepository mocks repository.FollowRepository.
type MockFollowRepository struct {
	mock.Mock
}

func (m *MockFollowRepository) Create(ctx context.Context, follow *domain.Follow) error {
	args := m.Called(ctx, follow)
	return args.Error(0)
}

func (m *MockFollowRepository) Delete(ctx context.Context, followerID, artistID string) error {
	args := m.Called(ctx, followerID, artistID)
	return args.Error(0)
}

func (m *MockFollowRepository) ListByFollower(ctx context.Context, followerID string) ([]*domain.Follow, error) {
	args := m.Called(ctx, followerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Follow), args.Error(1)
}

func (m *MockFollowRepository) ListFollowerIDs(ctx context.Context, artistID string) ([]string, error) {
	args := m.Called(ctx, artistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFollowRepository) CountFollowers(ctx context.Context, artistID string) (int64, error) {
	args := m.Called(ctx, artistID)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotificationRepository mocks repository.NotificationRepository.
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) CreateBatch(ctx context.Context, ns []*domain.Notification) (int64, error) {
	args := m.Called(ctx, ns)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockCommentRepository mocks repository.CommentRepository.
type MockCommentRepository struct {
	mock.Mock
}

func (m *MockCommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCommentRepository) ListBySong(ctx context.Context, songID string) ([]*domain.Comment, error) {
	args := m.Called(ctx, songID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Comment), args.Error(1)
}

// MockPublisher records published events.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, typ domain.EventType, data any) error {
	args := m.Called(ctx, topic, typ, data)
	return args.Error(0)
}

func (m *MockPublisher) PublishMany(ctx context.Context, topics []string, typ domain.EventType, data any) error {
	args := m.Called(ctx, topics, typ, data)
	return args.Error(0)
}

// fakeObjectStore drains uploads into memory. failAt fails the n-th Put,
// counted from zero.
type fakeObjectStore struct {
	mu     sync.Mutex
	calls  int
	keys   []string
	failAt map[int]error
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()
	if err, ok := f.failAt[n]; ok {
		return "", err
	}

	var pr *storage.ProgressReader
	if progress != nil {
		pr = storage.NewProgressReader(size, progress)
	}
	buf := make([]byte, 4)
	for {
		k, err := r.Read(buf)
		if pr != nil && k > 0 {
			pr.Add(int64(k))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeObjectStore) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}
