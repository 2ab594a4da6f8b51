package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

type publishFixture struct {
	svc           *PublishService
	objects       *fakeObjectStore
	songs         *MockSongRepository
	albums        *MockAlbumRepository
	profiles      *MockProfileRepository
	follows       *MockFollowRepository
	notifications *MockNotificationRepository
	pub           *MockPublisher
}

func newPublishFixture(t *testing.T, failAt map[int]error) *publishFixture {
	t.Helper()
	f := &publishFixture{
		objects:       &fakeObjectStore{failAt: failAt},
		songs:         new(MockSongRepository),
		albums:        new(MockAlbumRepository),
		profiles:      new(MockProfileRepository),
		follows:       new(MockFollowRepository),
		notifications: new(MockNotificationRepository),
		pub:           new(MockPublisher),
	}
	f.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.pub.On("PublishMany", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.profiles.On("GetByID", mock.Anything, "a1").
		Return(&domain.UserProfile{ID: "a1", DisplayName: "Nova", Role: domain.RoleArtist}, nil).Maybe()
	f.svc = NewPublishService(PublishDeps{
		Objects:       f.objects,
		Songs:         f.songs,
		Albums:        f.albums,
		Profiles:      f.profiles,
		Follows:       f.follows,
		Notifications: f.notifications,
		Publisher:     f.pub,
		Logger:        logger.Nop(),
	})
	return f
}

func artistSession() *session.Session {
	return &session.Session{ID: "s1", UserID: "a1", Role: domain.RoleArtist}
}

func file(name, body string) UploadFile {
	return UploadFile{Name: name, Size: int64(len(body)), ContentType: "application/octet-stream", Body: strings.NewReader(body)}
}

func coverFile() *UploadFile {
	f := file("cover.png", "png-bytes")
	return &f
}

func TestPublishService_Single(t *testing.T) {
	f := newPublishFixture(t, nil)
	ctx := context.Background()

	f.songs.On("Create", ctx, mock.MatchedBy(func(s *domain.Song) bool {
		return s.Title == "Glow" && s.ArtistDisplayName == "Nova" && s.AlbumID == nil &&
			strings.Contains(s.AudioURL, "songs/") && strings.Contains(s.CoverURL, "covers/")
	})).Return(nil)
	f.follows.On("ListFollowerIDs", ctx, "a1").Return([]string{"f1", "f2"}, nil)
	f.notifications.On("CreateBatch", ctx, mock.MatchedBy(func(ns []*domain.Notification) bool {
		return len(ns) == 2 && ns[0].UserID == "f1" && ns[1].Type == domain.NotificationNewSong &&
			ns[0].Message == "Nova released a new song: Glow"
	})).Return(int64(2), nil)

	var steps []int
	res, err := f.svc.Publish(ctx, artistSession(), PublishRequest{
		Kind:  domain.PublishSingle,
		Title: " Glow ",
		Cover: coverFile(),
		Audio: []UploadFile{file("glow.mp3", "some audio bytes")},
	}, func(asset string, index, percent int) {
		if asset == AssetAudio {
			steps = append(steps, percent)
		}
	})
	require.NoError(t, err)
	require.Len(t, res.Songs, 1)
	assert.Nil(t, res.Album)
	assert.Equal(t, int64(2), res.Notified)

	require.NotEmpty(t, steps)
	assert.Equal(t, 0, steps[0])
	assert.Equal(t, 100, steps[len(steps)-1])
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i], steps[i-1])
	}

	f.pub.AssertCalled(t, "PublishMany", ctx,
		[]string{domain.UserNotificationsTopic("f1"), domain.UserNotificationsTopic("f2")},
		domain.EventNotificationsChanged, mock.Anything)
	f.pub.AssertCalled(t, "Publish", ctx, domain.ArtistSongsTopic("a1"), domain.EventUploadProgress, mock.Anything)
	f.notifications.AssertExpectations(t)
}

func TestPublishService_AlbumTitles(t *testing.T) {
	f := newPublishFixture(t, nil)
	ctx := context.Background()

	var album *domain.Album
	f.albums.On("Create", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		album = args.Get(1).(*domain.Album)
	})
	var created []*domain.Song
	f.songs.On("Create", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		created = append(created, args.Get(1).(*domain.Song))
	})
	f.follows.On("ListFollowerIDs", ctx, "a1").Return([]string{}, nil)

	res, err := f.svc.Publish(ctx, artistSession(), PublishRequest{
		Kind:        domain.PublishAlbum,
		Title:       "Night",
		Cover:       coverFile(),
		Audio:       []UploadFile{file("01 Intro.mp3", "aaaa"), file("dir/02-outro.wav", "bbbb")},
		TrackTitles: []string{"", "Outro"},
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Album)
	assert.Same(t, album, res.Album)
	assert.Equal(t, 2, album.SongCount)
	require.Len(t, created, 2)
	assert.Equal(t, "01 Intro", created[0].Title)
	assert.Equal(t, "Outro", created[1].Title)
	for _, song := range created {
		require.NotNil(t, song.AlbumID)
		assert.Equal(t, album.ID, *song.AlbumID)
	}
	f.notifications.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestPublishService_AlbumSecondUploadFails(t *testing.T) {
	// cover is Put #0, first track #1, second track #2
	f := newPublishFixture(t, map[int]error{2: errors.New("storage unavailable")})
	ctx := context.Background()

	f.albums.On("Create", ctx, mock.Anything).Return(nil).Once()
	f.songs.On("Create", ctx, mock.Anything).Return(nil).Once()

	res, err := f.svc.Publish(ctx, artistSession(), PublishRequest{
		Kind:  domain.PublishAlbum,
		Title: "Night",
		Cover: coverFile(),
		Audio: []UploadFile{file("a.mp3", "aaaa"), file("b.mp3", "bbbb")},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrPartialUpload)
	require.NotNil(t, res)
	assert.NotNil(t, res.Album)
	assert.Len(t, res.Songs, 1)
	assert.Equal(t, []string{"b.mp3"}, res.Failed)

	f.albums.AssertNumberOfCalls(t, "Create", 1)
	f.songs.AssertNumberOfCalls(t, "Create", 1)
	f.follows.AssertNotCalled(t, "ListFollowerIDs", mock.Anything, mock.Anything)
}

func TestPublishService_CoverFailure(t *testing.T) {
	f := newPublishFixture(t, map[int]error{0: errors.New("denied")})
	ctx := context.Background()

	res, err := f.svc.Publish(ctx, artistSession(), PublishRequest{
		Kind:  domain.PublishSingle,
		Title: "Glow",
		Cover: coverFile(),
		Audio: []UploadFile{file("glow.mp3", "x")},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrRemoteWrite)
	assert.Nil(t, res)
	assert.Empty(t, f.objects.Keys())
	f.songs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.albums.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPublishService_Validation(t *testing.T) {
	f := newPublishFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PublishRequest
		want error
	}{
		{"unknown kind", PublishRequest{Kind: "ep", Title: "x", Cover: coverFile(), Audio: []UploadFile{file("a", "1")}}, domain.ErrInvalidPublishKind},
		{"no title", PublishRequest{Kind: domain.PublishSingle, Title: " ", Cover: coverFile(), Audio: []UploadFile{file("a", "1")}}, domain.ErrTitleRequired},
		{"no cover", PublishRequest{Kind: domain.PublishSingle, Title: "x", Audio: []UploadFile{file("a", "1")}}, domain.ErrCoverRequired},
		{"single with two files", PublishRequest{Kind: domain.PublishSingle, Title: "x", Cover: coverFile(), Audio: []UploadFile{file("a", "1"), file("b", "2")}}, domain.ErrSingleOneAudio},
		{"empty album", PublishRequest{Kind: domain.PublishAlbum, Title: "x", Cover: coverFile()}, domain.ErrAudioRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Publish(ctx, artistSession(), tt.req, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.objects.Keys())
}

func TestPublishService_RequiresArtist(t *testing.T) {
	f := newPublishFixture(t, nil)
	req := PublishRequest{Kind: domain.PublishSingle, Title: "x", Cover: coverFile(), Audio: []UploadFile{file("a", "1")}}

	_, err := f.svc.Publish(context.Background(), listenerSession(), req, nil)
	assert.ErrorIs(t, err, domain.ErrRoleMismatch)
	_, err = f.svc.Publish(context.Background(), nil, req, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestPublishService_Delete(t *testing.T) {
	f := newPublishFixture(t, nil)
	ctx := context.Background()

	f.songs.On("GetByID", ctx, "gone").Return(nil, domain.ErrSongNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, artistSession(), "gone"), domain.ErrSongNotFound)

	f.songs.On("GetByID", ctx, "other").Return(&domain.Song{ID: "other", ArtistID: "a2"}, nil)
	assert.ErrorIs(t, f.svc.Delete(ctx, artistSession(), "other"), domain.ErrForbidden)

	f.songs.On("GetByID", ctx, "mine").Return(&domain.Song{ID: "mine", ArtistID: "a1"}, nil)
	f.songs.On("Delete", ctx, "mine").Return(nil)
	require.NoError(t, f.svc.Delete(ctx, artistSession(), "mine"))
	f.songs.AssertNumberOfCalls(t, "Delete", 1)
}
