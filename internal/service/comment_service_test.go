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
	"github.com/dnspotify/server/pkg/logger"
)

func TestCommentService_Post(t *testing.T) {
	comments := new(MockCommentRepository)
	songs := new(MockSongRepository)
	profiles := new(MockProfileRepository)
	pub := new(MockPublisher)
	svc := NewCommentService(comments, songs, profiles, pub, logger.Nop())
	ctx := context.Background()

	songs.On("GetByID", ctx, "s1").Return(&domain.Song{ID: "s1", ArtistID: "a1"}, nil)
	profiles.On("GetByID", ctx, "u1").Return(listenerProfile("u1"), nil)
	comments.On("Create", ctx, mock.MatchedBy(func(c *domain.Comment) bool {
		return c.Text == "great track" && c.ArtistID == "a1" && c.UserID == "u1" && c.UserDisplayName != ""
	})).Return(nil)
	pub.On("Publish", ctx, domain.SongCommentsTopic("s1"), domain.EventCommentsChanged, mock.Anything).Return(nil)

	c, err := svc.Post(ctx, listenerSession(), "s1", "  great track ")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	comments.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCommentService_Post_Rejects(t *testing.T) {
	comments := new(MockCommentRepository)
	songs := new(MockSongRepository)
	profiles := new(MockProfileRepository)
	svc := NewCommentService(comments, songs, profiles, nil, logger.Nop())
	ctx := context.Background()

	_, err := svc.Post(ctx, nil, "s1", "hello")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.Post(ctx, listenerSession(), "s1", "   ")
	assert.ErrorIs(t, err, domain.ErrCommentEmpty)

	_, err = svc.Post(ctx, listenerSession(), "s1", strings.Repeat("x", 501))
	assert.ErrorIs(t, err, domain.ErrCommentTooLong)

	songs.On("GetByID", ctx, "gone").Return(nil, domain.ErrSongNotFound)
	_, err = svc.Post(ctx, listenerSession(), "gone", "hello")
	assert.ErrorIs(t, err, domain.ErrSongNotFound)

	comments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCommentService_Post_WriteFailure(t *testing.T) {
	comments := new(MockCommentRepository)
	songs := new(MockSongRepository)
	profiles := new(MockProfileRepository)
	svc := NewCommentService(comments, songs, profiles, nil, logger.Nop())
	ctx := context.Background()

	songs.On("GetByID", ctx, "s1").Return(&domain.Song{ID: "s1", ArtistID: "a1"}, nil)
	profiles.On("GetByID", ctx, "u1").Return(listenerProfile("u1"), nil)
	comments.On("Create", ctx, mock.Anything).Return(errors.New("connection refused"))

	_, err := svc.Post(ctx, listenerSession(), "s1", "hello")
	assert.ErrorIs(t, err, domain.ErrRemoteWrite)
}

func TestCommentService_List(t *testing.T) {
	comments := new(MockCommentRepository)
	svc := NewCommentService(comments, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSongID)

	want := []*domain.Comment{{ID: "c1"}, {ID: "c2"}}
	comments.On("ListBySong", ctx, "s1").Return(want, nil)
	got, err := svc.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
