package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/logger"
)

// CommentService posts and lists song comments.
type CommentService struct {
	comments repository.CommentRepository
	songs    repository.SongRepository
	profiles repository.ProfileRepository
	pub      EventPublisher
	log      logger.Logger
	now      func() time.Time
}

// NewCommentService creates a CommentService.
func NewCommentService(comments repository.CommentRepository, songs repository.SongRepository,
	profiles repository.ProfileRepository, pub EventPublisher, log logger.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		songs:    songs,
		profiles: profiles,
		pub:      orPublisher(pub),
		log:      orLogger(log, "comment"),
		now:      time.Now,
	}
}

// Post appends a comment. The author's current display name is copied
// onto the comment.
func (s *CommentService) Post(ctx context.Context, sess *session.Session, songID, text string) (*domain.Comment, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	text, err := domain.ValidateCommentText(text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(songID) == "" {
		return nil, domain.ErrInvalidSongID
	}

	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	author, err := s.profiles.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	c := &domain.Comment{
		ID:              uuid.New().String(),
		SongID:          song.ID,
		ArtistID:        song.ArtistID,
		UserID:          sess.UserID,
		UserDisplayName: author.DisplayName,
		Text:            text,
		CreatedAt:       s.now(),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, remoteWrite("create comment", err)
	}

	notify(ctx, s.log, s.pub, domain.SongCommentsTopic(song.ID), domain.EventCommentsChanged,
		map[string]string{"comment_id": c.ID})
	return c, nil
}

// List returns the comments of a song, oldest first.
func (s *CommentService) List(ctx context.Context, songID string) ([]*domain.Comment, error) {
	if strings.TrimSpace(songID) == "" {
		return nil, domain.ErrInvalidSongID
	}
	return s.comments.ListBySong(ctx, songID)
}
