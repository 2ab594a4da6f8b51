package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCommentLength is counted in characters, not bytes.
const MaxCommentLength = 500

// Comment is append-only.
type Comment struct {
	ID              string    `json:"id"`
	SongID          string    `json:"songId"`
	ArtistID        string    `json:"artistId"`
	UserID          string    `json:"userId"`
	UserDisplayName string    `json:"userDisplayName"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ValidateCommentText trims text and checks its length.
func ValidateCommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrCommentEmpty
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return "", ErrCommentTooLong
	}
	return text, nil
}
