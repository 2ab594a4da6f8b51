package domain

import (
	"strings"
	"time"
)

// Relation is a kind of user-owned edge.
type Relation string

const (
	RelationLike      Relation = "like"
	RelationFavourite Relation = "favourite"
	RelationFollow    Relation = "follow"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationLike, RelationFavourite, RelationFollow:
		return true
	}
	return false
}

// LikeID builds the deterministic id of a like edge.
func LikeID(userID, songID string) string {
	return userID + "_" + songID
}

// Like is a user-song edge. Its existence means "liked".
type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SongID    string    `json:"songId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewLike builds a like edge with its deterministic id.
func NewLike(userID, songID string, now time.Time) *Like {
	return &Like{ID: LikeID(userID, songID), UserID: userID, SongID: songID, CreatedAt: now}
}

// Follow is a follower-artist edge. The pair is unique.
type Follow struct {
	FollowerID string    `json:"followerId"`
	ArtistID   string    `json:"artistId"`
	ArtistName string    `json:"artistName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the edge before it is stored.
func (f *Follow) Validate() error {
	if strings.TrimSpace(f.ArtistID) == "" {
		return ErrInvalidArtistID
	}
	if f.FollowerID == f.ArtistID {
		return ErrFollowSelf
	}
	return nil
}

// ToggleResult is the outcome of a relationship toggle.
type ToggleResult struct {
	Relation   Relation `json:"relation"`
	Target     string   `json:"target"`
	Active     bool     `json:"active"`
	LikesCount *int64   `json:"likesCount,omitempty"`
}
