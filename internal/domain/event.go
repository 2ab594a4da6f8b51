package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names a change event.
type EventType string

const (
	EventSongsChanged         EventType = "songs.changed"
	EventLikesChanged         EventType = "likes.changed"
	EventFavouritesChanged    EventType = "favourites.changed"
	EventFollowsChanged       EventType = "follows.changed"
	EventNotificationsChanged EventType = "notifications.changed"
	EventCommentsChanged      EventType = "comments.changed"
	EventViewChanged          EventType = "view.changed"
	EventUploadProgress       EventType = "upload.progress"
	EventSignedOut            EventType = "auth.signed_out"
)

// Event is a change notification carried over pub/sub.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	InstanceID string          `json:"instance_id,omitempty"`
}

// UploadProgress is the payload of EventUploadProgress.
type UploadProgress struct {
	Asset   string `json:"asset"`
	Index   int    `json:"index"`
	Percent int    `json:"percent"`
}

// Topics
const TopicSongs = "songs"

func ArtistSongsTopic(artistID string) string     { return "artist:" + artistID + ":songs" }
func ArtistFollowersTopic(artistID string) string { return "artist:" + artistID + ":followers" }
func UserLikesTopic(userID string) string         { return "user:" + userID + ":likes" }
func UserFollowsTopic(userID string) string       { return "user:" + userID + ":follows" }
func UserFavouritesTopic(userID string) string    { return "user:" + userID + ":favourites" }
func UserNotificationsTopic(userID string) string { return "user:" + userID + ":notifications" }
func SongCommentsTopic(songID string) string      { return "song:" + songID + ":comments" }
func UserSessionTopic(userID string) string       { return "user:" + userID + ":session" }

// TopicKind is the shape of a parsed topic.
type TopicKind string

const (
	TopicKindSongs             TopicKind = "songs"
	TopicKindArtistSongs       TopicKind = "artist_songs"
	TopicKindArtistFollowers   TopicKind = "artist_followers"
	TopicKindUserLikes         TopicKind = "user_likes"
	TopicKindUserFollows       TopicKind = "user_follows"
	TopicKindUserFavourites    TopicKind = "user_favourites"
	TopicKindUserNotifications TopicKind = "user_notifications"
	TopicKindSongComments      TopicKind = "song_comments"
	TopicKindUserSession       TopicKind = "user_session"
)

// ParseTopic splits a topic into its kind and subject id.
func ParseTopic(topic string) (TopicKind, string, bool) {
	if topic == TopicSongs {
		return TopicKindSongs, "", true
	}
	parts := strings.Split(topic, ":")
	if len(parts) != 3 || parts[1] == "" {
		return "", "", false
	}
	id := parts[1]
	switch parts[0] + ":" + parts[2] {
	case "artist:songs":
		return TopicKindArtistSongs, id, true
	case "artist:followers":
		return TopicKindArtistFollowers, id, true
	case "user:likes":
		return TopicKindUserLikes, id, true
	case "user:follows":
		return TopicKindUserFollows, id, true
	case "user:favourites":
		return TopicKindUserFavourites, id, true
	case "user:notifications":
		return TopicKindUserNotifications, id, true
	case "song:comments":
		return TopicKindSongComments, id, true
	case "user:session":
		return TopicKindUserSession, id, true
	}
	return "", "", false
}
