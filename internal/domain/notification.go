package domain

import (
	"fmt"
	"time"
)

// NotificationType names what the artist released.
type NotificationType string

const (
	NotificationNewSong  NotificationType = "new_song"
	NotificationNewAlbum NotificationType = "new_album"
)

// Notification is written once per follower when an artist publishes.
type Notification struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	ArtistID   string           `json:"artistId"`
	ArtistName string           `json:"artistName"`
	Message    string           `json:"message"`
	Type       NotificationType `json:"type"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// ReleaseMessage formats the fan-out text for a release.
func ReleaseMessage(kind NotificationType, artistName, title string) string {
	if kind == NotificationNewAlbum {
		return fmt.Sprintf("%s released a new album: %s", artistName, title)
	}
	return fmt.Sprintf("%s released a new song: %s", artistName, title)
}

// NotificationTypeFor maps a publish kind to its notification type.
func NotificationTypeFor(kind PublishKind) NotificationType {
	if kind == PublishAlbum {
		return NotificationNewAlbum
	}
	return NotificationNewSong
}
