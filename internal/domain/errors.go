package domain

import "errors"

var (
	// Categories. Handlers map these to API error codes.
	ErrUnauthenticated = errors.New("please sign in to continue")
	ErrValidation      = errors.New("validation failed")
	ErrRoleMismatch    = errors.New("Access Denied")
	ErrRemoteWrite     = errors.New("remote write failed")
	ErrPartialUpload   = errors.New("upload partially completed")
	ErrForbidden       = errors.New("forbidden")
	ErrRateLimited     = errors.New("too many attempts, try again later")
)

var (
	// Not found
	ErrProfileNotFound      = errors.New("User profile not found")
	ErrSongNotFound         = errors.New("song not found")
	ErrAlbumNotFound        = errors.New("album not found")
	ErrArtistNotFound       = errors.New("artist not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrPlaylistNotFound     = errors.New("playlist not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrCredentialNotFound   = errors.New("credential not found")
)

var (
	// Auth
	ErrInvalidEmail       = NewValidationError("please enter a valid email address")
	ErrPasswordTooShort   = NewValidationError("password must be at least 6 characters")
	ErrPasswordTooLong    = NewValidationError("password must be at most 72 bytes")
	ErrDisplayNameEmpty   = NewValidationError("display name is required")
	ErrInvalidRole        = NewValidationError("role must be listener or artist")
	ErrEmailInUse         = NewValidationError("email already in use")
	ErrInvalidCredentials = NewValidationError("invalid email or password")
	ErrWrongPassword      = NewValidationError("current password is incorrect")

	// Catalogue and upload
	ErrTitleRequired      = NewValidationError("title is required")
	ErrCoverRequired      = NewValidationError("a cover image is required")
	ErrAudioRequired      = NewValidationError("at least one audio file is required")
	ErrSingleOneAudio     = NewValidationError("a single needs exactly one audio file")
	ErrInvalidPublishKind = NewValidationError("kind must be single or album")
	ErrInvalidSongID      = NewValidationError("invalid song id")
	ErrInvalidArtistID    = NewValidationError("invalid artist id")
	ErrFollowSelf         = NewValidationError("you cannot follow yourself")
	ErrNotAnArtist        = NewValidationError("only artists can be followed")
	ErrInvalidTab         = NewValidationError("tab must be all or favourites")

	// Comments
	ErrCommentEmpty   = NewValidationError("comment cannot be empty")
	ErrCommentTooLong = NewValidationError("comment must be at most 500 characters")

	// Playlists
	ErrInvalidPlaylistName   = NewValidationError("playlist name is required")
	ErrPlaylistNameTooLong   = NewValidationError("playlist name must be at most 100 characters")
	ErrSongAlreadyInPlaylist = NewValidationError("song already in playlist")
	ErrSongNotInPlaylist     = NewValidationError("song not in playlist")

	// Player
	ErrNothingLoaded      = NewValidationError("no song is loaded")
	ErrInvalidSeek        = NewValidationError("seek position must be between 0 and 1")
	ErrInvalidSkip        = NewValidationError("skip direction must be -1 or 1")
	ErrInvalidDeviceID    = NewValidationError("device id is required")
	ErrInvalidNotifyType  = NewValidationError("unknown notification type")
	ErrInvalidLegacyField = NewValidationError("legacy document is missing required fields")
	ErrInvalidTopic       = NewValidationError("unknown topic")
)

// ValidationError is a user-facing input error. errors.Is(err, ErrValidation)
// holds for every ValidationError.
type ValidationError struct {
	Message string
}

// NewValidationError creates a validation error with a verbatim message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

// Is reports category membership.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
