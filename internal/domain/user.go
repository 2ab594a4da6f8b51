package domain

import (
	"regexp"
	"strings"
	"time"
)

// Role is the account type chosen at sign-up. It is never rewritten.
type Role string

const (
	RoleListener Role = "listener"
	RoleArtist   Role = "artist"
)

// Home paths per role.
const (
	ListenerHome = "/dashboard-listener"
	ArtistHome   = "/dashboard-artist"
)

// ParseRole converts a string into a known Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleListener || r == RoleArtist
}

// Home returns the dashboard path of the role.
func (r Role) Home() string {
	if r == RoleArtist {
		return ArtistHome
	}
	return ListenerHome
}

// UserProfile is the per-user record created on first sign-in or sign-up.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	Favourites  []string  `json:"favourites,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the profile before it is stored.
func (p *UserProfile) Validate() error {
	if p.ID == "" {
		return ErrProfileNotFound
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return ErrDisplayNameEmpty
	}
	if !p.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// Credential is the identity-provider side of an account.
type Credential struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ProviderUID  *string   `json:"providerUid,omitempty"`
	TokenVersion int       `json:"tokenVersion"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FederatedIdentity is an identity asserted by an external provider.
type FederatedIdentity struct {
	ProviderUID string `json:"providerUid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Validate checks the asserted identity.
func (f *FederatedIdentity) Validate() error {
	if strings.TrimSpace(f.ProviderUID) == "" {
		return NewValidationError("provider uid is required")
	}
	return ValidateEmail(f.Email)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(NormalizeEmail(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// MaxPasswordBytes is the most bcrypt will hash.
const MaxPasswordBytes = 72

// ValidatePassword checks the password length. The upper bound counts
// bytes, not characters.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateDisplayName trims name and rejects blanks.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrDisplayNameEmpty
	}
	return name, nil
}
