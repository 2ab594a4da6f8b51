package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/jwt"
	"github.com/dnspotify/server/pkg/logger"
)

// CredentialProvider creates and verifies credentials. *identity.Provider
// implements it.
type CredentialProvider interface {
	Register(ctx context.Context, email, password string) (*domain.Credential, error)
	RegisterFederated(ctx context.Context, id domain.FederatedIdentity) (*domain.Credential, error)
	Verify(ctx context.Context, email, password string) (*domain.Credential, error)
	LookupFederated(ctx context.Context, providerUID string) (*domain.Credential, error)
	ChangePassword(ctx context.Context, userID, current, next string) (int, error)
}

// SessionManager opens and closes sessions. *session.Manager implements it.
type SessionManager interface {
	Open(ctx context.Context, userID string, role domain.Role, deviceID string, tokenVersion int) (*session.Session, error)
	Resolve(ctx context.Context, id string, tokenVersion int) (*session.Session, error)
	Close(ctx context.Context, sess *session.Session) error
	CloseAll(ctx context.Context, userID string) error
}

// TokenIssuer signs and validates access tokens. *jwt.Manager implements it.
type TokenIssuer interface {
	GenerateToken(s jwt.Subject) (string, error)
	ValidateToken(token string) (*jwt.Claims, error)
	GetExpiryTime() time.Duration
}

// AttemptLimiter throttles sign-in attempts. *limiter.SignInLimiter implements it.
type AttemptLimiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
	Reset(ctx context.Context, identifier string) error
}

// ConnectionCloser drops the live connections of closed sessions.
// *ws.Manager implements it.
type ConnectionCloser interface {
	CloseSession(userID, sessionID, reason string) int
	CloseUser(userID, reason string) int
}

// SignUpRequest is the input of SignUp.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
	DeviceID    string
}

// SignInRequest is the input of SignIn.
type SignInRequest struct {
	Email        string
	Password     string
	ExpectedRole domain.Role
	DeviceID     string
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	SessionID string              `json:"session_id"`
	Profile   *domain.UserProfile `json:"profile"`
	Redirect  string              `json:"redirect"`
}

// AuthService signs users up, in and out.
type AuthService struct {
	creds    CredentialProvider
	profiles repository.ProfileRepository
	sessions SessionManager
	tokens   TokenIssuer
	limiter  AttemptLimiter
	closer   ConnectionCloser
	pub      EventPublisher
	log      logger.Logger
	now      func() time.Time
}

// AuthDeps groups the collaborators of AuthService. Limiter and Closer are
// optional.
type AuthDeps struct {
	Credentials CredentialProvider
	Profiles    repository.ProfileRepository
	Sessions    SessionManager
	Tokens      TokenIssuer
	Limiter     AttemptLimiter
	Closer      ConnectionCloser
	Publisher   EventPublisher
	Logger      logger.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(d AuthDeps) *AuthService {
	return &AuthService{
		creds:    d.Credentials,
		profiles: d.Profiles,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		limiter:  d.Limiter,
		closer:   d.Closer,
		pub:      orPublisher(d.Publisher),
		log:      orLogger(d.Logger, "auth"),
		now:      time.Now,
	}
}

// SignUp creates the credential and the profile, then signs in.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	if err := domain.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	name, err := domain.ValidateDisplayName(req.DisplayName)
	if err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	cred, err := s.creds.Register(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	profile := &domain.UserProfile{
		ID:          cred.UserID,
		Email:       cred.Email,
		DisplayName: name,
		Role:        req.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.log.WithContext(ctx).Info("account created",
		logger.String("user_id", profile.ID),
		logger.String("role", string(profile.Role)),
	)
	return s.issue(ctx, cred, profile, req.DeviceID)
}

// SignIn verifies email and password and checks the profile's role against
// the entry point the user came through.
func (s *AuthService) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	if !req.ExpectedRole.Valid() {
		return nil, domain.ErrInvalidRole
	}
	email := domain.NormalizeEmail(req.Email)
	if err := s.allow(ctx, email); err != nil {
		return nil, err
	}

	cred, err := s.creds.Verify(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}

	res, err := s.signInAs(ctx, cred, req.ExpectedRole, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.log.WithContext(ctx).Warn("reset sign-in limiter", logger.Error(err))
		}
	}
	return res, nil
}

// SignInFederated signs in with an externally asserted identity. A first
// sign-in creates the account with expectedRole.
func (s *AuthService) SignInFederated(ctx context.Context, id domain.FederatedIdentity, expectedRole domain.Role, deviceID string) (*AuthResult, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if !expectedRole.Valid() {
		return nil, domain.ErrInvalidRole
	}

	cred, err := s.creds.LookupFederated(ctx, id.ProviderUID)
	if err == nil {
		return s.signInAs(ctx, cred, expectedRole, deviceID)
	}
	if !errors.Is(err, domain.ErrCredentialNotFound) {
		return nil, err
	}

	cred, err = s.creds.RegisterFederated(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name = strings.SplitN(cred.Email, "@", 2)[0]
	}
	now := s.now()
	profile := &domain.UserProfile{
		ID:          cred.UserID,
		Email:       cred.Email,
		DisplayName: name,
		Role:        expectedRole,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.log.WithContext(ctx).Info("federated account created",
		logger.String("user_id", profile.ID),
		logger.String("role", string(profile.Role)),
	)
	return s.issue(ctx, cred, profile, deviceID)
}

// signInAs loads the profile and opens a session. A role mismatch closes
// the session again.
func (s *AuthService) signInAs(ctx context.Context, cred *domain.Credential, expected domain.Role, deviceID string) (*AuthResult, error) {
	profile, err := s.profiles.GetByID(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}

	res, err := s.issue(ctx, cred, profile, deviceID)
	if err != nil {
		return nil, err
	}

	if profile.Role != expected {
		sess := &session.Session{ID: res.SessionID, UserID: profile.ID}
		if err := s.sessions.Close(ctx, sess); err != nil {
			s.log.WithContext(ctx).Error("close mismatched session", logger.Error(err))
		}
		s.log.WithContext(ctx).Info("sign-in rejected: role mismatch",
			logger.String("user_id", profile.ID),
			logger.String("role", string(profile.Role)),
			logger.String("expected", string(expected)),
		)
		return nil, domain.ErrRoleMismatch
	}
	return res, nil
}

func (s *AuthService) issue(ctx context.Context, cred *domain.Credential, profile *domain.UserProfile, deviceID string) (*AuthResult, error) {
	sess, err := s.sessions.Open(ctx, profile.ID, profile.Role, deviceID, cred.TokenVersion)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.GenerateToken(jwt.Subject{
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		DeviceID:     sess.DeviceID,
		Role:         string(sess.Role),
		TokenVersion: sess.TokenVersion,
	})
	if err != nil {
		_ = s.sessions.Close(ctx, sess)
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: s.now().Add(s.tokens.GetExpiryTime()),
		SessionID: sess.ID,
		Profile:   profile,
		Redirect:  profile.Role.Home(),
	}, nil
}

func (s *AuthService) allow(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, email)
	if err != nil {
		// Redis trouble should not lock everyone out.
		s.log.WithContext(ctx).Warn("sign-in limiter unavailable", logger.Error(err))
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

// SignOut closes the session and its live connections.
func (s *AuthService) SignOut(ctx context.Context, sess *session.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if err := s.sessions.Close(ctx, sess); err != nil {
		return err
	}
	notify(ctx, s.log, s.pub, domain.UserSessionTopic(sess.UserID), domain.EventSignedOut,
		map[string]string{"session_id": sess.ID})
	if s.closer != nil {
		s.closer.CloseSession(sess.UserID, sess.ID, "signed out")
	}
	return nil
}

// Authenticate resolves a bearer token to its open session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	sess, err := s.sessions.Resolve(ctx, claims.SessionID, claims.TokenVersion)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, session.ErrStaleToken) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, domain.ErrUnauthenticated
	}
	return sess, nil
}

// Me returns the profile of the signed-in user.
func (s *AuthService) Me(ctx context.Context, sess *session.Session) (*domain.UserProfile, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.profiles.GetByID(ctx, sess.UserID)
}

// UpdateDisplayName renames the signed-in user. Existing follow edges and
// comments keep the old name.
func (s *AuthService) UpdateDisplayName(ctx context.Context, sess *session.Session, name string) (*domain.UserProfile, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	name, err := domain.ValidateDisplayName(name)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.UpdateDisplayName(ctx, sess.UserID, name); err != nil {
		return nil, err
	}
	return s.profiles.GetByID(ctx, sess.UserID)
}

// ChangePassword replaces the password and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, sess *session.Session, current, next string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	version, err := s.creds.ChangePassword(ctx, sess.UserID, current, next)
	if err != nil {
		return err
	}
	if err := s.sessions.CloseAll(ctx, sess.UserID); err != nil {
		return err
	}
	notify(ctx, s.log, s.pub, domain.UserSessionTopic(sess.UserID), domain.EventSignedOut,
		map[string]any{"all": true, "token_version": version})
	if s.closer != nil {
		s.closer.CloseUser(sess.UserID, "password changed")
	}
	s.log.WithContext(ctx).Info("password changed", logger.String("user_id", sess.UserID))
	return nil
}
