// Package identity is the credential store behind sign-up and sign-in.
// Passwords are hashed with bcrypt; federated identities are keyed by the
// provider's uid and carry no password.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/repository"
)

// Provider verifies and creates credentials.
type Provider struct {
	creds repository.CredentialRepository
	cost  int
	now   func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// NewProvider creates a Provider.
func NewProvider(creds repository.CredentialRepository, opts ...Option) *Provider {
	p := &Provider{creds: creds, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register creates an email/password credential with a fresh user id.
func (p *Provider) Register(ctx context.Context, email, password string) (*domain.Credential, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, err
	}

	now := p.now()
	cred := &domain.Credential{
		UserID:       uuid.New().String(),
		Email:        domain.NormalizeEmail(email),
		PasswordHash: string(hash),
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// RegisterFederated creates a password-less credential for an external identity.
func (p *Provider) RegisterFederated(ctx context.Context, id domain.FederatedIdentity) (*domain.Credential, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	uid := id.ProviderUID
	now := p.now()
	cred := &domain.Credential{
		UserID:       uuid.New().String(),
		Email:        domain.NormalizeEmail(id.Email),
		ProviderUID:  &uid,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Verify checks email and password. Unknown emails and wrong passwords are
// reported the same way.
func (p *Provider) Verify(ctx context.Context, email, password string) (*domain.Credential, error) {
	cred, err := p.creds.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if cred.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return cred, nil
}

// LookupFederated returns the credential for a provider uid, or
// domain.ErrCredentialNotFound if the identity is new.
func (p *Provider) LookupFederated(ctx context.Context, providerUID string) (*domain.Credential, error) {
	return p.creds.GetByProviderUID(ctx, providerUID)
}

// Get returns the credential of a user.
func (p *Provider) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	return p.creds.GetByUserID(ctx, userID)
}

// ChangePassword verifies current, stores next and bumps the token version.
// It returns the new version.
func (p *Provider) ChangePassword(ctx context.Context, userID, current, next string) (int, error) {
	if err := domain.ValidatePassword(next); err != nil {
		return 0, err
	}
	cred, err := p.creds.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if cred.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(current)) != nil {
			return 0, domain.ErrWrongPassword
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), p.cost)
	if err != nil {
		return 0, err
	}
	if err := p.creds.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return 0, err
	}
	return p.creds.IncrementTokenVersion(ctx, userID)
}
