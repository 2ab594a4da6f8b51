package repository

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// CredentialRepositoryImpl is the PostgreSQL credential store.
type CredentialRepositoryImpl struct {
	db db.DB
}

// NewCredentialRepository creates a credential repository.
func NewCredentialRepository(db db.DB) CredentialRepository {
	return &CredentialRepositoryImpl{db: db}
}

const credentialColumns = `user_id, email, password_hash, provider_uid, token_version, created_at, updated_at`

// Create inserts a credential. A duplicate email or provider uid yields
// domain.ErrEmailInUse.
func (r *CredentialRepositoryImpl) Create(ctx context.Context, cred *domain.Credential) error {
	query := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		cred.UserID,
		cred.Email,
		cred.PasswordHash,
		cred.ProviderUID,
		cred.TokenVersion,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailInUse
	}
	return err
}

// GetByUserID loads a credential by user id.
func (r *CredentialRepositoryImpl) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1`
	return r.getOne(ctx, query, userID)
}

// GetByEmail loads a credential by its lower-case email.
func (r *CredentialRepositoryImpl) GetByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE email = $1`
	return r.getOne(ctx, query, domain.NormalizeEmail(email))
}

// GetByProviderUID loads a credential created by federated sign-in.
func (r *CredentialRepositoryImpl) GetByProviderUID(ctx context.Context, providerUID string) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE provider_uid = $1`
	return r.getOne(ctx, query, providerUID)
}

func (r *CredentialRepositoryImpl) getOne(ctx context.Context, query string, arg any) (*domain.Credential, error) {
	var c domain.Credential
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.UserID,
		&c.Email,
		&c.PasswordHash,
		&c.ProviderUID,
		&c.TokenVersion,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrCredentialNotFound)
	}
	return &c, nil
}

// UpdatePassword replaces the password hash.
func (r *CredentialRepositoryImpl) UpdatePassword(ctx context.Context, userID, hash string) error {
	query := `UPDATE credentials SET password_hash = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// IncrementTokenVersion bumps the version embedded in new tokens and returns it.
func (r *CredentialRepositoryImpl) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE credentials SET token_version = token_version + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING token_version
	`
	var v int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&v); err != nil {
		return 0, notFound(err, domain.ErrCredentialNotFound)
	}
	return v, nil
}
