package repository

import (
	"context"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/pkg/db"
)

// ProfileRepositoryImpl is the PostgreSQL profile store.
type ProfileRepositoryImpl struct {
	db db.DB
}

// NewProfileRepository creates a profile repository.
func NewProfileRepository(db db.DB) ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

// Create inserts a profile. The role is written here and nowhere else.
func (r *ProfileRepositoryImpl) Create(ctx context.Context, p *domain.UserProfile) error {
	query := `
		INSERT INTO profiles (id, email, display_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.Email, p.DisplayName, string(p.Role), p.CreatedAt, p.UpdatedAt)
	return err
}

// Upsert inserts or refreshes a profile during import. An existing role is kept.
func (r *ProfileRepositoryImpl) Upsert(ctx context.Context, p *domain.UserProfile) error {
	query := `
		INSERT INTO profiles (id, email, display_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.Email, p.DisplayName, string(p.Role), p.CreatedAt, p.UpdatedAt)
	return err
}

// GetByID loads a profile.
func (r *ProfileRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	query := `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	var (
		p    domain.UserProfile
		role string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrProfileNotFound)
	}
	p.Role = domain.Role(role)
	return &p, nil
}

// UpdateDisplayName renames the profile.
func (r *ProfileRepositoryImpl) UpdateDisplayName(ctx context.Context, id, name string) error {
	query := `UPDATE profiles SET display_name = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
