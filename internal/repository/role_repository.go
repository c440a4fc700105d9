package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provchain/internal/domain"
)

var (
	// ErrAdminMismatch is returned when bootstrap runs against a registry
	// that was already initialized with a different administrator.
	ErrAdminMismatch = errors.New("administrator already initialized with a different identity")
)

// RoleRepository defines the interface for the administrator record and the
// two authorization sets. Membership is a pure boolean per identity.
type RoleRepository interface {
	SeedAdmin(ctx context.Context, admin domain.Identity) error
	Admin(ctx context.Context) (domain.Identity, error)
	HasRole(ctx context.Context, identity domain.Identity, role domain.Role) (bool, error)
	Grant(ctx context.Context, identity domain.Identity, role domain.Role) error
	Revoke(ctx context.Context, identity domain.Identity, role domain.Role) error
}

type roleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new instance of RoleRepository
func NewRoleRepository(db *sql.DB) RoleRepository {
	return &roleRepository{db: db}
}

// SeedAdmin records the administrator identity on first run and auto-grants
// it membership in both authorization sets. Running it again with the same
// identity is a no-op; a different identity is rejected, the administrator
// is immutable after initialization.
func (r *roleRepository) SeedAdmin(ctx context.Context, admin domain.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	var existing domain.Identity
	err = tx.QueryRowContext(ctx, `
		SELECT identity FROM registry_admin WHERE id = 1
	`).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// First run, fall through to insert.
	case err != nil:
		return fmt.Errorf("failed to read administrator: %w", err)
	case existing == admin:
		return nil
	default:
		return ErrAdminMismatch
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registry_admin (id, identity) VALUES (1, $1)
	`, admin); err != nil {
		return fmt.Errorf("failed to record administrator: %w", err)
	}

	for _, role := range []domain.Role{domain.RoleManufacturer, domain.RoleVerifier} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_grants (identity, role) VALUES ($1, $2)
			ON CONFLICT (identity, role) DO NOTHING
		`, admin, role); err != nil {
			return fmt.Errorf("failed to grant bootstrap role %s: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	return nil
}

// Admin returns the administrator identity, or the zero identity if the
// registry has not been initialized yet.
func (r *roleRepository) Admin(ctx context.Context) (domain.Identity, error) {
	var admin domain.Identity
	err := r.db.QueryRowContext(ctx, `
		SELECT identity FROM registry_admin WHERE id = 1
	`).Scan(&admin)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read administrator: %w", err)
	}
	return admin, nil
}

// HasRole reports set membership for the identity.
func (r *roleRepository) HasRole(ctx context.Context, identity domain.Identity, role domain.Role) (bool, error) {
	var member bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM role_grants WHERE identity = $1 AND role = $2)
	`, identity, role).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check role membership: %w", err)
	}
	return member, nil
}

// Grant adds the identity to the role's set. Granting twice is idempotent.
func (r *roleRepository) Grant(ctx context.Context, identity domain.Identity, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO role_grants (identity, role) VALUES ($1, $2)
		ON CONFLICT (identity, role) DO NOTHING
	`, identity, role)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke removes the identity from the role's set. Revoking a non-member is
// a no-op, not an error.
func (r *roleRepository) Revoke(ctx context.Context, identity domain.Identity, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM role_grants WHERE identity = $1 AND role = $2
	`, identity, role)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}
