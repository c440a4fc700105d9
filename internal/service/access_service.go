package service

import (
	"context"
	"fmt"

	"provchain/internal/domain"
	"provchain/internal/repository"
)

// AccessService answers "may caller X act as role Y" and manages the two
// authorization sets under administrator authority only.
type AccessService interface {
	Initialize(ctx context.Context, admin domain.Identity) error
	IsAdministrator(ctx context.Context, identity domain.Identity) (bool, error)
	IsManufacturer(ctx context.Context, identity domain.Identity) (bool, error)
	IsVerifier(ctx context.Context, identity domain.Identity) (bool, error)
	GrantManufacturer(ctx context.Context, caller, identity domain.Identity) error
	RevokeManufacturer(ctx context.Context, caller, identity domain.Identity) error
	GrantVerifier(ctx context.Context, caller, identity domain.Identity) error
	RevokeVerifier(ctx context.Context, caller, identity domain.Identity) error
}

type accessService struct {
	roles repository.RoleRepository
}

// NewAccessService creates a new instance of AccessService
func NewAccessService(roles repository.RoleRepository) AccessService {
	return &accessService{roles: roles}
}

// Initialize records the administrator identity. The administrator is also
// granted membership in both sets, a bootstrap convenience so a fresh
// registry can create and verify products without further grants.
func (s *accessService) Initialize(ctx context.Context, admin domain.Identity) error {
	if admin.IsZero() {
		return fmt.Errorf("%w: administrator identity is required", domain.ErrInvalidArgument)
	}
	return s.roles.SeedAdmin(ctx, admin)
}

func (s *accessService) IsAdministrator(ctx context.Context, identity domain.Identity) (bool, error) {
	admin, err := s.roles.Admin(ctx)
	if err != nil {
		return false, err
	}
	return !admin.IsZero() && admin == identity, nil
}

func (s *accessService) IsManufacturer(ctx context.Context, identity domain.Identity) (bool, error) {
	return s.roles.HasRole(ctx, identity, domain.RoleManufacturer)
}

func (s *accessService) IsVerifier(ctx context.Context, identity domain.Identity) (bool, error) {
	return s.roles.HasRole(ctx, identity, domain.RoleVerifier)
}

func (s *accessService) GrantManufacturer(ctx context.Context, caller, identity domain.Identity) error {
	return s.grant(ctx, caller, identity, domain.RoleManufacturer)
}

func (s *accessService) RevokeManufacturer(ctx context.Context, caller, identity domain.Identity) error {
	return s.revoke(ctx, caller, identity, domain.RoleManufacturer)
}

func (s *accessService) GrantVerifier(ctx context.Context, caller, identity domain.Identity) error {
	return s.grant(ctx, caller, identity, domain.RoleVerifier)
}

func (s *accessService) RevokeVerifier(ctx context.Context, caller, identity domain.Identity) error {
	return s.revoke(ctx, caller, identity, domain.RoleVerifier)
}

func (s *accessService) grant(ctx context.Context, caller, identity domain.Identity, role domain.Role) error {
	if err := s.requireAdministrator(ctx, caller); err != nil {
		return err
	}
	if identity.IsZero() {
		return fmt.Errorf("%w: identity is required", domain.ErrInvalidArgument)
	}
	return s.roles.Grant(ctx, identity, role)
}

func (s *accessService) revoke(ctx context.Context, caller, identity domain.Identity, role domain.Role) error {
	if err := s.requireAdministrator(ctx, caller); err != nil {
		return err
	}
	return s.roles.Revoke(ctx, identity, role)
}

// requireAdministrator is the guard for every set mutation.
func (s *accessService) requireAdministrator(ctx context.Context, caller domain.Identity) error {
	isAdmin, err := s.IsAdministrator(ctx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return fmt.Errorf("%w: administrator role required", domain.ErrUnauthorized)
	}
	return nil
}
