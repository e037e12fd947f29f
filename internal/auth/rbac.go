package auth

import (
	"context"
	"errors"
	"strings"
)

// RBAC management operations: role and permission catalogs, role-permission
// links and user-role membership. The read path that matters at request
// time is CodesForUser; everything else is administrative.

// Bootstrap ensures the built-in permission catalog and the default role
// exist, and links the default-user permission to the default role. Safe to
// run on every start.
func (s *Service) Bootstrap(ctx context.Context) error {
	perms := s.store.Permissions(ctx)
	if err := perms.Ensure(ctx, BuiltinPermissions); err != nil {
		return err
	}
	roles := s.store.Roles(ctx)
	role, err := roles.FindByName(ctx, DefaultRoleName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	role = &Role{
		Name:        DefaultRoleName,
		Description: "Default role attached at registration",
		Protected:   true,
	}
	if err := roles.Create(ctx, role); err != nil {
		return err
	}
	list, err := perms.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.Code == CodeUser {
			return perms.AttachToRole(ctx, role.ID, p.ID)
		}
	}
	return nil
}

// CreateRole adds a role. Duplicate name fails with ErrUniqueConstraint.
func (s *Service) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	role := &Role{Name: name, Description: description}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole returns the role together with its linked permissions.
func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, []*Permission, error) {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	perms, err := s.store.Permissions(ctx).ListForRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	return role, perms, nil
}

// ListRoles returns all non-deleted roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// UpdateRole applies partial changes to a role.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (*Role, error) {
	return s.store.Roles(ctx).Update(ctx, roleID, upd)
}

// DeleteRole soft-deletes a role. Protected roles fail with ErrProtected
// regardless of caller privilege.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	return s.store.Roles(ctx).Delete(ctx, roleID)
}

// AttachPermission links a permission to a role. An existing link fails
// with ErrUniqueConstraint.
func (s *Service) AttachPermission(ctx context.Context, roleID, permID string) error {
	return s.store.Permissions(ctx).AttachToRole(ctx, roleID, permID)
}

// DetachPermission removes a role-permission link; absent links fail with
// ErrNotFound.
func (s *Service) DetachPermission(ctx context.Context, roleID, permID string) error {
	return s.store.Permissions(ctx).DetachFromRole(ctx, roleID, permID)
}

// CreatePermission adds a permission. Duplicate name or code fails with
// ErrUniqueConstraint.
func (s *Service) CreatePermission(ctx context.Context, name string, code int, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	perm := &Permission{Name: name, Code: code, Description: description}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// GetPermission returns one permission.
func (s *Service) GetPermission(ctx context.Context, permID string) (*Permission, error) {
	return s.store.Permissions(ctx).Find(ctx, permID)
}

// ListPermissions returns the whole catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// UpdatePermission applies partial changes to a permission.
func (s *Service) UpdatePermission(ctx context.Context, permID string, upd PermissionUpdate) (*Permission, error) {
	return s.store.Permissions(ctx).Update(ctx, permID, upd)
}

// DeletePermission soft-deletes a permission. Protected permissions fail
// with ErrProtected.
func (s *Service) DeletePermission(ctx context.Context, permID string) error {
	return s.store.Permissions(ctx).Delete(ctx, permID)
}

// Roles lists the roles held by a user.
func (s *Service) Roles(ctx context.Context, userID string) ([]*Role, error) {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Roles(ctx).ListForUser(ctx, userID)
}

// AddRole grants a role to a user. A duplicate link fails with
// ErrUniqueConstraint; the grant is visible in tokens on the next refresh.
func (s *Service) AddRole(ctx context.Context, userID, roleID string) error {
	return s.store.Roles(ctx).AssignToUser(ctx, userID, roleID)
}

// RemoveRole revokes a role from a user; an absent link fails with
// ErrNotFound. Already issued access tokens keep the old permission set
// until they expire or refresh.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	return s.store.Roles(ctx).RemoveFromUser(ctx, userID, roleID)
}
