package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
// Every read on a soft-deletable entity excludes deleted rows.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Devices(ctx context.Context) DeviceStore
	Sessions(ctx context.Context) SessionStore
}

// UserStore manages user rows.
type UserStore interface {
	// Create inserts the user and attaches the default role in a single
	// transaction. Fails with ErrUniqueConstraint on duplicate email or
	// username.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages roles and user-role links.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	// Delete soft-deletes the role. Protected roles fail with ErrProtected.
	Delete(ctx context.Context, id string) error

	// AssignToUser fails with ErrUniqueConstraint if the link already
	// exists and ErrNotFound if user or role is absent.
	AssignToUser(ctx context.Context, userID, roleID string) error
	RemoveFromUser(ctx context.Context, userID, roleID string) error
	ListForUser(ctx context.Context, userID string) ([]*Role, error)
}

// PermissionStore manages the permission catalog and role-permission links.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error)
	Delete(ctx context.Context, id string) error
	// Ensure inserts any of perms that do not exist yet; used at bootstrap.
	Ensure(ctx context.Context, perms []Permission) error

	AttachToRole(ctx context.Context, roleID, permID string) error
	DetachFromRole(ctx context.Context, roleID, permID string) error
	ListForRole(ctx context.Context, roleID string) ([]*Permission, error)

	// CodesForUser resolves the user's effective permission codes through
	// role membership in a single join, excluding deleted rows.
	CodesForUser(ctx context.Context, userID string) ([]int, error)
}

// DeviceStore manages approved devices.
type DeviceStore interface {
	Create(ctx context.Context, d *Device) error
	Find(ctx context.Context, userID, fingerprint string) (*Device, error)
	ListForUser(ctx context.Context, userID string) ([]*Device, error)
}

// SessionStore appends and reads the immutable login history.
type SessionStore interface {
	Append(ctx context.Context, s *Session) error
	// History returns rows ascending by authentication time.
	History(ctx context.Context, userID string, page Page) ([]*Session, error)
}

// RoleUpdate carries optional role field changes.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// PermissionUpdate carries optional permission field changes.
type PermissionUpdate struct {
	Name        *string
	Code        *int
	Description *string
}
