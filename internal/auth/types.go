package auth

import "time"

// User is a registered account. Email and username are unique among
// non-deleted rows.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	IsSuper      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups permissions. Protected roles cannot be deleted.
type Role struct {
	ID          string
	Name        string
	Description string
	Protected   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a grantable capability. Code is the small integer embedded
// into token claims and checked by the gate.
type Permission struct {
	ID          string
	Name        string
	Code        int
	Description string
	Protected   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Device is a (user, fingerprint) pair the user has authenticated from.
// The fingerprint is client-supplied, conventionally the user-agent string.
type Device struct {
	ID          string
	UserID      string
	Fingerprint string
	CreatedAt   time.Time
}

// Session is one successful login. Rows are append-only and never mutated.
type Session struct {
	ID              string
	UserID          string
	DeviceID        string
	AuthenticatedAt time.Time
}

// Page is offset/limit pagination for the login history.
type Page struct {
	Offset int
	Limit  int
}

// Built-in permission codes seeded at bootstrap.
const (
	CodeUser          = 0
	CodeSubscriber    = 1
	CodeVIPSubscriber = 2
	CodeModerator     = 3
)

// DefaultRoleName is attached to every user at registration.
const DefaultRoleName = "User"

// BuiltinPermissions are ensured to exist by Bootstrap.
var BuiltinPermissions = []Permission{
	{Name: "Default user", Code: CodeUser, Description: "Can view own content", Protected: true},
	{Name: "Subscriber", Code: CodeSubscriber, Description: "Can view free content", Protected: true},
	{Name: "VIP subscriber", Code: CodeVIPSubscriber, Description: "Can view paid content", Protected: true},
	{Name: "Moderator", Code: CodeModerator, Description: "Can manage roles", Protected: true},
}
