package auth

import "errors"

var (
	// ErrNotFound: referenced user/role/permission/device/link is absent.
	ErrNotFound = errors.New("auth: not found")
	// ErrUniqueConstraint: duplicate unique key (email, role or permission
	// name/code, device fingerprint, role-user or role-permission link).
	ErrUniqueConstraint = errors.New("auth: unique constraint violated")
	// ErrProtected: attempted deletion of a protected role or permission.
	ErrProtected = errors.New("auth: protected object cannot be deleted")
	// ErrInvalidInput: a required field is missing or malformed.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidPassword: credential mismatch.
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrTokenRevoked: presented refresh token does not match the stored
	// value, or the token failed validation.
	ErrTokenRevoked = errors.New("auth: token revoked or invalid")
	// ErrNoAccess: caller acted on an identity that is not their own and is
	// not covered by an explicit permission or super-admin.
	ErrNoAccess = errors.New("auth: access denied")
)
