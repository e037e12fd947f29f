package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"authgrid.org/internal/kv"
)

// Service provides the session/token lifecycle operations: registration,
// login, refresh with single-active-refresh-token-per-device revocation,
// logout, password change, login history and device bookkeeping.
type Service struct {
	store  Store
	tokens *TokenIssuer
	fast   kv.Store

	autoTrustDevices bool
	now              func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithDeviceAutoTrust controls whether a login from an unknown device
// silently registers it. Disabled, such logins fail with ErrNoAccess until
// the device is registered out of band.
func WithDeviceAutoTrust(enabled bool) ServiceOption {
	return func(s *Service) { s.autoTrustDevices = enabled }
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. The fast store holds the currently valid
// refresh token per (user, device) and is the sole source of truth for
// refresh revocation.
func NewService(store Store, tokens *TokenIssuer, fast kv.Store, opts ...ServiceOption) *Service {
	svc := &Service{
		store:            store,
		tokens:           tokens,
		fast:             fast,
		autoTrustDevices: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewUser carries registration input.
type NewUser struct {
	Username string
	Email    string
	Password string
}

// Register creates the user with the default role attached. Duplicate email
// or username fails with ErrUniqueConstraint.
func (s *Service) Register(ctx context.Context, input NewUser) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	username := strings.TrimSpace(input.Username)
	if email == "" || username == "" {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates credentials, records the device and session, and
// issues a token pair. The stored refresh token for (user, device) is
// overwritten, revoking any previous session line on that device.
func (s *Service) Login(ctx context.Context, email, password, fingerprint string) (TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, err
	}
	device, err := s.getOrRegisterDevice(ctx, user.ID, fingerprint)
	if err != nil {
		return TokenPair{}, err
	}
	session := &Session{
		UserID:          user.ID,
		DeviceID:        device.ID,
		AuthenticatedAt: s.now().UTC(),
	}
	if err := s.store.Sessions(ctx).Append(ctx, session); err != nil {
		return TokenPair{}, err
	}
	return s.issue(ctx, user, fingerprint)
}

// Refresh rotates the token pair. The presented refresh token must exactly
// equal the fast-store record for (user, device); anything else is treated
// as revoked, which is the entire revocation mechanism. Permissions are
// re-read so that role changes take effect on rotation.
func (s *Service) Refresh(ctx context.Context, userID, fingerprint, presented string) (TokenPair, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	current, err := s.fast.Get(ctx, refreshKey(fingerprint, userID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return TokenPair{}, ErrTokenRevoked
		}
		return TokenPair{}, err
	}
	if current != presented {
		return TokenPair{}, ErrTokenRevoked
	}
	return s.issue(ctx, user, fingerprint)
}

// Logout invalidates the refresh token for one device, or for every
// registered device when fromAll is set. Device and session rows remain for
// audit; only fast-store records are deleted.
func (s *Service) Logout(ctx context.Context, userID, fingerprint string, fromAll bool) error {
	var keys []string
	if fromAll {
		devices, err := s.store.Devices(ctx).ListForUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return ErrNotFound
		}
		for _, d := range devices {
			keys = append(keys, refreshKey(d.Fingerprint, userID))
		}
	} else {
		if _, err := s.store.Devices(ctx).Find(ctx, userID, fingerprint); err != nil {
			return err
		}
		keys = append(keys, refreshKey(fingerprint, userID))
	}
	return s.fast.Delete(ctx, keys...)
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// History returns the user's login audit trail, ascending by auth time.
func (s *Service) History(ctx context.Context, userID string, page Page) ([]*Session, error) {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Sessions(ctx).History(ctx, userID, page)
}

// Devices lists the user's registered devices.
func (s *Service) Devices(ctx context.Context, userID string) ([]*Device, error) {
	return s.store.Devices(ctx).ListForUser(ctx, userID)
}

// EffectivePermissions resolves the user's permission codes through role
// membership, excluding deleted rows.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]int, error) {
	return s.store.Permissions(ctx).CodesForUser(ctx, userID)
}

// issue loads the current permission set, mints a pair and makes the new
// refresh token the only valid one for this (user, device).
func (s *Service) issue(ctx context.Context, user *User, fingerprint string) (TokenPair, error) {
	codes, err := s.store.Permissions(ctx).CodesForUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	pair, err := s.tokens.Mint(user.ID, codes, user.IsSuper)
	if err != nil {
		return TokenPair{}, err
	}
	key := refreshKey(fingerprint, user.ID)
	if err := s.fast.Set(ctx, key, pair.RefreshToken, s.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) getOrRegisterDevice(ctx context.Context, userID, fingerprint string) (*Device, error) {
	device, err := s.store.Devices(ctx).Find(ctx, userID, fingerprint)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if !s.autoTrustDevices {
		// TODO confirm first login from a new device via email before
		// registering it; until then the policy flag keeps strict mode
		// available.
		return nil, ErrNoAccess
	}
	device = &Device{UserID: userID, Fingerprint: fingerprint}
	if err := s.store.Devices(ctx).Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// refreshKey builds the fast-store key for the current refresh token of a
// (user, device) pair. Rate-limit counters use a disjoint namespace.
func refreshKey(fingerprint, userID string) string {
	return fingerprint + userID
}
