package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"authgrid.org/internal/kv"
)

// fakeStore is an in-memory Store for service tests. It mirrors the
// soft-delete semantics of the SQL implementation where the tests depend on
// them.
type fakeStore struct {
	seq int

	users map[string]*User
	roles map[string]*Role
	perms map[string]*Permission

	userRoles map[string]map[string]bool // userID -> roleID set
	rolePerms map[string]map[string]bool // roleID -> permID set

	devices  []*Device
	sessions []*Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*User),
		roles:     make(map[string]*Role),
		perms:     make(map[string]*Permission),
		userRoles: make(map[string]map[string]bool),
		rolePerms: make(map[string]map[string]bool),
	}
}

func (f *fakeStore) nextID() string {
	f.seq++
	return fmt.Sprintf("id-%04d", f.seq)
}

func (f *fakeStore) Users(context.Context) UserStore             { return fakeUsers{f} }
func (f *fakeStore) Roles(context.Context) RoleStore             { return fakeRoles{f} }
func (f *fakeStore) Permissions(context.Context) PermissionStore { return fakePerms{f} }
func (f *fakeStore) Devices(context.Context) DeviceStore         { return fakeDevices{f} }
func (f *fakeStore) Sessions(context.Context) SessionStore       { return fakeSessions{f} }

type fakeUsers struct{ f *fakeStore }

func (s fakeUsers) Create(_ context.Context, u *User) error {
	for _, existing := range s.f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return ErrUniqueConstraint
		}
	}
	if u.ID == "" {
		u.ID = s.f.nextID()
	}
	s.f.users[u.ID] = u
	return nil
}

func (s fakeUsers) Find(_ context.Context, id string) (*User, error) {
	u, ok := s.f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range s.f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (s fakeUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	u, ok := s.f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s fakeUsers) Delete(_ context.Context, id string) error {
	if _, ok := s.f.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.f.users, id)
	return nil
}

type fakeRoles struct{ f *fakeStore }

func (s fakeRoles) Create(_ context.Context, role *Role) error {
	for _, existing := range s.f.roles {
		if existing.Name == role.Name {
			return ErrUniqueConstraint
		}
	}
	if role.ID == "" {
		role.ID = s.f.nextID()
	}
	s.f.roles[role.ID] = role
	return nil
}

func (s fakeRoles) Find(_ context.Context, id string) (*Role, error) {
	role, ok := s.f.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return role, nil
}

func (s fakeRoles) FindByName(_ context.Context, name string) (*Role, error) {
	for _, role := range s.f.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, ErrNotFound
}

func (s fakeRoles) List(_ context.Context) ([]*Role, error) {
	var out []*Role
	for _, role := range s.f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s fakeRoles) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	role, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	return role, nil
}

func (s fakeRoles) Delete(_ context.Context, id string) error {
	role, ok := s.f.roles[id]
	if !ok {
		return ErrNotFound
	}
	if role.Protected {
		return ErrProtected
	}
	delete(s.f.roles, id)
	return nil
}

func (s fakeRoles) AssignToUser(_ context.Context, userID, roleID string) error {
	if _, ok := s.f.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.f.roles[roleID]; !ok {
		return ErrNotFound
	}
	set := s.f.userRoles[userID]
	if set == nil {
		set = make(map[string]bool)
		s.f.userRoles[userID] = set
	}
	if set[roleID] {
		return ErrUniqueConstraint
	}
	set[roleID] = true
	return nil
}

func (s fakeRoles) RemoveFromUser(_ context.Context, userID, roleID string) error {
	if !s.f.userRoles[userID][roleID] {
		return ErrNotFound
	}
	delete(s.f.userRoles[userID], roleID)
	return nil
}

func (s fakeRoles) ListForUser(_ context.Context, userID string) ([]*Role, error) {
	var out []*Role
	for roleID := range s.f.userRoles[userID] {
		if role, ok := s.f.roles[roleID]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

type fakePerms struct{ f *fakeStore }

func (s fakePerms) Create(_ context.Context, perm *Permission) error {
	for _, existing := range s.f.perms {
		if existing.Code == perm.Code || existing.Name == perm.Name {
			return ErrUniqueConstraint
		}
	}
	if perm.ID == "" {
		perm.ID = s.f.nextID()
	}
	s.f.perms[perm.ID] = perm
	return nil
}

func (s fakePerms) Find(_ context.Context, id string) (*Permission, error) {
	perm, ok := s.f.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return perm, nil
}

func (s fakePerms) List(_ context.Context) ([]*Permission, error) {
	var out []*Permission
	for _, perm := range s.f.perms {
		out = append(out, perm)
	}
	return out, nil
}

func (s fakePerms) Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	perm, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		perm.Name = *upd.Name
	}
	if upd.Code != nil {
		perm.Code = *upd.Code
	}
	if upd.Description != nil {
		perm.Description = *upd.Description
	}
	return perm, nil
}

func (s fakePerms) Delete(_ context.Context, id string) error {
	perm, ok := s.f.perms[id]
	if !ok {
		return ErrNotFound
	}
	if perm.Protected {
		return ErrProtected
	}
	delete(s.f.perms, id)
	return nil
}

func (s fakePerms) Ensure(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		exists := false
		for _, existing := range s.f.perms {
			if existing.Code == p.Code {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		cp := p
		if err := s.Create(ctx, &cp); err != nil {
			return err
		}
	}
	return nil
}

func (s fakePerms) AttachToRole(_ context.Context, roleID, permID string) error {
	if _, ok := s.f.roles[roleID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.f.perms[permID]; !ok {
		return ErrNotFound
	}
	set := s.f.rolePerms[roleID]
	if set == nil {
		set = make(map[string]bool)
		s.f.rolePerms[roleID] = set
	}
	if set[permID] {
		return ErrUniqueConstraint
	}
	set[permID] = true
	return nil
}

func (s fakePerms) DetachFromRole(_ context.Context, roleID, permID string) error {
	if !s.f.rolePerms[roleID][permID] {
		return ErrNotFound
	}
	delete(s.f.rolePerms[roleID], permID)
	return nil
}

func (s fakePerms) ListForRole(_ context.Context, roleID string) ([]*Permission, error) {
	var out []*Permission
	for permID := range s.f.rolePerms[roleID] {
		if perm, ok := s.f.perms[permID]; ok {
			out = append(out, perm)
		}
	}
	return out, nil
}

func (s fakePerms) CodesForUser(_ context.Context, userID string) ([]int, error) {
	seen := make(map[int]bool)
	var codes []int
	for roleID := range s.f.userRoles[userID] {
		for permID := range s.f.rolePerms[roleID] {
			perm, ok := s.f.perms[permID]
			if !ok || seen[perm.Code] {
				continue
			}
			seen[perm.Code] = true
			codes = append(codes, perm.Code)
		}
	}
	return codes, nil
}

type fakeDevices struct{ f *fakeStore }

func (s fakeDevices) Create(_ context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = s.f.nextID()
	}
	s.f.devices = append(s.f.devices, d)
	return nil
}

func (s fakeDevices) Find(_ context.Context, userID, fingerprint string) (*Device, error) {
	for _, d := range s.f.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (s fakeDevices) ListForUser(_ context.Context, userID string) ([]*Device, error) {
	var out []*Device
	for _, d := range s.f.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeSessions struct{ f *fakeStore }

func (s fakeSessions) Append(_ context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = s.f.nextID()
	}
	s.f.sessions = append(s.f.sessions, sess)
	return nil
}

func (s fakeSessions) History(_ context.Context, userID string, _ Page) ([]*Session, error) {
	var out []*Session
	for _, sess := range s.f.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

// --- tests ---

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *fakeStore, *kv.Memory) {
	t.Helper()
	store := newFakeStore()
	fast := kv.NewMemory()
	tokens, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return NewService(store, tokens, fast, opts...), store, fast
}

func registerAndLogin(t *testing.T, svc *Service, fingerprint string) (*User, TokenPair) {
	t.Helper()
	ctx := context.Background()
	user, err := svc.Register(ctx, NewUser{Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, err := svc.Login(ctx, "alice@example.com", "hunter22", fingerprint)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return user, pair
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, store, _ := newTestService(t)
	user, err := svc.Register(context.Background(), NewUser{
		Username: "alice",
		Email:    "  Alice@EXAMPLE.com ",
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email was not normalized: %s", user.Email)
	}
	if store.users[user.ID] == nil {
		t.Fatalf("user was not stored")
	}
}

func TestRegisterRejectsBlankInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Register(context.Background(), NewUser{Email: "a@b.c", Password: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, NewUser{Username: "alice", Email: "a@b.c", Password: "x"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, NewUser{Username: "bob", Email: "a@b.c", Password: "x"})
	if !errors.Is(err, ErrUniqueConstraint) {
		t.Fatalf("expected ErrUniqueConstraint, got %v", err)
	}
}

func TestLoginRecordsDeviceAndSession(t *testing.T) {
	svc, store, fast := newTestService(t)
	user, pair := registerAndLogin(t, svc, "ua-firefox")

	if len(store.devices) != 1 || store.devices[0].Fingerprint != "ua-firefox" {
		t.Fatalf("device was not registered: %+v", store.devices)
	}
	if len(store.sessions) != 1 || store.sessions[0].UserID != user.ID {
		t.Fatalf("session was not recorded: %+v", store.sessions)
	}

	stored, err := fast.Get(context.Background(), "ua-firefox"+user.ID)
	if err != nil {
		t.Fatalf("fast store record missing: %v", err)
	}
	if stored != pair.RefreshToken {
		t.Fatalf("stored refresh token does not match issued one")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAndLogin(t, svc, "ua")
	_, err := svc.Login(context.Background(), "alice@example.com", "wrong", "ua")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginUnknownDeviceStrictMode(t *testing.T) {
	svc, _, _ := newTestService(t, WithDeviceAutoTrust(false))
	ctx := context.Background()
	if _, err := svc.Register(ctx, NewUser{Username: "alice", Email: "a@b.c", Password: "x"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Login(ctx, "a@b.c", "x", "ua-new")
	if !errors.Is(err, ErrNoAccess) {
		t.Fatalf("expected ErrNoAccess for unknown device, got %v", err)
	}
}

func TestRefreshRotatesAndRevokesOld(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, first := registerAndLogin(t, svc, "ua")
	ctx := context.Background()

	second, err := svc.Refresh(ctx, user.ID, "ua", first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// The rotated-out token is no longer the stored record.
	if _, err := svc.Refresh(ctx, user.ID, "ua", first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("old refresh token still accepted: %v", err)
	}
	if _, err := svc.Refresh(ctx, user.ID, "ua", second.RefreshToken); err != nil {
		t.Fatalf("current refresh token rejected: %v", err)
	}
}

func TestRefreshUnknownDevice(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, pair := registerAndLogin(t, svc, "ua")
	_, err := svc.Refresh(context.Background(), user.ID, "other-ua", pair.RefreshToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for unknown device, got %v", err)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user, pair := registerAndLogin(t, svc, "ua")

	first, err := svc.tokens.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if len(first.Permissions) != 0 {
		t.Fatalf("expected no permissions before role grant, got %v", first.Permissions)
	}

	perm := &Permission{Name: "Moderator", Code: CodeModerator}
	if err := store.Permissions(ctx).Create(ctx, perm); err != nil {
		t.Fatalf("create permission: %v", err)
	}
	role := &Role{Name: "mods"}
	if err := store.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := store.Permissions(ctx).AttachToRole(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("attach permission: %v", err)
	}
	if err := svc.AddRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	rotated, err := svc.Refresh(ctx, user.ID, "ua", pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := svc.tokens.ParseAccess(rotated.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != CodeModerator {
		t.Fatalf("role grant not reflected after rotation: %v", claims.Permissions)
	}
}

func TestLogoutSingleDevice(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, pair := registerAndLogin(t, svc, "ua")
	ctx := context.Background()

	laptopPair, err := svc.Login(ctx, "alice@example.com", "hunter22", "ua-laptop")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID, "ua", false); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, user.ID, "ua", pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh token survived logout: %v", err)
	}
	// Other devices keep their session line.
	if _, err := svc.Refresh(ctx, user.ID, "ua-laptop", laptopPair.RefreshToken); err != nil {
		t.Fatalf("laptop refresh token revoked by single-device logout: %v", err)
	}
}

func TestLogoutFromAllDevices(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, phonePair := registerAndLogin(t, svc, "ua-phone")
	ctx := context.Background()

	laptopPair, err := svc.Login(ctx, "alice@example.com", "hunter22", "ua-laptop")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID, "ua-phone", true); err != nil {
		t.Fatalf("Logout fromAll: %v", err)
	}
	if _, err := svc.Refresh(ctx, user.ID, "ua-phone", phonePair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("phone refresh token survived global logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, user.ID, "ua-laptop", laptopPair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("laptop refresh token survived global logout: %v", err)
	}
}

func TestAddRoleTwiceFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, NewUser{Username: "alice", Email: "a@b.c", Password: "x"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	role := &Role{Name: "mods"}
	if err := store.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}

	if err := svc.AddRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if err := svc.AddRole(ctx, user.ID, role.ID); !errors.Is(err, ErrUniqueConstraint) {
		t.Fatalf("duplicate role grant accepted: %v", err)
	}
}

func TestDeletePermissionProtected(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	perm := &Permission{Name: "Moderator", Code: CodeModerator, Protected: true}
	if err := store.Permissions(ctx).Create(ctx, perm); err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if err := svc.DeletePermission(ctx, perm.ID); !errors.Is(err, ErrProtected) {
		t.Fatalf("protected permission deleted: %v", err)
	}
}

func TestLogoutWithoutDevices(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, NewUser{Username: "alice", Email: "a@b.c", Password: "x"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, user.ID, "ua", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for logout without devices, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, _ := registerAndLogin(t, svc, "ua")
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "new-pass"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong old password accepted: %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "hunter22", "new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "new-pass", "ua"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "hunter22", "ua"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Bootstrap(ctx); err != nil {
			t.Fatalf("Bootstrap run %d: %v", i+1, err)
		}
	}
	if len(store.perms) != len(BuiltinPermissions) {
		t.Fatalf("expected %d permissions, got %d", len(BuiltinPermissions), len(store.perms))
	}
	role, err := store.Roles(ctx).FindByName(ctx, DefaultRoleName)
	if err != nil {
		t.Fatalf("default role missing: %v", err)
	}
	if !role.Protected {
		t.Fatalf("default role must be protected")
	}
	perms, err := store.Permissions(ctx).ListForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("ListForRole: %v", err)
	}
	if len(perms) != 1 || perms[0].Code != CodeUser {
		t.Fatalf("default role permissions: %+v", perms)
	}
}

func TestHistoryRequiresExistingUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.History(context.Background(), "missing", Page{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryListsLogins(t *testing.T) {
	svc, _, _ := newTestService(t)
	user, _ := registerAndLogin(t, svc, "ua")
	ctx := context.Background()
	if _, err := svc.Login(ctx, "alice@example.com", "hunter22", "ua"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	history, err := svc.History(ctx, user.ID, Page{Limit: 10})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
}
