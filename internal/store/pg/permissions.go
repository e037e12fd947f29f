package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/ids"
)

type permissionStore struct{ db *sql.DB }

const permColumns = `id, name, code, description, protected, created_at, updated_at`

func (s *permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, code, description, protected)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, perm.ID, perm.Name, perm.Code, perm.Description, perm.Protected)
	if err := row.Scan(&perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where id = $1 and is_deleted = false`, id)
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.Protected, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permissionStore) List(ctx context.Context) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+permColumns+` from permissions where is_deleted = false order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permissionStore) Update(ctx context.Context, id string, upd auth.PermissionUpdate) (*auth.Permission, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Code != nil {
		setClauses = append(setClauses, fmt.Sprintf("code = $%d", idx))
		args = append(args, *upd.Code)
		idx++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf(`update permissions set %s where id = $%d and is_deleted = false`,
			strings.Join(setClauses, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, mapWriteErr(err)
		}
		if err := requireAffected(res); err != nil {
			return nil, err
		}
	}
	return s.Find(ctx, id)
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	var protected bool
	err := s.db.QueryRowContext(ctx,
		`select protected from permissions where id = $1 and is_deleted = false`, id).Scan(&protected)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return err
	}
	if protected {
		return auth.ErrProtected
	}
	_, err = s.db.ExecContext(ctx, `
		update permissions set is_deleted = true, updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	return err
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, code, description, protected)
			values ($1, $2, $3, $4, $5)
			on conflict (code) do nothing
		`, p.ID, p.Name, p.Code, p.Description, p.Protected); err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) AttachToRole(ctx context.Context, roleID, permID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, probe := range []struct{ table, id string }{
		{"roles", roleID},
		{"permissions", permID},
	} {
		var one int
		err := tx.QueryRowContext(ctx,
			`select 1 from `+probe.table+` where id = $1 and is_deleted = false`, probe.id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into role_permissions (id, role_id, permission_id)
		values ($1, $2, $3)
	`, ids.New(), roleID, permID); err != nil {
		return mapWriteErr(err)
	}
	return tx.Commit()
}

func (s *permissionStore) DetachFromRole(ctx context.Context, roleID, permID string) error {
	res, err := s.db.ExecContext(ctx, `
		update role_permissions set is_deleted = true, updated_at = now()
		where role_id = $1 and permission_id = $2 and is_deleted = false
	`, roleID, permID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *permissionStore) ListForRole(ctx context.Context, roleID string) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.code, p.description, p.protected, p.created_at, p.updated_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id and rp.is_deleted = false
		where rp.role_id = $1 and p.is_deleted = false
		order by p.code
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// CodesForUser is the aggregation query behind every token issuance: one
// join across live user-role and role-permission links.
func (s *permissionStore) CodesForUser(ctx context.Context, userID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.code
		from permissions p
		join role_permissions rp on rp.permission_id = p.id and rp.is_deleted = false
		join user_roles ur on ur.role_id = rp.role_id and ur.is_deleted = false
		where ur.user_id = $1 and p.is_deleted = false
		order by p.code
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []int
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func scanPermissions(rows *sql.Rows) ([]*auth.Permission, error) {
	var result []*auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.Protected, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
