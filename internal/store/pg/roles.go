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

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, protected, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, protected)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, role.ID, role.Name, role.Description, role.Protected)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return s.findBy(ctx, `id = $1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findBy(ctx, `name = $1`, name)
}

func (s *roleStore) findBy(ctx context.Context, cond, arg string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where `+cond+` and is_deleted = false`, arg)
	var role auth.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Protected, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles where is_deleted = false order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Protected, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &role)
	}
	return result, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, id string, upd auth.RoleUpdate) (*auth.Role, error) {
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
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d and is_deleted = false`,
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

// Delete soft-deletes a role; protected roles are refused, never silently
// skipped.
func (s *roleStore) Delete(ctx context.Context, id string) error {
	var protected bool
	err := s.db.QueryRowContext(ctx,
		`select protected from roles where id = $1 and is_deleted = false`, id).Scan(&protected)
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
		update roles set is_deleted = true, updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	return err
}

// AssignToUser creates the user-role link. The partial unique index on
// (user_id, role_id) rejects duplicates among live rows.
func (s *roleStore) AssignToUser(ctx context.Context, userID, roleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, probe := range []struct{ table, id string }{
		{"users", userID},
		{"roles", roleID},
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
		insert into user_roles (id, user_id, role_id)
		values ($1, $2, $3)
	`, ids.New(), userID, roleID); err != nil {
		return mapWriteErr(err)
	}
	return tx.Commit()
}

func (s *roleStore) RemoveFromUser(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update user_roles set is_deleted = true, updated_at = now()
		where user_id = $1 and role_id = $2 and is_deleted = false
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *roleStore) ListForUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.protected, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id and ur.is_deleted = false
		where ur.user_id = $1 and r.is_deleted = false
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Protected, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &role)
	}
	return result, rows.Err()
}
