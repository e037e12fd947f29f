package pg

import (
	"context"
	"database/sql"
	"errors"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/ids"
)

type userStore struct{ db *sql.DB }

// Create inserts the user and attaches the default role in one transaction
// so a failed role link never leaves a roleless account behind.
func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, active, is_super)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Active, u.IsSuper)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}

	var roleID string
	err = tx.QueryRowContext(ctx, `
		select id from roles where name = $1 and is_deleted = false
	`, auth.DefaultRoleName).Scan(&roleID)
	if err == nil {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (id, user_id, role_id)
			values ($1, $2, $3)
		`, ids.New(), u.ID, roleID); err != nil {
			return mapWriteErr(err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findBy(ctx, `id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findBy(ctx, `email = $1`, email)
}

func (s *userStore) findBy(ctx context.Context, cond, arg string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, active, is_super, created_at, updated_at
		from users
		where `+cond+` and is_deleted = false
	`, arg)
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.IsSuper, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_deleted = true, updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
