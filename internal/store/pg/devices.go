package pg

import (
	"context"
	"database/sql"
	"errors"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/ids"
)

type deviceStore struct{ db *sql.DB }

func (s *deviceStore) Create(ctx context.Context, d *auth.Device) error {
	if d.ID == "" {
		d.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into devices (id, user_id, fingerprint)
		values ($1, $2, $3)
		returning created_at
	`, d.ID, d.UserID, d.Fingerprint)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (s *deviceStore) Find(ctx context.Context, userID, fingerprint string) (*auth.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, fingerprint, created_at
		from devices
		where user_id = $1 and fingerprint = $2 and is_deleted = false
	`, userID, fingerprint)
	var d auth.Device
	err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *deviceStore) ListForUser(ctx context.Context, userID string) ([]*auth.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, fingerprint, created_at
		from devices
		where user_id = $1 and is_deleted = false
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Device
	for rows.Next() {
		var d auth.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

type sessionStore struct{ db *sql.DB }

// Append writes one login-history row. There is no update or delete path;
// the table is a write-once audit log.
func (s *sessionStore) Append(ctx context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, device_id, authenticated_at)
		values ($1, $2, $3, $4)
	`, sess.ID, sess.UserID, sess.DeviceID, sess.AuthenticatedAt)
	return mapWriteErr(err)
}

func (s *sessionStore) History(ctx context.Context, userID string, page auth.Page) ([]*auth.Session, error) {
	limit := page.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, device_id, authenticated_at
		from sessions
		where user_id = $1 and is_deleted = false
		order by authenticated_at asc
		limit $2 offset $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Session
	for rows.Next() {
		var sess auth.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.DeviceID, &sess.AuthenticatedAt); err != nil {
			return nil, err
		}
		result = append(result, &sess)
	}
	return result, rows.Err()
}
