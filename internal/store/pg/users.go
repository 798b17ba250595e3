package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

const userColumns = `id, email, name, role, email_verified, password_hash, created_at, updated_at`

// UserStore implements auth.UserStore over the users table.
type UserStore struct {
	db  *sql.DB
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.EmailVerified, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	r, ok := auth.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("user %s has unknown role %q", u.ID, role)
	}
	u.Role = r
	return &u, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, name, role, email_verified, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.Name, string(u.Role), u.EmailVerified, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	var (
		name     sql.NullString
		role     sql.NullString
		verified sql.NullBool
	)
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	if upd.Role != nil {
		role = sql.NullString{String: string(*upd.Role), Valid: true}
	}
	if upd.EmailVerified != nil {
		verified = sql.NullBool{Bool: *upd.EmailVerified, Valid: true}
	}
	return scanUser(s.db.QueryRowContext(ctx, `
		update users
		set name = coalesce($2, name),
		    role = coalesce($3, role),
		    email_verified = coalesce($4, email_verified),
		    updated_at = $5
		where id = $1
		returning `+userColumns,
		id, name, role, verified, s.now().UTC()))
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *UserStore) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id in (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
