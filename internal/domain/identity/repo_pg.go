package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebase/carebase/internal/platform/crypto"
	"github.com/carebase/carebase/internal/platform/db"
)

// repoPG reads and writes the users table of the bound tenant schema. It has
// no pool of its own: every query runs on the connection the pipeline bound
// to the request, so a request can only ever see its own tenant's rows.
type repoPG struct {
	codec *fieldCodec
}

func NewPGRepository(cipher *crypto.Cipher, indexer *crypto.BlindIndexer) Repository {
	return &repoPG{codec: newFieldCodec(cipher, indexer)}
}

func (r *repoPG) conn(ctx context.Context) (*pgxpool.Conn, error) {
	conn := db.ConnFromContext(ctx)
	if conn == nil {
		return nil, errors.New("identity: no tenant binding in context")
	}
	return conn, nil
}

const userCols = `id, username, email, email_index, first_name, last_name,
	password_hash, role, role_id, status, failed_login_attempts, locked_until,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, u *User) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if err := r.codec.seal(u); err != nil {
		return err
	}
	defer r.codec.open(u) //nolint:errcheck // restore plaintext for the caller

	_, err = conn.Exec(ctx, `
		INSERT INTO users (id, username, email, email_index, first_name, last_name,
			password_hash, role, role_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Username, u.Email, u.EmailIndex, u.FirstName, u.LastName,
		u.PasswordHash, u.Role, u.RoleID, u.Status,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (r *repoPG) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	return r.scanOpen(conn.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) FindByUsername(ctx context.Context, username string) (*User, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	return r.scanOpen(conn.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (r *repoPG) FindByEmail(ctx context.Context, email string) (*User, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	return r.scanOpen(conn.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email_index = $1`, r.codec.emailIndex(email)))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE status <> 'deleted'`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT `+userCols+` FROM users WHERE status <> 'deleted'
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scanOpen(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE status <> 'deleted'`).Scan(&n)
	return n, err
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	tag, err := conn.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	tag, err := conn.Exec(ctx,
		`UPDATE users SET status = 'deleted', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginFailure is a single statement so concurrent failed attempts
// cannot lose increments.
func (r *repoPG) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (bool, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return false, err
	}

	var attempts int
	var lockedUntil *time.Time
	err = conn.QueryRow(ctx, `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3::interval
				ELSE locked_until
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`,
		id, threshold, fmt.Sprintf("%d seconds", int(lockFor.Seconds())),
	).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return lockedUntil != nil && lockedUntil.After(time.Now()), nil
}

func (r *repoPG) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) scanOpen(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.EmailIndex, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.RoleID, &u.Status, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.codec.open(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
