package platformadmin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// repoPG stores admins in the master schema on the shared pool. Admin rows
// are platform data and never live behind a tenant binding.
type repoPG struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const adminCols = `id, username, password_hash, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Admin) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO master.platform_admins (id, username, password_hash)
		VALUES ($1, $2, $3)`,
		a.ID, a.Username, a.PasswordHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (r *repoPG) FindByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminCols+` FROM master.platform_admins WHERE id = $1`, id))
}

func (r *repoPG) FindByUsername(ctx context.Context, username string) (*Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminCols+` FROM master.platform_admins WHERE username = $1`, username))
}

func scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
