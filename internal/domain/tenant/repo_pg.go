package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebase/carebase/internal/platform/db"
)

// repoPG stores tenant metadata in the master schema. It uses the shared
// pool directly: tenant rows are platform data, never behind a tenant
// binding.
type repoPG struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const tenantCols = `id, name, subdomain, status, max_users, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, t *Tenant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO master.tenants (id, name, subdomain, status, max_users)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Subdomain, t.Status, t.MaxUsers,
	)
	return err
}

func (r *repoPG) FindByID(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantCols+` FROM master.tenants WHERE id = $1`, id))
}

func (r *repoPG) FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantCols+` FROM master.tenants WHERE subdomain = $1`, subdomain))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE master.tenants SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM master.tenants WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM master.tenants`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+tenantCols+` FROM master.tenants
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Status, &t.MaxUsers, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// pgProvisioner provisions tenant schemas on the shared pool.
type pgProvisioner struct {
	pool          *pgxpool.Pool
	migrationsDir string
}

func NewPGProvisioner(pool *pgxpool.Pool, migrationsDir string) Provisioner {
	return &pgProvisioner{pool: pool, migrationsDir: migrationsDir}
}

func (p *pgProvisioner) CreateSchema(ctx context.Context, tenantID string) error {
	return db.CreateTenantSchema(ctx, p.pool, tenantID, p.migrationsDir)
}

func (p *pgProvisioner) DropSchema(ctx context.Context, tenantID string) error {
	return db.DropTenantSchema(ctx, p.pool, tenantID)
}
