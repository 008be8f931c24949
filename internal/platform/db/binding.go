package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	tenantIDKey   contextKey = "tenant_id"
	tenantConnKey contextKey = "tenant_conn"
)

// schemaPattern restricts tenant identifiers to what is safe to interpolate
// into a schema name.
var schemaPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// SchemaName returns the schema for a tenant identifier, or an error if the
// identifier is not schema-safe.
func SchemaName(tenantID string) (string, error) {
	if !schemaPattern.MatchString(tenantID) {
		return "", fmt.Errorf("invalid tenant identifier %q", tenantID)
	}
	return "tenant_" + tenantID, nil
}

// BindTenant acquires a pooled connection, points its search_path at the
// tenant's schema, and returns a context carrying the bound connection and
// tenant id. The binding is a per-request value, never process state:
// concurrent requests for different tenants each hold their own connection.
// The caller must call the returned release function when the request ends.
func BindTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string) (context.Context, func(), error) {
	schema, err := SchemaName(tenantID)
	if err != nil {
		return ctx, nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("acquire tenant connection: %w", err)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		conn.Release()
		return ctx, nil, fmt.Errorf("bind schema %s: %w", schema, err)
	}

	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	ctx = context.WithValue(ctx, tenantConnKey, conn)

	release := func() {
		// Reset search_path before the connection goes back to the pool so a
		// later checkout cannot see this tenant's schema.
		_, _ = conn.Exec(context.Background(), "SET search_path TO public")
		conn.Release()
	}
	return ctx, release, nil
}

// ConnFromContext returns the tenant-bound connection, or nil when the
// request has no tenant binding.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(tenantConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext returns the bound tenant id, or empty.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantIDKey).(string)
	return tid
}
