package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/token"
)

const defaultMaxUsers = 50

// subdomainPattern doubles as the tenant-id pattern: the id is the subdomain
// and must be safe to interpolate into a schema name.
var subdomainPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,39}$`)

// BindFunc binds a tenant's isolated store to the request context and
// returns the rebound context plus a release function. Production wiring
// passes db.BindTenant over the shared pool.
type BindFunc func(ctx context.Context, tenantID string) (context.Context, func(), error)

type Service struct {
	repo        Repository
	provisioner Provisioner
	tokens      *token.Service
	bind        BindFunc
	logger      zerolog.Logger
}

func NewService(repo Repository, provisioner Provisioner, tokens *token.Service, bind BindFunc, logger zerolog.Logger) *Service {
	return &Service{repo: repo, provisioner: provisioner, tokens: tokens, bind: bind, logger: logger}
}

// RegisterRequest is the public tenant-registration payload.
type RegisterRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	MaxUsers  int    `json:"max_users"`
}

// Register creates a Pending tenant and provisions its isolated schema. If
// provisioning fails the metadata row and any partial schema are rolled
// back, so a tenant either exists fully provisioned or not at all.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Tenant, error) {
	fields := map[string]string{}
	if req.Name == "" {
		fields["name"] = "name is required"
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		fields["subdomain"] = "must be 3-40 lowercase letters, digits or underscores, starting with a letter"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid registration request", fields)
	}
	if req.MaxUsers <= 0 {
		req.MaxUsers = defaultMaxUsers
	}

	if _, err := s.repo.FindBySubdomain(ctx, req.Subdomain); err == nil {
		return nil, apperr.Validation("invalid registration request",
			map[string]string{"subdomain": "subdomain is already registered"})
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Database(err)
	}

	t := &Tenant{
		ID:        req.Subdomain,
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Status:    StatusPending,
		MaxUsers:  req.MaxUsers,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrSubdomainTaken) {
			return nil, apperr.Validation("invalid registration request",
				map[string]string{"subdomain": "subdomain is already registered"})
		}
		return nil, apperr.Database(err)
	}

	if err := s.provisioner.CreateSchema(ctx, t.ID); err != nil {
		if dropErr := s.provisioner.DropSchema(ctx, t.ID); dropErr != nil {
			s.logger.Error().Err(dropErr).Str("tenant_id", t.ID).Msg("rollback: drop schema failed")
		}
		if delErr := s.repo.Delete(ctx, t.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("tenant_id", t.ID).Msg("rollback: delete tenant row failed")
		}
		return nil, apperr.Wrap(apperr.KindDatabase, "provisioning_failed",
			"tenant provisioning failed", err)
	}

	s.logger.Info().Str("tenant_id", t.ID).Msg("tenant registered")
	return t, nil
}

// Resolve returns the tenant row regardless of lifecycle status. Used by the
// platform-admin surface.
func (s *Service) Resolve(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := s.repo.FindByID(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("tenant not found")
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return t, nil
}

// ResolveActive returns the tenant only when it is Active; Pending and
// Suspended tenants fail the same way so callers learn nothing about
// lifecycle state.
func (s *Service) ResolveActive(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := s.repo.FindByID(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Tenant("tenant_unavailable", "tenant is not available")
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	if t.Status != StatusActive {
		return nil, apperr.Tenant("tenant_unavailable", "tenant is not available")
	}
	return t, nil
}

// BindActive implements auth.TenantBinder: resolve an Active tenant and bind
// its isolated store to the request context.
func (s *Service) BindActive(ctx context.Context, tenantID string) (context.Context, func(), error) {
	if _, err := s.ResolveActive(ctx, tenantID); err != nil {
		return ctx, nil, err
	}
	ctx, release, err := s.bind(ctx, tenantID)
	if err != nil {
		return ctx, nil, apperr.Database(err)
	}
	return ctx, release, nil
}

// List pages tenants for the platform-admin surface.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	tenants, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Database(err)
	}
	return tenants, total, nil
}

// Approve moves a Pending tenant to Active.
func (s *Service) Approve(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.transition(ctx, tenantID, StatusPending, StatusActive)
}

// Suspend moves an Active tenant to Suspended and eagerly revokes every
// refresh token of the tenant's users, so suspension takes effect within the
// access-token lifetime rather than at the next refresh.
func (s *Service) Suspend(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := s.transition(ctx, tenantID, StatusActive, StatusSuspended)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeTenantRefreshTokens(ctx, tenantID); err != nil {
		return nil, apperr.Database(err)
	}
	s.logger.Info().Str("tenant_id", tenantID).Msg("tenant suspended, refresh tokens revoked")
	return t, nil
}

// Reactivate moves a Suspended tenant back to Active. Users sign in again;
// revoked refresh tokens stay revoked.
func (s *Service) Reactivate(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.transition(ctx, tenantID, StatusSuspended, StatusActive)
}

func (s *Service) transition(ctx context.Context, tenantID string, from, to Status) (*Tenant, error) {
	t, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != from {
		return nil, apperr.New(apperr.KindValidation, "invalid_transition",
			fmt.Sprintf("tenant is %s, expected %s", t.Status, from))
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, to); err != nil {
		return nil, apperr.Database(err)
	}
	t.Status = to
	return t, nil
}
