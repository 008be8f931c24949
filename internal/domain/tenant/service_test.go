package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/token"
)

func newTestService(t *testing.T) (*Service, *InMemoryRepository, *NoopProvisioner, *token.Service) {
	t.Helper()
	repo := NewInMemoryRepository()
	prov := &NoopProvisioner{}
	tokens, err := token.NewService(token.Config{
		SigningKey: []byte("tenant-service-test-key"),
		Issuer:     "carebase-test",
	}, token.NewInMemoryRefreshTokenStore(), token.NewInMemoryCSRFSessionStore())
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	bind := func(ctx context.Context, tenantID string) (context.Context, func(), error) {
		return ctx, func() {}, nil
	}
	svc := NewService(repo, prov, tokens, bind, zerolog.Nop())
	return svc, repo, prov, tokens
}

func register(t *testing.T, svc *Service, subdomain string) *Tenant {
	t.Helper()
	tn, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Mercy General", Subdomain: subdomain,
	})
	if err != nil {
		t.Fatalf("register %s: %v", subdomain, err)
	}
	return tn
}

func TestRegister_ProvisionsPendingTenant(t *testing.T) {
	svc, _, prov, _ := newTestService(t)

	tn := register(t, svc, "mercy_general")
	if tn.Status != StatusPending {
		t.Fatalf("status = %s, want pending", tn.Status)
	}
	if tn.MaxUsers != defaultMaxUsers {
		t.Fatalf("max_users = %d, want default %d", tn.MaxUsers, defaultMaxUsers)
	}
	if len(prov.Created) != 1 || prov.Created[0] != "mercy_general" {
		t.Fatalf("provisioned schemas: %v", prov.Created)
	}
}

func TestRegister_RejectsBadInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	cases := []RegisterRequest{
		{Name: "", Subdomain: "mercy_general"},
		{Name: "Mercy", Subdomain: ""},
		{Name: "Mercy", Subdomain: "Mercy-General"},    // uppercase and dash
		{Name: "Mercy", Subdomain: "1stclinic"},        // leading digit
		{Name: "Mercy", Subdomain: "ab"},               // too short
		{Name: "Mercy", Subdomain: "x; DROP SCHEMA y"}, // not schema-safe
	}
	for _, req := range cases {
		if _, err := svc.Register(context.Background(), req); apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("Register(%+v): expected validation error, got %v", req, err)
		}
	}
}

func TestRegister_DuplicateSubdomain(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	register(t, svc, "mercy_general")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Imposter", Subdomain: "mercy_general",
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("duplicate subdomain: expected validation error, got %v", err)
	}
}

func TestRegister_RollsBackOnProvisioningFailure(t *testing.T) {
	svc, repo, prov, _ := newTestService(t)
	prov.FailOn = "doomed_clinic"

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Doomed", Subdomain: "doomed_clinic",
	})
	if err == nil {
		t.Fatal("expected provisioning error")
	}

	if _, err := repo.FindByID(context.Background(), "doomed_clinic"); err != ErrNotFound {
		t.Fatalf("metadata row survived failed provisioning: %v", err)
	}
	if len(prov.Dropped) != 1 || prov.Dropped[0] != "doomed_clinic" {
		t.Fatalf("compensating drop not invoked: %v", prov.Dropped)
	}

	// The subdomain is reusable after rollback.
	prov.FailOn = ""
	register(t, svc, "doomed_clinic")
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	tn := register(t, svc, "mercy_general")

	// Pending tenant is not resolvable as active.
	if _, err := svc.ResolveActive(ctx, tn.ID); apperr.KindOf(err) != apperr.KindTenant {
		t.Fatalf("pending tenant resolved as active: %v", err)
	}
	// Suspend requires Active.
	if _, err := svc.Suspend(ctx, tn.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("suspend pending: expected invalid transition, got %v", err)
	}

	if _, err := svc.Approve(ctx, tn.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.ResolveActive(ctx, tn.ID); err != nil {
		t.Fatalf("resolve active after approve: %v", err)
	}
	// Approve is not idempotent: the tenant already left Pending.
	if _, err := svc.Approve(ctx, tn.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("double approve: expected invalid transition, got %v", err)
	}

	if _, err := svc.Suspend(ctx, tn.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := svc.ResolveActive(ctx, tn.ID); apperr.KindOf(err) != apperr.KindTenant {
		t.Fatal("suspended tenant resolved as active")
	}

	if _, err := svc.Reactivate(ctx, tn.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := svc.ResolveActive(ctx, tn.ID); err != nil {
		t.Fatalf("resolve active after reactivate: %v", err)
	}
}

func TestSuspend_RevokesTenantRefreshTokens(t *testing.T) {
	svc, _, _, tokens := newTestService(t)
	ctx := context.Background()
	tn := register(t, svc, "mercy_general")
	if _, err := svc.Approve(ctx, tn.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	userID := uuid.New()
	raw, err := tokens.IssueRefreshToken(ctx, userID, tn.ID, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	otherTenantRaw, err := tokens.IssueRefreshToken(ctx, uuid.New(), "other_clinic", "10.0.0.2", "test-agent")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := svc.Suspend(ctx, tn.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	if _, _, err := tokens.RotateRefreshToken(ctx, raw, "10.0.0.1", "test-agent"); err != token.ErrTokenRevoked {
		t.Fatalf("suspended tenant's refresh token: expected revoked, got %v", err)
	}
	if _, _, err := tokens.RotateRefreshToken(ctx, otherTenantRaw, "10.0.0.2", "test-agent"); err != nil {
		t.Fatalf("other tenant's refresh token should survive: %v", err)
	}
}

func TestBindActive_GatesOnStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	tn := register(t, svc, "mercy_general")

	if _, _, err := svc.BindActive(ctx, tn.ID); apperr.KindOf(err) != apperr.KindTenant {
		t.Fatalf("bind pending tenant: expected tenant error, got %v", err)
	}
	if _, _, err := svc.BindActive(ctx, "ghost_clinic"); apperr.KindOf(err) != apperr.KindTenant {
		t.Fatalf("bind unknown tenant: expected tenant error, got %v", err)
	}

	if _, err := svc.Approve(ctx, tn.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, release, err := svc.BindActive(ctx, tn.ID)
	if err != nil {
		t.Fatalf("bind active tenant: %v", err)
	}
	release()
}
