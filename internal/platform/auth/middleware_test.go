package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/token"
)

func testTokenService(t *testing.T) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{
		SigningKey: []byte("auth-middleware-test-key"),
		Issuer:     "carebase-test",
	}, token.NewInMemoryRefreshTokenStore(), token.NewInMemoryCSRFSessionStore())
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return svc
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	return c, err
}

func TestAuthenticate_ValidToken(t *testing.T) {
	tokens := testTokenService(t)
	userID := uuid.New()
	raw, _ := tokens.IssueAccessToken(token.Subject{
		UserID: userID.String(), TenantID: "mercy_general", Role: "physician", Username: "dr.okafor",
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	c, err := runMiddleware(t, Authenticate(tokens), req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	identity := IdentityFromContext(c.Request().Context())
	if identity == nil {
		t.Fatal("no identity attached")
	}
	if identity.UserID != userID || identity.TenantID != "mercy_general" || identity.Role != "physician" {
		t.Fatalf("identity mismatch: %+v", identity)
	}
}

func TestAuthenticate_FailsClosed(t *testing.T) {
	tokens := testTokenService(t)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic dXNlcjpwdw==",
		"garbage token":  "Bearer not.a.jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if _, err := runMiddleware(t, Authenticate(tokens), req); apperr.KindOf(err) != apperr.KindAuth {
			t.Errorf("%s: expected auth error, got %v", name, err)
		}
	}
}

func TestAuthenticate_RejectsPlatformToken(t *testing.T) {
	tokens := testTokenService(t)
	adminTok, _ := tokens.IssuePlatformAccessToken("admin-1", "root")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	if _, err := runMiddleware(t, Authenticate(tokens), req); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("platform token on tenant route: expected auth error, got %v", err)
	}
}

func TestAuthenticateAdmin_RejectsTenantToken(t *testing.T) {
	tokens := testTokenService(t)
	userTok, _ := tokens.IssueAccessToken(token.Subject{
		UserID: uuid.NewString(), TenantID: "mercy_general", Role: "physician",
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	if _, err := runMiddleware(t, AuthenticateAdmin(tokens), req); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("tenant token on platform route: expected auth error, got %v", err)
	}

	adminTok, _ := tokens.IssuePlatformAccessToken("admin-1", "root")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	c, err := runMiddleware(t, AuthenticateAdmin(tokens), req)
	if err != nil {
		t.Fatalf("admin token on platform route: %v", err)
	}
	if admin := AdminFromContext(c.Request().Context()); admin == nil || admin.AdminID != "admin-1" {
		t.Fatalf("admin identity: %+v", admin)
	}
}

type stubBinder struct {
	bound string
	fail  error
}

func (b *stubBinder) BindActive(ctx context.Context, tenantID string) (context.Context, func(), error) {
	if b.fail != nil {
		return ctx, nil, b.fail
	}
	b.bound = tenantID
	return ctx, func() {}, nil
}

func TestResolveTenant_UsesTokenTenant(t *testing.T) {
	tokens := testTokenService(t)
	raw, _ := tokens.IssueAccessToken(token.Subject{
		UserID: uuid.NewString(), TenantID: "mercy_general", Role: "physician",
	})
	binder := &stubBinder{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	// A spoofed tenant header must be ignored.
	req.Header.Set("X-Tenant-ID", "other_hospital")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	chain := Authenticate(tokens)(ResolveTenant(binder)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}))
	if err := chain(c); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if binder.bound != "mercy_general" {
		t.Fatalf("bound tenant %q, want tenant from token", binder.bound)
	}
}

func TestResolveTenant_FailsClosedOnInactiveTenant(t *testing.T) {
	tokens := testTokenService(t)
	raw, _ := tokens.IssueAccessToken(token.Subject{
		UserID: uuid.NewString(), TenantID: "suspended_hospital", Role: "physician",
	})
	binder := &stubBinder{fail: apperr.Tenant("tenant_inactive", "tenant is not active")}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	c := e.NewContext(req, httptest.NewRecorder())

	chain := Authenticate(tokens)(ResolveTenant(binder)(func(c echo.Context) error {
		t.Fatal("handler ran for inactive tenant")
		return nil
	}))
	if err := chain(c); apperr.KindOf(err) != apperr.KindTenant {
		t.Fatalf("expected tenant error, got %v", err)
	}
}

func TestVerifyCSRF_MutatingRequests(t *testing.T) {
	tokens := testTokenService(t)
	userID := uuid.New()
	csrf, _ := tokens.IssueCSRFToken(context.Background(), userID)

	identity := &Identity{UserID: userID, TenantID: "mercy_general", Role: "physician"}

	run := func(method, csrfHeader string) error {
		e := echo.New()
		req := httptest.NewRequest(method, "/", nil)
		if csrfHeader != "" {
			req.Header.Set("X-CSRF-Token", csrfHeader)
		}
		req = req.WithContext(WithIdentity(req.Context(), identity))
		c := e.NewContext(req, httptest.NewRecorder())
		return VerifyCSRF(tokens)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	}

	if err := run(http.MethodGet, ""); err != nil {
		t.Fatalf("GET should not require csrf: %v", err)
	}
	if err := run(http.MethodPost, csrf); err != nil {
		t.Fatalf("POST with valid csrf: %v", err)
	}
	if err := run(http.MethodPost, ""); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("POST without csrf: expected forbidden, got %v", err)
	}
	if err := run(http.MethodDelete, "wrong-token"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("DELETE with wrong csrf: expected forbidden, got %v", err)
	}
}

func TestVerifyAdminCSRF_SelfContained(t *testing.T) {
	tokens := testTokenService(t)
	csrf, _ := tokens.IssuePlatformCSRFToken("admin-1")

	run := func(adminID, csrfHeader string) error {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if csrfHeader != "" {
			req.Header.Set("X-CSRF-Token", csrfHeader)
		}
		req = req.WithContext(WithAdmin(req.Context(), &AdminIdentity{AdminID: adminID}))
		c := e.NewContext(req, httptest.NewRecorder())
		return VerifyAdminCSRF(tokens)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	}

	if err := run("admin-1", csrf); err != nil {
		t.Fatalf("valid admin csrf: %v", err)
	}
	if err := run("admin-2", csrf); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("other admin's csrf: expected forbidden, got %v", err)
	}
}
