package identity

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/domain/tenant"
	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/crypto"
	"github.com/carebase/carebase/internal/platform/token"
)

var testSigningKey = []byte("identity-service-test-key")

// testHasher uses light argon2 parameters so the suite stays fast.
func testHasher() *crypto.PasswordHasher {
	return crypto.NewPasswordHasher(crypto.Argon2Params{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1,
	})
}

type fixture struct {
	svc     *Service
	tenants *tenant.Service
	repo    *InMemoryRepository
	tokens  *token.Service
	hasher  *crypto.PasswordHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := token.NewService(token.Config{
		SigningKey: testSigningKey,
		Issuer:     "carebase-test",
	}, token.NewInMemoryRefreshTokenStore(), token.NewInMemoryCSRFSessionStore())
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	bind := func(ctx context.Context, tenantID string) (context.Context, func(), error) {
		return ctx, func() {}, nil
	}
	tenants := tenant.NewService(tenant.NewInMemoryRepository(), &tenant.NoopProvisioner{}, tokens, bind, zerolog.Nop())

	repo := NewInMemoryRepository()
	hasher := testHasher()
	svc := NewService(repo, tokens, hasher, tenants, zerolog.Nop())
	return &fixture{svc: svc, tenants: tenants, repo: repo, tokens: tokens, hasher: hasher}
}

func (f *fixture) activeTenant(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.tenants.Register(ctx, tenant.RegisterRequest{Name: "Mercy General", Subdomain: id}); err != nil {
		t.Fatalf("register tenant: %v", err)
	}
	if _, err := f.tenants.Approve(ctx, id); err != nil {
		t.Fatalf("approve tenant: %v", err)
	}
}

func (f *fixture) seedUser(t *testing.T, username, password, role string) *User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@mercy.example",
		FirstName:    "Adaeze",
		LastName:     "Okafor",
		PasswordHash: hash,
		Role:         role,
		Status:       UserActive,
	}
	if err := f.repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func login(t *testing.T, f *fixture, tenantID, username, password string) (*Session, error) {
	t.Helper()
	return f.svc.Login(context.Background(), LoginRequest{
		TenantID: tenantID, Username: username, Password: password,
	}, "10.0.0.1", "test-agent")
}

func TestLogin_ClaimFidelity(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	u := f.seedUser(t, "dr.okafor", "correct horse battery", "physician")

	session, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.RefreshToken == "" || session.CSRFToken == "" {
		t.Fatal("session missing refresh or csrf token")
	}

	claims, err := f.tokens.ValidateAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.Subject != u.ID.String() {
		t.Errorf("sub = %s, want %s", claims.Subject, u.ID)
	}
	if claims.TenantID != "mercy_general" {
		t.Errorf("tenant_id = %s", claims.TenantID)
	}
	if claims.Role != "physician" || claims.Username != "dr.okafor" {
		t.Errorf("role/username = %s/%s", claims.Role, claims.Username)
	}
	if session.User.Email != u.Email {
		t.Errorf("profile email = %s, want %s", session.User.Email, u.Email)
	}
}

func TestLogin_GenericInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	u := f.seedUser(t, "dr.okafor", "correct horse battery", "physician")
	deleted := f.seedUser(t, "gone.user", "correct horse battery", "nurse")
	if err := f.repo.SoftDelete(context.Background(), deleted.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_ = u

	cases := []struct{ username, password string }{
		{"nobody", "correct horse battery"},     // unknown user
		{"dr.okafor", "wrong password"},         // wrong password
		{"gone.user", "correct horse battery"},  // deleted user, right password
	}
	for _, tc := range cases {
		_, err := login(t, f, "mercy_general", tc.username, tc.password)
		ae := apperr.AsError(err)
		if ae.Kind != apperr.KindAuth || ae.Message != "invalid credentials" {
			t.Errorf("login(%s): got %v, want generic invalid credentials", tc.username, err)
		}
	}
}

func TestLogin_InactiveTenant(t *testing.T) {
	f := newFixture(t)
	// Registered but never approved.
	if _, err := f.tenants.Register(context.Background(), tenant.RegisterRequest{
		Name: "Pending Clinic", Subdomain: "pending_clinic",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := login(t, f, "pending_clinic", "anyone", "anything")
	if apperr.KindOf(err) != apperr.KindTenant {
		t.Fatalf("login against pending tenant: expected tenant error, got %v", err)
	}
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	f.seedUser(t, "dr.okafor", "correct horse battery", "physician")

	for i := 0; i < lockThreshold; i++ {
		if _, err := login(t, f, "mercy_general", "dr.okafor", "wrong password"); err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i+1)
		}
	}

	// The correct password is rejected while the account is locked.
	_, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	ae := apperr.AsError(err)
	if ae.Kind != apperr.KindAuth || ae.Message != "invalid credentials" {
		t.Fatalf("locked account: got %v, want generic invalid credentials", err)
	}
}

func TestLogin_FailureCounterResetsOnSuccess(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	f.seedUser(t, "dr.okafor", "correct horse battery", "physician")

	for i := 0; i < lockThreshold-1; i++ {
		_, _ = login(t, f, "mercy_general", "dr.okafor", "wrong password")
	}
	if _, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery"); err != nil {
		t.Fatalf("login before threshold: %v", err)
	}

	// The counter restarted, so another near-threshold run still ends in a
	// working login.
	for i := 0; i < lockThreshold-1; i++ {
		_, _ = login(t, f, "mercy_general", "dr.okafor", "wrong password")
	}
	if _, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	f.seedUser(t, "dr.okafor", "correct horse battery", "physician")
	ctx := context.Background()

	session, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := f.svc.Refresh(ctx, session.RefreshToken, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := f.tokens.ValidateAccessToken(next.AccessToken); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}

	// Replaying the consumed value fails.
	if _, err := f.svc.Refresh(ctx, session.RefreshToken, "10.0.0.1", "test-agent"); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("replayed refresh: expected auth error, got %v", err)
	}
}

func TestRefresh_DeniedForSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	f.seedUser(t, "dr.okafor", "correct horse battery", "physician")
	ctx := context.Background()

	session, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := f.tenants.Suspend(ctx, "mercy_general"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	_, err = f.svc.Refresh(ctx, session.RefreshToken, "10.0.0.1", "test-agent")
	if err == nil {
		t.Fatal("refresh succeeded for suspended tenant")
	}
	// Suspension revoked the token, so the failure is an auth error; either
	// way no session comes back for a suspended tenant.
	if kind := apperr.KindOf(err); kind != apperr.KindAuth && kind != apperr.KindTenant {
		t.Fatalf("unexpected error kind %v: %v", kind, err)
	}
}

func TestLogout_RevokesRefreshAndCSRF(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	u := f.seedUser(t, "dr.okafor", "correct horse battery", "physician")
	ctx := context.Background()

	session, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.svc.Logout(ctx, u.ID, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, session.RefreshToken, "10.0.0.1", "test-agent"); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("refresh after logout: expected auth error, got %v", err)
	}
	if err := f.tokens.ValidateCSRFToken(ctx, session.CSRFToken, u.ID); err == nil {
		t.Fatal("csrf token survived logout")
	}

	// Logging out again is not an error.
	if err := f.svc.Logout(ctx, u.ID, session.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	u := f.seedUser(t, "dr.okafor", "correct horse battery", "physician")
	ctx := context.Background()

	session, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, u.ID, "wrong password", "a new password"); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("wrong current password: expected auth error, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, "correct horse battery", "short"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("short new password: expected validation error, got %v", err)
	}

	if err := f.svc.ChangePassword(ctx, u.ID, "correct horse battery", "a new password"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	// The outstanding refresh token died with the old password.
	if _, err := f.svc.Refresh(ctx, session.RefreshToken, "10.0.0.1", "test-agent"); apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("refresh after password change: expected auth error, got %v", err)
	}

	if _, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery"); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, err := login(t, f, "mercy_general", "dr.okafor", "a new password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestCreateUser_QuotaAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.tenants.Register(ctx, tenant.RegisterRequest{
		Name: "Tiny Clinic", Subdomain: "tiny_clinic", MaxUsers: 2,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.tenants.Approve(ctx, "tiny_clinic"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	mk := func(username string) (*User, error) {
		return f.svc.CreateUser(ctx, "tiny_clinic", CreateUserRequest{
			Username: username, Email: username + "@tiny.example",
			FirstName: "A", LastName: "B", Password: "a sound password", Role: "nurse",
		})
	}

	if _, err := mk("nurse.one"); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := mk("nurse.two"); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := mk("nurse.three"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("over quota: expected validation error, got %v", err)
	}

	if _, err := f.svc.CreateUser(ctx, "tiny_clinic", CreateUserRequest{
		Username: "Bad User!", Email: "bad@tiny.example", Password: "a sound password", Role: "nurse",
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad username: expected validation error, got %v", err)
	}
	if _, err := f.svc.CreateUser(ctx, "tiny_clinic", CreateUserRequest{
		Username: "ok.user", Email: "ok@tiny.example", Password: "a sound password", Role: "wizard",
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("unknown role: expected validation error, got %v", err)
	}
}

func TestAccessToken_TamperRejected(t *testing.T) {
	f := newFixture(t)
	f.activeTenant(t, "mercy_general")
	f.seedUser(t, "dr.okafor", "correct horse battery", "physician")

	if _, err := login(t, f, "mercy_general", "dr.okafor", "correct horse battery"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Claims signed with a different key never validate, whatever they say.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(), "tenant_id": "mercy_general", "role": "admin", "token_use": "tenant",
	})
	forgedRaw, err := forged.SignedString([]byte("some other key"))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	if _, err := f.tokens.ValidateAccessToken(forgedRaw); err == nil {
		t.Fatal("forged token accepted")
	}
}
