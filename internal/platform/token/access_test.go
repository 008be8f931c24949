package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		SigningKey: []byte("test-signing-key-for-unit-tests"),
		Issuer:     "carebase-test",
	}, NewInMemoryRefreshTokenStore(), NewInMemoryCSRFSessionStore())
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func testSubject() Subject {
	return Subject{
		UserID:   "3f1c9a6e-0000-0000-0000-000000000001",
		TenantID: "mercy_general",
		Role:     "physician",
		RoleID:   "role-7",
		Username: "dr.okafor",
	}
}

func TestIssueAccessToken_ClaimsRoundTrip(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueAccessToken(testSubject())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if parts := strings.Split(raw, "."); len(parts) != 3 {
		t.Fatalf("expected 3 dot-joined segments, got %d", len(parts))
	}

	claims, err := svc.ValidateAccessToken(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != testSubject().UserID {
		t.Errorf("subject: got %q", claims.Subject)
	}
	if claims.TenantID != "mercy_general" || claims.Role != "physician" || claims.Username != "dr.okafor" {
		t.Errorf("claims mismatch: %+v", claims)
	}
	if claims.TokenUse != UseTenant {
		t.Errorf("token_use: got %q", claims.TokenUse)
	}
}

func TestIssueAccessToken_RequiresSubjectFields(t *testing.T) {
	svc := newTestService(t)

	for _, sub := range []Subject{
		{TenantID: "t", Role: "r"},
		{UserID: "u", Role: "r"},
		{UserID: "u", TenantID: "t"},
	} {
		if _, err := svc.IssueAccessToken(sub); err == nil {
			t.Errorf("subject %+v: expected error", sub)
		}
	}
}

func TestValidateAccessToken_TamperedPayloadRejected(t *testing.T) {
	svc := newTestService(t)
	raw, _ := svc.IssueAccessToken(testSubject())

	parts := strings.Split(raw, ".")
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	forged := strings.Replace(string(payload), "physician", "admin", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	if _, err := svc.ValidateAccessToken(strings.Join(parts, ".")); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered payload, got %v", err)
	}
}

func TestValidateAccessToken_WrongKeyRejected(t *testing.T) {
	svc := newTestService(t)
	other, _ := NewService(Config{SigningKey: []byte("a different signing key entirely")},
		NewInMemoryRefreshTokenStore(), NewInMemoryCSRFSessionStore())

	raw, _ := other.IssueAccessToken(testSubject())
	if _, err := svc.ValidateAccessToken(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	svc := newTestService(t)

	issued := time.Now()
	svc.WithClock(func() time.Time { return issued })
	raw, _ := svc.IssueAccessToken(testSubject())

	svc.WithClock(func() time.Time { return issued.Add(DefaultAccessTTL + time.Minute) })
	if _, err := svc.ValidateAccessToken(raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateAccessToken_MalformedInput(t *testing.T) {
	svc := newTestService(t)

	for _, raw := range []string{"", "only.two", "a.b.c.d", "garbage"} {
		if _, err := svc.ValidateAccessToken(raw); err == nil {
			t.Errorf("input %q: expected error", raw)
		}
	}
}

func TestTokenUse_CrossPrincipalRejection(t *testing.T) {
	svc := newTestService(t)

	tenantTok, _ := svc.IssueAccessToken(testSubject())
	adminTok, err := svc.IssuePlatformAccessToken("admin-1", "root")
	if err != nil {
		t.Fatalf("issue platform token: %v", err)
	}

	// Platform token presented to tenant validation.
	if _, err := svc.ValidateAccessToken(adminTok); !errors.Is(err, ErrWrongTokenUse) {
		t.Fatalf("tenant validation of platform token: expected ErrWrongTokenUse, got %v", err)
	}
	// Tenant token presented to platform validation.
	if _, err := svc.ValidatePlatformAccessToken(tenantTok); !errors.Is(err, ErrWrongTokenUse) {
		t.Fatalf("platform validation of tenant token: expected ErrWrongTokenUse, got %v", err)
	}

	// Each validates on its own side.
	if _, err := svc.ValidatePlatformAccessToken(adminTok); err != nil {
		t.Fatalf("platform token on platform side: %v", err)
	}
}
