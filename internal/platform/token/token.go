// Package token issues and validates the three token kinds used by the API:
// short-lived signed access tokens (HS256 JWT), long-lived opaque refresh
// tokens (stored hashed, rotated on every use), and CSRF tokens. Tenant-user
// CSRF tokens are store-backed with a single active session per user;
// platform-admin CSRF tokens are self-contained signed payloads.
package token

import (
	"errors"
	"time"
)

// Token use tags embedded in signed tokens. A tenant-user endpoint never
// accepts a platform_admin token and vice versa.
const (
	UseTenant        = "tenant"
	UsePlatformAdmin = "platform_admin"
	UsePlatformCSRF  = "platform_csrf"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultCSRFTTL    = time.Hour
)

// rawTokenBytes is the entropy of opaque refresh and CSRF tokens.
const rawTokenBytes = 32

var (
	// ErrTokenInvalid indicates a signed token that failed signature,
	// structure, or claim validation.
	ErrTokenInvalid = errors.New("token: invalid token")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token: token expired")

	// ErrWrongTokenUse indicates a structurally valid token presented to the
	// wrong principal type.
	ErrWrongTokenUse = errors.New("token: wrong token type")

	// ErrTokenNotFound indicates an opaque token with no stored hash.
	ErrTokenNotFound = errors.New("token: not found")

	// ErrTokenRevoked indicates an opaque token whose row is already revoked.
	// Seeing this on rotation means the raw value was replayed.
	ErrTokenRevoked = errors.New("token: revoked")

	// ErrCSRFMismatch indicates a CSRF token that does not belong to the
	// authenticated user or does not match the stored hash.
	ErrCSRFMismatch = errors.New("token: csrf token mismatch")
)

// Config holds the token service configuration.
type Config struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CSRFTTL    time.Duration
}

// Service implements token issuance, validation, and rotation.
type Service struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	csrfTTL    time.Duration

	refreshStore RefreshTokenStore
	csrfStore    CSRFSessionStore

	now func() time.Time
}

// NewService creates a token service. The signing key must be non-empty;
// zero TTLs take the defaults.
func NewService(cfg Config, refreshStore RefreshTokenStore, csrfStore CSRFSessionStore) (*Service, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token: signing key is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.CSRFTTL == 0 {
		cfg.CSRFTTL = DefaultCSRFTTL
	}
	return &Service{
		signingKey:   cfg.SigningKey,
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		csrfTTL:      cfg.CSRFTTL,
		refreshStore: refreshStore,
		csrfStore:    csrfStore,
		now:          time.Now,
	}, nil
}

// WithClock overrides the time source. Tests use this to cross expiry
// boundaries without sleeping.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AccessTTL reports the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime. Handlers use it
// as the refresh cookie max-age.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }
