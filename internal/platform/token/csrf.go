package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carebase/carebase/internal/platform/crypto"
)

// CSRFSession is the stored form of a tenant-user CSRF token. The store
// keeps at most one row per user: issuing a new token replaces the old one,
// so a user has exactly one live CSRF session.
type CSRFSession struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

// IssueCSRFToken mints a fresh CSRF token for the user and stores its hash,
// replacing any existing session. The previously issued token stops
// validating at that moment.
func (s *Service) IssueCSRFToken(ctx context.Context, userID uuid.UUID) (string, error) {
	raw, err := crypto.GenerateToken(rawTokenBytes)
	if err != nil {
		return "", fmt.Errorf("token: issue csrf: %w", err)
	}

	session := &CSRFSession{
		UserID:    userID,
		TokenHash: crypto.HashToken(raw),
		ExpiresAt: s.now().Add(s.csrfTTL),
	}
	if err := s.csrfStore.Replace(ctx, session); err != nil {
		return "", fmt.Errorf("token: persist csrf: %w", err)
	}
	return raw, nil
}

// ValidateCSRFToken checks the presented raw token against the user's stored
// session: hash match, expiry, ownership.
func (s *Service) ValidateCSRFToken(ctx context.Context, raw string, userID uuid.UUID) error {
	session, err := s.csrfStore.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrCSRFMismatch
		}
		return fmt.Errorf("token: csrf lookup: %w", err)
	}
	if s.now().After(session.ExpiresAt) {
		return ErrTokenExpired
	}
	if session.TokenHash != crypto.HashToken(raw) {
		return ErrCSRFMismatch
	}
	return nil
}

// DropCSRFSession removes the user's CSRF session. Called on logout.
func (s *Service) DropCSRFSession(ctx context.Context, userID uuid.UUID) error {
	return s.csrfStore.Delete(ctx, userID)
}

// platformCSRFClaims is the self-contained platform-admin CSRF payload.
// Unlike tenant-user CSRF there is no server-side state: the token carries
// the admin id and expiry under the service signature.
type platformCSRFClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
}

// IssuePlatformCSRFToken mints a self-contained CSRF token for a platform
// admin.
func (s *Service) IssuePlatformCSRFToken(adminID string) (string, error) {
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, platformCSRFClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.csrfTTL)),
		},
		TokenUse: UsePlatformCSRF,
	})
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("token: sign platform csrf: %w", err)
	}
	return signed, nil
}

// ValidatePlatformCSRFToken verifies a platform-admin CSRF token and checks
// it belongs to the authenticated admin.
func (s *Service) ValidatePlatformCSRFToken(raw, adminID string) error {
	claims := &platformCSRFClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid || claims.TokenUse != UsePlatformCSRF {
		return ErrWrongTokenUse
	}
	if claims.Subject != adminID {
		return ErrCSRFMismatch
	}
	return nil
}
