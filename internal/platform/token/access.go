package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subject identifies the principal an access token is minted for.
type Subject struct {
	UserID   string
	TenantID string
	Role     string
	RoleID   string
	Username string
}

// AccessClaims is the payload of a signed access token. TokenUse
// distinguishes tenant-user tokens from platform-admin tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
	Username string `json:"username,omitempty"`
	TokenUse string `json:"token_use"`
}

// IssueAccessToken mints a signed tenant-user access token. Access tokens
// are stateless and self-expiring; revocation happens at the refresh layer.
func (s *Service) IssueAccessToken(sub Subject) (string, error) {
	if sub.UserID == "" || sub.TenantID == "" || sub.Role == "" {
		return "", fmt.Errorf("%w: subject requires user, tenant, and role", ErrTokenInvalid)
	}
	return s.sign(AccessClaims{
		RegisteredClaims: s.registered(sub.UserID, s.accessTTL),
		TenantID:         sub.TenantID,
		Role:             sub.Role,
		RoleID:           sub.RoleID,
		Username:         sub.Username,
		TokenUse:         UseTenant,
	})
}

// ValidateAccessToken verifies a tenant-user access token: HS256 signature,
// expiry, and the presence of subject, tenant, and role claims. Tokens
// tagged for any other use are rejected.
func (s *Service) ValidateAccessToken(raw string) (*AccessClaims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != UseTenant {
		return nil, ErrWrongTokenUse
	}
	if claims.Subject == "" || claims.TenantID == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}
	return claims, nil
}

// IssuePlatformAccessToken mints a signed token for a platform admin. The
// payload carries no tenant; its use tag keeps it out of tenant endpoints.
func (s *Service) IssuePlatformAccessToken(adminID, username string) (string, error) {
	if adminID == "" {
		return "", fmt.Errorf("%w: admin id required", ErrTokenInvalid)
	}
	return s.sign(AccessClaims{
		RegisteredClaims: s.registered(adminID, s.accessTTL),
		Username:         username,
		TokenUse:         UsePlatformAdmin,
	})
}

// ValidatePlatformAccessToken verifies a platform-admin token. Tenant-user
// tokens are rejected here exactly as platform tokens are rejected by
// ValidateAccessToken.
func (s *Service) ValidatePlatformAccessToken(raw string) (*AccessClaims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != UsePlatformAdmin {
		return nil, ErrWrongTokenUse
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *Service) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *Service) sign(claims AccessClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
