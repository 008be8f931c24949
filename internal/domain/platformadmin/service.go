package platformadmin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/crypto"
	"github.com/carebase/carebase/internal/platform/token"
)

var errInvalidCredentials = apperr.Auth("invalid_credentials", "invalid credentials")

type Service struct {
	repo   Repository
	tokens *token.Service
	hasher *crypto.PasswordHasher
	logger zerolog.Logger
}

func NewService(repo Repository, tokens *token.Service, hasher *crypto.PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, hasher: hasher, logger: logger}
}

// Session is the platform-admin session token set. The CSRF token here is
// self-contained; nothing is stored for it.
type Session struct {
	AccessToken  string `json:"access_token"`
	CSRFToken    string `json:"csrf_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Admin        Admin  `json:"admin"`
	RefreshToken string `json:"-"`
}

// Login authenticates a platform admin.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*Session, error) {
	if username == "" || password == "" {
		return nil, errInvalidCredentials
	}

	a, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Database(err)
	}

	ok, err := s.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	session, err := s.mint(a)
	if err != nil {
		return nil, err
	}
	// Admin refresh rows carry an empty tenant id; tenant-wide revocation can
	// never touch them.
	raw, err := s.tokens.IssueRefreshToken(ctx, a.ID, "", ip, userAgent)
	if err != nil {
		return nil, apperr.Database(err)
	}
	session.RefreshToken = raw
	return session, nil
}

// Refresh rotates a platform-admin refresh token. A tenant user's refresh
// token presented here fails on its tenant id.
func (s *Service) Refresh(ctx context.Context, rawRefresh, ip, userAgent string) (*Session, error) {
	if rawRefresh == "" {
		return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
	}

	row, newRaw, err := s.tokens.RotateRefreshToken(ctx, rawRefresh, ip, userAgent)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenRevoked) ||
			errors.Is(err, token.ErrTokenExpired) {
			return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
		}
		return nil, apperr.Database(err)
	}
	if row.TenantID != "" {
		return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
	}

	a, err := s.repo.FindByID(ctx, row.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
	}
	if err != nil {
		return nil, apperr.Database(err)
	}

	session, err := s.mint(a)
	if err != nil {
		return nil, err
	}
	session.RefreshToken = newRaw
	return session, nil
}

// Logout revokes the presented refresh token. Idempotent.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	if err := s.tokens.RevokeRefreshToken(ctx, rawRefresh); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// CreateAdmin provisions an operator account. Exposed through the CLI only;
// there is no HTTP route for it.
func (s *Service) CreateAdmin(ctx context.Context, username, password string) (*Admin, error) {
	if username == "" {
		return nil, apperr.Validation("invalid admin",
			map[string]string{"username": "username is required"})
	}
	if len(password) < 12 {
		return nil, apperr.Validation("invalid admin",
			map[string]string{"password": "must be at least 12 characters"})
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	a := &Admin{ID: uuid.New(), Username: username, PasswordHash: hash}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, apperr.Validation("invalid admin",
				map[string]string{"username": "username already exists"})
		}
		return nil, apperr.Database(err)
	}
	s.logger.Info().Str("username", username).Msg("platform admin created")
	return a, nil
}

func (s *Service) mint(a *Admin) (*Session, error) {
	access, err := s.tokens.IssuePlatformAccessToken(a.ID.String(), a.Username)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	csrf, err := s.tokens.IssuePlatformCSRFToken(a.ID.String())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		AccessToken: access,
		CSRFToken:   csrf,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		Admin:       *a,
	}, nil
}
