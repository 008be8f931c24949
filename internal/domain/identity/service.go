package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebase/carebase/internal/domain/tenant"
	"github.com/carebase/carebase/internal/platform/apperr"
	"github.com/carebase/carebase/internal/platform/crypto"
	"github.com/carebase/carebase/internal/platform/db"
	"github.com/carebase/carebase/internal/platform/token"
)

// Lockout policy: five consecutive failures lock the account for fifteen
// minutes. A successful login resets the counter.
const (
	lockThreshold = 5
	lockDuration  = 15 * time.Minute
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,64}$`)

// knownRoles is the closed set of roles the policy table understands.
var knownRoles = map[string]bool{
	"admin": true, "physician": true, "nurse": true,
	"registrar": true, "billing": true, "patient": true,
}

// errInvalidCredentials is the single answer for every credential-shaped
// failure: unknown user, wrong password, deleted account, locked account.
// One message means a caller cannot probe which factor failed.
var errInvalidCredentials = apperr.Auth("invalid_credentials", "invalid credentials")

type Service struct {
	repo    Repository
	tokens  *token.Service
	hasher  *crypto.PasswordHasher
	tenants *tenant.Service
	logger  zerolog.Logger
}

func NewService(repo Repository, tokens *token.Service, hasher *crypto.PasswordHasher, tenants *tenant.Service, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, hasher: hasher, tenants: tenants, logger: logger}
}

// LoginRequest is the public login payload. TenantID selects the tenant
// store; it only works for Active tenants.
type LoginRequest struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is the result of a successful login or refresh. RefreshToken is
// the raw opaque value; the handler moves it into an HttpOnly cookie and
// never includes it in the response body.
type Session struct {
	AccessToken  string  `json:"access_token"`
	CSRFToken    string  `json:"csrf_token"`
	ExpiresIn    int64   `json:"expires_in"`
	User         Profile `json:"user"`
	RefreshToken string  `json:"-"`
}

// Login authenticates a tenant user and mints the session token set.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip, userAgent string) (*Session, error) {
	if req.TenantID == "" || req.Username == "" || req.Password == "" {
		return nil, errInvalidCredentials
	}

	ctx, release, err := s.tenants.BindActive(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	u, err := s.repo.FindByUsername(ctx, req.Username)
	if errors.Is(err, ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	if u.Status != UserActive {
		return nil, errInvalidCredentials
	}
	if u.LockedUntil != nil && time.Now().Before(*u.LockedUntil) {
		// A locked account rejects even the correct password.
		return nil, errInvalidCredentials
	}

	ok, err := s.hasher.Verify(req.Password, u.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		locked, recErr := s.repo.RecordLoginFailure(ctx, u.ID, lockThreshold, lockDuration)
		if recErr != nil {
			s.logger.Error().Err(recErr).Str("user_id", u.ID.String()).Msg("record login failure")
		}
		if locked {
			s.logger.Warn().Str("user_id", u.ID.String()).Str("tenant_id", req.TenantID).
				Msg("account locked after repeated failures")
		}
		return nil, errInvalidCredentials
	}

	if u.FailedLoginAttempts > 0 || u.LockedUntil != nil {
		if err := s.repo.ResetLoginFailures(ctx, u.ID); err != nil {
			return nil, apperr.Database(err)
		}
	}

	return s.mintSession(ctx, u, req.TenantID, ip, userAgent)
}

// Refresh rotates a refresh token and mints a new session. Rotation consumes
// the presented value; replaying it afterwards fails.
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

	// A suspended or pending tenant refuses refresh even when the token
	// itself is sound.
	ctx, release, err := s.tenants.BindActive(ctx, row.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	u, err := s.repo.FindByID(ctx, row.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	if u.Status != UserActive {
		return nil, apperr.Auth("invalid_refresh_token", "invalid or expired refresh token")
	}

	session, err := s.mintSessionTokens(ctx, u, row.TenantID)
	if err != nil {
		return nil, err
	}
	session.RefreshToken = newRaw
	return session, nil
}

// Logout revokes the presented refresh token and drops the CSRF session.
// Both operations are idempotent; logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, rawRefresh string) error {
	if rawRefresh != "" {
		if err := s.tokens.RevokeRefreshToken(ctx, rawRefresh); err != nil {
			return apperr.Database(err)
		}
	}
	if err := s.tokens.DropCSRFSession(ctx, userID); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every refresh token of the user so stolen refresh tokens die with
// the old password.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	if next == current {
		return apperr.Validation("invalid password",
			map[string]string{"new_password": "must differ from the current password"})
	}

	u, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return errInvalidCredentials
	}
	if err != nil {
		return apperr.Database(err)
	}

	ok, err := s.hasher.Verify(current, u.PasswordHash)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Database(err)
	}
	if err := s.tokens.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return apperr.Database(err)
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("password changed, refresh tokens revoked")
	return nil
}

// Me returns the decrypted profile of the authenticated user.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	p := profileOf(u, db.TenantFromContext(ctx))
	return &p, nil
}

// CreateUserRequest is the staff-management payload for creating a user.
type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	RoleID    string `json:"role_id"`
}

// CreateUser adds a user to the bound tenant, honoring the tenant's user
// quota.
func (s *Service) CreateUser(ctx context.Context, tenantID string, req CreateUserRequest) (*User, error) {
	fields := map[string]string{}
	if !usernamePattern.MatchString(req.Username) {
		fields["username"] = "must be 3-64 lowercase letters, digits, dots, dashes or underscores"
	}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "must be an email address"
	}
	if !knownRoles[req.Role] {
		fields["role"] = "unknown role"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid user", fields)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	t, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if count >= t.MaxUsers {
		return nil, apperr.Validation("invalid user",
			map[string]string{"tenant": "user limit reached"})
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	u := &User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         req.Role,
		RoleID:       req.RoleID,
		Status:       UserActive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, apperr.Validation("invalid user",
				map[string]string{"username": "username already exists"})
		}
		return nil, apperr.Database(err)
	}
	return u, nil
}

// ListUsers pages the tenant's user roster.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Database(err)
	}
	return users, total, nil
}

// DeleteUser soft-deletes a user and revokes everything they hold.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Database(err)
	}
	if err := s.tokens.RevokeUserRefreshTokens(ctx, id); err != nil {
		return apperr.Database(err)
	}
	if err := s.tokens.DropCSRFSession(ctx, id); err != nil {
		return apperr.Database(err)
	}
	return nil
}

func (s *Service) mintSession(ctx context.Context, u *User, tenantID, ip, userAgent string) (*Session, error) {
	session, err := s.mintSessionTokens(ctx, u, tenantID)
	if err != nil {
		return nil, err
	}
	raw, err := s.tokens.IssueRefreshToken(ctx, u.ID, tenantID, ip, userAgent)
	if err != nil {
		return nil, apperr.Database(err)
	}
	session.RefreshToken = raw
	return session, nil
}

func (s *Service) mintSessionTokens(ctx context.Context, u *User, tenantID string) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(token.Subject{
		UserID:   u.ID.String(),
		TenantID: tenantID,
		Role:     u.Role,
		RoleID:   u.RoleID,
		Username: u.Username,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	csrf, err := s.tokens.IssueCSRFToken(ctx, u.ID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &Session{
		AccessToken: access,
		CSRFToken:   csrf,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		User:        profileOf(u, tenantID),
	}, nil
}

func profileOf(u *User, tenantID string) Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		TenantID:  tenantID,
	}
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("invalid password",
			map[string]string{"password": "must be at least 8 characters"})
	}
	return nil
}
