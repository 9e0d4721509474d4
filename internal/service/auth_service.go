// Package service implements the application's business operations on top of the repositories.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"sphere/internal/middleware"
	"sphere/internal/models"
	"sphere/internal/observability"
	"sphere/internal/repository"
	"sphere/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

// TokenRevoker records revoked token ids. Revoke reports whether the call
// revoked jti itself, so that exactly one caller can claim a token.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthConfig holds the signing secret and token lifetimes.
type AuthConfig struct {
	Secret        []byte
	TokenTTL      time.Duration
	RefreshWindow time.Duration
	BcryptCost    int
}

// AuthService registers users and issues, verifies and refreshes session tokens.
type AuthService struct {
	users   repository.UserRepository
	revoked TokenRevoker
	clock   clockwork.Clock
	cfg     AuthConfig

	dummyOnce sync.Once
	dummyHash []byte
}

// tokenClaims is the signed payload: {id, email, iat, exp, jti}.
type tokenClaims struct {
	UserID uint   `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(users repository.UserRepository, revoked TokenRevoker, clock clockwork.Clock, cfg AuthConfig) *AuthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, revoked: revoked, clock: clock, cfg: cfg}
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
}

// Register creates an account. The email pre-check only produces a friendly
// error; the unique index is what actually prevents duplicates.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Register")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err = validation.Struct(in); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		err = models.ErrDuplicateEmail
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		err = models.NewInternalError(err)
		return nil, err
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hash),
		Avatar:   models.DefaultAvatar,
	}
	if err = s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate checks email and password and returns a fresh token. An unknown
// email and a wrong password produce the same error and take about the same time.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, *models.User, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Authenticate")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		err = models.NewValidationError("email and password are required")
		return "", nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		observability.AuthFailures.WithLabelValues("credentials").Inc()
		err = models.ErrInvalidCredentials
		return "", nil, err
	}
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		observability.AuthFailures.WithLabelValues("credentials").Inc()
		err = models.ErrInvalidCredentials
		return "", nil, err
	}

	token, err := s.IssueToken(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sphere-timing-equalizer"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}

// IssueToken signs an HS256 token for the user that expires after the configured TTL.
func (s *AuthService) IssueToken(userID uint, email string) (string, error) {
	now := s.clock.Now()
	claims := tokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return signed, nil
}

// VerifyToken validates the raw Authorization header value. Failures carry
// the reason Missing, Malformed, Expired or Invalid.
func (s *AuthService) VerifyToken(ctx context.Context, authorizationHeader string) (*models.Claims, error) {
	raw, err := bearerToken(authorizationHeader)
	if err != nil {
		return nil, err
	}

	claims, err := s.parse(raw, true)
	if err != nil {
		return nil, err
	}
	if s.isRevoked(ctx, claims.ID) {
		return nil, models.ErrTokenInvalid
	}
	return claims.toModel(), nil
}

// Refresh exchanges a correctly signed token for a new one. The presented
// token may already be expired, but no longer ago than the refresh window.
// The old token id is revoked so it cannot be refreshed twice.
func (s *AuthService) Refresh(ctx context.Context, raw string) (string, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Refresh")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), bearerPrefix))
	if raw == "" {
		err = models.ErrTokenMissing
		return "", err
	}

	claims, err := s.parse(raw, false)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	deadline := claims.ExpiresAt.Time.Add(s.cfg.RefreshWindow)
	if !now.Before(deadline) {
		err = models.ErrTokenExpired
		return "", err
	}
	if s.isRevoked(ctx, claims.ID) {
		err = models.ErrTokenInvalid
		return "", err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		err = models.ErrTokenInvalid
		return "", err
	}
	if err != nil {
		return "", err
	}

	// Claiming the jti is the single-use guard: of concurrent exchanges of
	// one token, only the call that revokes it gets a new token.
	claimed, claimErr := s.revoke(ctx, claims.ID, deadline.Sub(now))
	if claimErr != nil {
		middleware.Logger.ErrorContext(ctx, "token claim failed", "error", claimErr)
		err = models.NewStoreUnavailableError(claimErr)
		return "", err
	}
	if !claimed {
		err = models.ErrTokenInvalid
		return "", err
	}

	span.SetAttributes(attribute.Int("user.id", int(user.ID)))
	return s.IssueToken(user.ID, user.Email)
}

// Logout revokes the token described by claims until it expires.
func (s *AuthService) Logout(ctx context.Context, claims *models.Claims) error {
	ttl := claims.ExpiresAt.Sub(s.clock.Now())
	if _, err := s.revoke(ctx, claims.TokenID, ttl); err != nil {
		middleware.Logger.ErrorContext(ctx, "token revocation failed", "error", err)
		return models.NewStoreUnavailableError(err)
	}
	return nil
}

func (s *AuthService) revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if s.revoked == nil {
		return true, nil
	}
	return s.revoked.Revoke(ctx, jti, ttl)
}

// isRevoked fails open: tokens stay valid while the revocation store is unreachable.
func (s *AuthService) isRevoked(ctx context.Context, jti string) bool {
	if s.revoked == nil {
		return false
	}
	revoked, err := s.revoked.IsRevoked(ctx, jti)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "revocation check failed, accepting token", "error", err)
		return false
	}
	return revoked
}

// parse verifies the signature of raw and, when validateTimes is set, its expiry.
func (s *AuthService) parse(raw string, validateTimes bool) (*tokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if !validateTimes {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, models.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, models.ErrTokenExpired
	default:
		return nil, models.ErrTokenInvalid
	}

	if claims.UserID == 0 || claims.ExpiresAt == nil {
		return nil, models.ErrTokenInvalid
	}
	return &claims, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", models.ErrTokenMissing
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", models.ErrTokenMalformed
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", models.ErrTokenMalformed
	}
	return token, nil
}

func (c *tokenClaims) toModel() *models.Claims {
	out := &models.Claims{
		UserID:  c.UserID,
		Email:   c.Email,
		TokenID: c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
