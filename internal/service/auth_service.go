package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// LoginLimiter counts failed logins in a sliding window
type LoginLimiter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	ResetHits(ctx context.Context, key string) error
}

// AuthConfig configures token issuance
type AuthConfig struct {
	Secret      string
	TokenTTL    time.Duration
	MaxAttempts int
	Window      time.Duration
}

// Claims carried by admin tokens
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies admin tokens
type AuthService struct {
	repo    store.Repository
	limiter LoginLimiter
	cfg     AuthConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuthService creates an auth service. limiter may be nil.
func NewAuthService(repo store.Repository, limiter LoginLimiter, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &AuthService{repo: repo, limiter: limiter, cfg: cfg, logger: util.GetLogger(), now: time.Now}
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login verifies credentials and issues a token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	limitKey := "login:" + strings.ToLower(username)
	if s.limiter != nil {
		n, err := s.limiter.Hit(ctx, limitKey, s.cfg.Window)
		if err != nil {
			s.logger.Warn("Login limiter unavailable", zap.Error(err))
		} else if n > int64(s.cfg.MaxAttempts) {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.logger.Info("Failed login", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.ResetHits(ctx, limitKey); err != nil {
			s.logger.Warn("Failed to reset login limiter", zap.Error(err))
		}
	}

	token, expires, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return &LoginResponse{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *AuthService) issue(userID int64) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   fmt.Sprintf("%d", userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Authenticate verifies a token and loads the acting principal with the
// role's current permissions
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	role, err := s.repo.GetRoleByID(ctx, user.RoleID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return models.NewPrincipal(user, role), nil
}
