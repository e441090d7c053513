package services

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ITokenService interface {
	GenerateTokenPair(userID, email, role string) (*TokenPair, error)
	GenerateAccessToken(userID, email, role string) (string, error)
	ValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens *TokenPair
	User   *models.User
}

type AuthService struct {
	userRepo     repository.UserRepository
	tokenService ITokenService
	passwords    *PasswordValidator
	rotate       bool
	metrics      Metrics
	logger       *zap.Logger
}

// NewAuthService builds the auth service. With rotate set, every refresh
// revokes the presented refresh token and issues a new one.
func NewAuthService(ur repository.UserRepository, ts ITokenService, rotate bool, metrics Metrics, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:     ur,
		tokenService: ts,
		passwords:    NewPasswordValidator(),
		rotate:       rotate,
		metrics:      metrics,
		logger:       logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.ErrValidation.WithMessage("name and a valid email are required")
	}
	if err := s.passwords.ValidatePassword(password); err != nil {
		return nil, apperrors.ErrValidation.WithMessage(err.Error())
	}

	_, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperrors.ErrConflict.WithMessage("email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	user := &models.User{
		ID:       uuid.New(),
		Name:     name,
		Email:    email,
		Password: hashed,
		Role:     models.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrConflict.WithMessage("email already registered")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}

	if !CheckPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: pair, User: user}, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation the
// presented token is revoked and a new refresh token is returned as well.
// Presenting an already revoked token revokes every token of its user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrUnauthorized.WithMessage("refresh token required")
	}

	claims, err := s.tokenService.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	principal, err := principalFromClaims(claims)
	if err != nil {
		return nil, err
	}
	tokenID, _ := claims["jti"].(string)
	if tokenID == "" {
		return nil, apperrors.ErrInvalidToken
	}

	stored, err := s.userRepo.GetRefreshTokenByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	if stored.UserID != principal.UserID {
		return nil, apperrors.ErrInvalidToken
	}
	if stored.Revoked {
		s.logger.Warn("Revoked refresh token presented, revoking all sessions",
			zap.String("user_id", principal.UserID.String()))
		if err := s.userRepo.RevokeAllUserRefreshTokens(ctx, principal.UserID); err != nil {
			s.logger.Error("Failed to revoke refresh tokens", zap.Error(err))
		}
		return nil, apperrors.ErrInvalidToken.WithMessage("Refresh token revoked")
	}

	user, err := s.userRepo.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}

	recordCount(ctx, s.metrics, s.logger, aws.MetricTokenRefresh)

	if !s.rotate {
		access, err := s.tokenService.GenerateAccessToken(user.ID.String(), user.Email, user.Role)
		if err != nil {
			return nil, apperrors.ErrInternalServer.Wrap(err)
		}
		return &TokenPair{AccessToken: access}, nil
	}

	if err := s.userRepo.RevokeRefreshTokenByTokenID(ctx, tokenID); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return s.issue(ctx, user)
}

// Logout revokes the presented refresh token. Unparseable or unknown tokens
// are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokenService.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}
	tokenID, _ := claims["jti"].(string)
	if tokenID == "" {
		return nil
	}
	if err := s.userRepo.RevokeRefreshTokenByTokenID(ctx, tokenID); err != nil {
		return apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := s.tokenService.GenerateTokenPair(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	rt := &models.RefreshToken{
		TokenID:   pair.TokenID,
		UserID:    user.ID,
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := s.userRepo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return pair, nil
}
