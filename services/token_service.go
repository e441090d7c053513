package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPair holds the generated access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	TokenID          string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Principal is the identity carried by a valid access token.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// TokenService is responsible for creating and validating JWTs.
type TokenService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{secretKey: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// GenerateTokenPair creates a new access and refresh token pair. The refresh
// token carries a fresh jti returned in TokenID.
func (s *TokenService) GenerateTokenPair(userID, email, role string) (*TokenPair, error) {
	accessToken, err := s.GenerateAccessToken(userID, email, role)
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	expiresAt := time.Now().Add(s.refreshTTL)
	refreshToken, err := s.sign(userID, email, role, TokenTypeRefresh, expiresAt, tokenID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenID:          tokenID,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func (s *TokenService) GenerateAccessToken(userID, email, role string) (string, error) {
	return s.sign(userID, email, role, TokenTypeAccess, time.Now().Add(s.accessTTL), "")
}

// ValidateToken parses and validates any given token string.
func (s *TokenService) ValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrTokenExpired.Wrap(err)
		}
		return nil, apperrors.ErrInvalidToken.Wrap(err)
	}
	if !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, apperrors.ErrInvalidToken.WithMessage("Invalid token type")
		}
	}
	return claims, nil
}

// ParseAccessToken validates an access token and extracts its principal.
func (s *TokenService) ParseAccessToken(tokenStr string) (*Principal, error) {
	claims, err := s.ValidateToken(tokenStr, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, apperrors.ErrInvalidToken.Wrap(err)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Principal{UserID: userID, Email: email, Role: role}, nil
}

func (s *TokenService) sign(userID, email, role, tokenType string, expiresAt time.Time, tokenID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"typ":   tokenType,
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
	if tokenID != "" {
		claims["jti"] = tokenID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}
