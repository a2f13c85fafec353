package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type JWTService struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	logger        *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:     secretKey,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		logger:        logger,
	}, nil
}

type Claims struct {
	Phone       string             `json:"phone"`
	AccountType models.AccountType `json:"account_type"`
	Type        string             `json:"type"`
	JTI         string             `json:"jti"`
	FamilyID    string             `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

// IssueTokens signs an access/refresh pair for a verified phone. An empty
// familyID starts a new refresh family. The refresh claims are returned so
// the caller can persist them.
func (s *JWTService) IssueTokens(phoneNumber string, accountType models.AccountType, familyID string) (*models.TokenPair, *Claims, error) {
	now := time.Now()
	if familyID == "" {
		familyID = uuid.New().String()
	}

	accessClaims := s.newClaims(phoneNumber, accountType, TokenTypeAccess, "", now, s.accessExpiry)
	accessToken, err := s.sign(accessClaims)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return nil, nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := s.newClaims(phoneNumber, accountType, TokenTypeRefresh, familyID, now, s.refreshExpiry)
	refreshToken, err := s.sign(refreshClaims)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign refresh token")
		return nil, nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, refreshClaims, nil
}

func (s *JWTService) newClaims(phoneNumber string, accountType models.AccountType, tokenType, familyID string, now time.Time, ttl time.Duration) *Claims {
	jti := uuid.New().String()
	return &Claims{
		Phone:       phoneNumber,
		AccountType: accountType,
		Type:        tokenType,
		JTI:         jti,
		FamilyID:    familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
