package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenRevoked  = errors.New("refresh token has been revoked")
)

// TokenRepository persists issued refresh tokens and their revocation.
type TokenRepository interface {
	Save(ctx context.Context, token models.RefreshTokenData) error
	Get(ctx context.Context, jti string) (*models.RefreshTokenData, error)
	// MarkRevoked revokes token and reports whether this call did so. It
	// returns false when the token was already revoked.
	MarkRevoked(ctx context.Context, token models.RefreshTokenData) (bool, error)
}

type RefreshTokenService struct {
	repo   TokenRepository
	logger *logrus.Logger
}

func NewRefreshTokenService(repo TokenRepository, logger *logrus.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		repo:   repo,
		logger: logger,
	}
}

func (s *RefreshTokenService) Store(ctx context.Context, claims *Claims) error {
	token := models.RefreshTokenData{
		JTI:         claims.JTI,
		Phone:       claims.Phone,
		AccountType: claims.AccountType,
		FamilyID:    claims.FamilyID,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   claims.ExpiresAt.Time,
	}

	if err := s.repo.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenService) Get(ctx context.Context, jti string) (*models.RefreshTokenData, error) {
	token, err := s.repo.Get(ctx, jti)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	return token, err
}

func (s *RefreshTokenService) Revoke(ctx context.Context, jti string) error {
	token, err := s.Get(ctx, jti)
	if err != nil {
		return err
	}
	_, err = s.repo.MarkRevoked(ctx, *token)
	return err
}

// Rotate revokes the presented refresh token and returns its stored data so
// the caller can issue a successor in the same family. Only one caller can
// rotate a given token; everyone else gets ErrTokenRevoked.
func (s *RefreshTokenService) Rotate(ctx context.Context, claims *Claims) (*models.RefreshTokenData, error) {
	token, err := s.Get(ctx, claims.JTI)
	if err != nil {
		return nil, err
	}

	revoked, err := s.repo.MarkRevoked(ctx, *token)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !revoked {
		s.logger.WithFields(logrus.Fields{
			"jti":       claims.JTI,
			"family_id": claims.FamilyID,
		}).Warn("Revoked refresh token presented")
		return nil, ErrTokenRevoked
	}
	return token, nil
}
