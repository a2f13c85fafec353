package repository

import (
	"context"
	"sync"
	"time"

	"github.com/qcom/recruitauth/internal/models"
)

type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshTokenData
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[string]models.RefreshTokenData)}
}

func (r *MemoryTokenRepository) Save(_ context.Context, token models.RefreshTokenData) error {
	r.mu.Lock()
	r.tokens[token.JTI] = token
	r.mu.Unlock()
	return nil
}

func (r *MemoryTokenRepository) Get(_ context.Context, jti string) (*models.RefreshTokenData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[jti]
	if !ok || time.Now().After(token.ExpiresAt) {
		return nil, models.ErrNotFound
	}
	return &token, nil
}

func (r *MemoryTokenRepository) MarkRevoked(_ context.Context, token models.RefreshTokenData) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens[token.JTI].Revoked {
		return false, nil
	}
	token.Revoked = true
	r.tokens[token.JTI] = token
	return true, nil
}
