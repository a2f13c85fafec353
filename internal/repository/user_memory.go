package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qcom/recruitauth/internal/models"
)

type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (r *MemoryUserRepository) GetByPhoneNumber(_ context.Context, phoneNumber string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[phoneNumber]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetOrCreate(_ context.Context, phoneNumber string, accountType models.AccountType) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	u, ok := r.users[phoneNumber]
	if !ok {
		if !accountType.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, accountType)
		}
		u = models.User{
			PhoneNumber: phoneNumber,
			AccountType: accountType,
			CreatedAt:   now,
		}
	}
	if !u.PhoneVerified {
		u.PhoneVerified = true
		u.UpdatedAt = now
	}
	r.users[phoneNumber] = u
	return &u, nil
}
