package repository

import (
	"context"
	"sync"

	"github.com/qcom/recruitauth/internal/models"
)

// MemoryOTPRepository keeps OTP records in process memory. Used for local
// development and tests.
type MemoryOTPRepository struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{records: make(map[string]models.OTPRecord)}
}

func (r *MemoryOTPRepository) Put(_ context.Context, record models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.records[record.Phone]; ok {
		record.Version = prev.Version + 1
	}
	r.records[record.Phone] = record
	return nil
}

func (r *MemoryOTPRepository) Fetch(_ context.Context, phone string) (*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[phone]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &record, nil
}

func (r *MemoryOTPRepository) Update(_ context.Context, phone string, fn func(*models.OTPRecord) error) (*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[phone]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(&record); err != nil {
		return nil, err
	}
	record.Version++
	r.records[phone] = record

	out := record
	return &out, nil
}

func (r *MemoryOTPRepository) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	delete(r.records, phone)
	r.mu.Unlock()
	return nil
}
