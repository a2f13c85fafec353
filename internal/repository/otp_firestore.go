package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreOTP is the document layout in the otps collection. ExpireAt
// backs a Firestore TTL policy.
type firestoreOTP struct {
	Phone     string    `firestore:"phone"`
	OTP       string    `firestore:"otp"`
	Timestamp time.Time `firestore:"timestamp"`
	Attempts  int       `firestore:"attempts"`
	Expired   bool      `firestore:"expired"`
	Source    string    `firestore:"source"`
	Version   int64     `firestore:"version"`
	ExpireAt  time.Time `firestore:"expireAt"`
}

type FirestoreOTPRepository struct {
	client     *firestore.Client
	collection string
	retention  time.Duration
	logger     *logrus.Logger
}

func NewFirestoreOTPRepository(client *firestore.Client, collection string, retention time.Duration, logger *logrus.Logger) *FirestoreOTPRepository {
	return &FirestoreOTPRepository{
		client:     client,
		collection: collection,
		retention:  retention,
		logger:     logger,
	}
}

func (r *FirestoreOTPRepository) doc(phone string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(phone)
}

func (r *FirestoreOTPRepository) toDoc(record models.OTPRecord) firestoreOTP {
	return firestoreOTP{
		Phone:     record.Phone,
		OTP:       record.Code,
		Timestamp: record.IssuedAt,
		Attempts:  record.Attempts,
		Expired:   record.Expired,
		Source:    string(record.Source),
		Version:   record.Version,
		ExpireAt:  record.IssuedAt.Add(r.retention),
	}
}

func fromDoc(snap *firestore.DocumentSnapshot) (*models.OTPRecord, error) {
	var d firestoreOTP
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode OTP document: %w", err)
	}
	return &models.OTPRecord{
		Phone:    d.Phone,
		Code:     d.OTP,
		IssuedAt: d.Timestamp,
		Attempts: d.Attempts,
		Expired:  d.Expired,
		Source:   models.OTPSource(d.Source),
		Version:  d.Version,
	}, nil
}

func (r *FirestoreOTPRepository) Put(ctx context.Context, record models.OTPRecord) error {
	if _, err := r.doc(record.Phone).Set(ctx, r.toDoc(record)); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Firestore")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

func (r *FirestoreOTPRepository) Fetch(ctx context.Context, phone string) (*models.OTPRecord, error) {
	snap, err := r.doc(phone).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}
	return fromDoc(snap)
}

// Update runs fn in a Firestore transaction, which retries on contention.
func (r *FirestoreOTPRepository) Update(ctx context.Context, phone string, fn func(*models.OTPRecord) error) (*models.OTPRecord, error) {
	ref := r.doc(phone)
	var updated *models.OTPRecord

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}

		record, err := fromDoc(snap)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
		record.Version++

		if err := tx.Set(ref, r.toDoc(*record)); err != nil {
			return err
		}
		updated = record
		return nil
	}, firestore.MaxAttempts(maxUpdateRetries))
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *FirestoreOTPRepository) Delete(ctx context.Context, phone string) error {
	if _, err := r.doc(phone).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}
