package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/recruitauth/internal/models"
)

func TestDynamoOTPRepository_PutFetchDelete(t *testing.T) {
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "recruit", 10*time.Minute, quietLogger())
	ctx := context.Background()
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := models.OTPRecord{Phone: "+201234567890", Code: "123456", IssuedAt: issued, Source: models.SourceSMS}
	if err := repo.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	item := db.items["OTP#+201234567890|METADATA"]
	if item == nil {
		t.Fatal("item not stored under OTP# key")
	}
	ttl := item["TTL"].(*types.AttributeValueMemberN).Value
	if want := strconv.FormatInt(issued.Add(10*time.Minute).Unix(), 10); ttl != want {
		t.Fatalf("TTL = %s, want %s", ttl, want)
	}

	got, err := repo.Fetch(ctx, "+201234567890")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Code != "123456" || got.Source != models.SourceSMS || !got.IssuedAt.Equal(issued) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := repo.Delete(ctx, "+201234567890"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Fetch(ctx, "+201234567890"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDynamoOTPRepository_UpdateRetriesOnConflict(t *testing.T) {
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "recruit", 10*time.Minute, quietLogger())
	ctx := context.Background()

	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.Put(ctx, models.OTPRecord{Phone: "+201234567890", Code: "123456", IssuedAt: issued})
	db.conflicts = 2

	calls := 0
	updated, err := repo.Update(ctx, "+201234567890", func(r *models.OTPRecord) error {
		calls++
		r.Attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
	want := issued.UnixNano() + 1
	if updated.Attempts != 1 || updated.Version != want {
		t.Fatalf("unexpected record: %+v", updated)
	}

	stored, _ := repo.Fetch(ctx, "+201234567890")
	if stored.Attempts != 1 || stored.Version != want {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
}

func TestDynamoOTPRepository_UpdateDoesNotRestoreReplacedCode(t *testing.T) {
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "recruit", 10*time.Minute, quietLogger())
	ctx := context.Background()
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	repo.Put(ctx, models.OTPRecord{Phone: "+201234567890", Code: "111111", IssuedAt: issued})

	calls := 0
	updated, err := repo.Update(ctx, "+201234567890", func(r *models.OTPRecord) error {
		calls++
		if calls == 1 {
			// A resend lands between the read and the conditional write.
			fresh := models.OTPRecord{Phone: "+201234567890", Code: "222222", IssuedAt: issued.Add(time.Minute)}
			if err := repo.Put(ctx, fresh); err != nil {
				return err
			}
		}
		r.Attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2", calls)
	}
	if updated.Code != "222222" || updated.Attempts != 1 {
		t.Fatalf("unexpected updated record: %+v", updated)
	}

	stored, _ := repo.Fetch(ctx, "+201234567890")
	if stored.Code != "222222" || stored.Attempts != 1 {
		t.Fatalf("replaced code written back: %+v", stored)
	}
}

func TestDynamoOTPRepository_UpdateGivesUp(t *testing.T) {
	db := newFakeDynamo()
	repo := NewDynamoOTPRepository(db, "recruit", 10*time.Minute, quietLogger())
	ctx := context.Background()

	repo.Put(ctx, models.OTPRecord{Phone: "+201234567890", Code: "123456", IssuedAt: time.Now()})
	db.conflicts = maxUpdateRetries

	_, err := repo.Update(ctx, "+201234567890", func(r *models.OTPRecord) error {
		r.Attempts++
		return nil
	})
	if !errors.Is(err, errConflict) {
		t.Fatalf("expected errConflict, got %v", err)
	}
}

func TestDynamoOTPRepository_UpdateMissing(t *testing.T) {
	repo := NewDynamoOTPRepository(newFakeDynamo(), "recruit", time.Minute, quietLogger())

	_, err := repo.Update(context.Background(), "+201234567890", func(*models.OTPRecord) error { return nil })
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	db := newFakeDynamo()
	repo := NewUserRepository(db, "recruit", quietLogger())
	ctx := context.Background()

	missing, err := repo.GetByPhoneNumber(ctx, "+201234567890")
	if err != nil || missing != nil {
		t.Fatalf("expected nil user, got %+v, %v", missing, err)
	}

	created, err := repo.GetOrCreate(ctx, "+201234567890", models.AccountAcademy)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created.PhoneVerified || created.AccountType != models.AccountAcademy {
		t.Fatalf("unexpected user: %+v", created)
	}
	if _, ok := db.items["USER!+201234567890|METADATA"]; !ok {
		t.Fatal("user not stored under USER! key")
	}

	again, err := repo.GetOrCreate(ctx, "+201234567890", models.AccountPlayer)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if again.AccountType != models.AccountAcademy || again.PhoneNumber != "+201234567890" {
		t.Fatalf("existing user overwritten: %+v", again)
	}

	if err := repo.Create(ctx, &models.User{PhoneNumber: "+201234567890", AccountType: models.AccountPlayer}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserRepository_RejectsUnknownAccountType(t *testing.T) {
	db := newFakeDynamo()
	repo := NewUserRepository(db, "recruit", quietLogger())

	_, err := repo.GetOrCreate(context.Background(), "+201234567890", models.AccountType("coach"))
	if !errors.Is(err, ErrInvalidAccountType) {
		t.Fatalf("expected ErrInvalidAccountType, got %v", err)
	}
	if len(db.items) != 0 {
		t.Fatalf("user stored despite bad account type: %v", db.items)
	}
}

func TestMemoryUserRepository_GetOrCreate(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "+201234567890", models.AccountType("")); !errors.Is(err, ErrInvalidAccountType) {
		t.Fatalf("expected ErrInvalidAccountType, got %v", err)
	}

	u, err := repo.GetOrCreate(ctx, "+201234567890", models.AccountClub)
	if err != nil || !u.PhoneVerified || u.AccountType != models.AccountClub {
		t.Fatalf("unexpected user %+v, %v", u, err)
	}
	again, err := repo.GetOrCreate(ctx, "+201234567890", models.AccountPlayer)
	if err != nil || again.AccountType != models.AccountClub {
		t.Fatalf("existing user overwritten: %+v, %v", again, err)
	}
}
