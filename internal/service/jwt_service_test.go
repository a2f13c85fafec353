package service

import (
	"testing"
	"time"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
)

func TestJWTService_IssueAndVerify(t *testing.T) {
	s, err := NewJWTService(&config.JWTConfig{
		SecretKey:     "0123456789abcdef0123456789abcdef",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}

	pair, refresh, err := s.IssueTokens("+201234567890", models.AccountAgent, "")
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 900 {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if refresh.FamilyID == "" || refresh.Type != TokenTypeRefresh {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}

	access, err := s.VerifyToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken access: %v", err)
	}
	if access.Type != TokenTypeAccess || access.Phone != "+201234567890" || access.AccountType != models.AccountAgent {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	parsed, err := s.VerifyToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyToken refresh: %v", err)
	}
	if parsed.JTI != refresh.JTI || parsed.FamilyID != refresh.FamilyID {
		t.Fatalf("refresh claims mismatch: %+v vs %+v", parsed, refresh)
	}

	_, next, err := s.IssueTokens("+201234567890", models.AccountAgent, refresh.FamilyID)
	if err != nil {
		t.Fatalf("IssueTokens with family: %v", err)
	}
	if next.FamilyID != refresh.FamilyID || next.JTI == refresh.JTI {
		t.Fatalf("rotation should keep family and change jti: %+v", next)
	}
}

func TestJWTService_Rejects(t *testing.T) {
	if _, err := NewJWTService(&config.JWTConfig{SecretKey: "short"}, quietLogger()); err == nil {
		t.Fatal("expected error for short secret")
	}

	a, _ := NewJWTService(&config.JWTConfig{SecretKey: "0123456789abcdef0123456789abcdef", AccessExpiry: time.Minute, RefreshExpiry: time.Hour}, quietLogger())
	b, _ := NewJWTService(&config.JWTConfig{SecretKey: "fedcba9876543210fedcba9876543210", AccessExpiry: time.Minute, RefreshExpiry: time.Hour}, quietLogger())

	pair, _, _ := a.IssueTokens("+201234567890", models.AccountPlayer, "")
	if _, err := b.VerifyToken(pair.AccessToken); err == nil {
		t.Fatal("token signed with another key accepted")
	}

	expired, _ := NewJWTService(&config.JWTConfig{SecretKey: "0123456789abcdef0123456789abcdef", AccessExpiry: -time.Minute, RefreshExpiry: time.Hour}, quietLogger())
	old, _, _ := expired.IssueTokens("+201234567890", models.AccountPlayer, "")
	if _, err := expired.VerifyToken(old.AccessToken); err == nil {
		t.Fatal("expired token accepted")
	}
}
