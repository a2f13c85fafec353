package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/qcom/recruitauth/internal/service"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newJWT(t *testing.T) *service.JWTService {
	t.Helper()
	s, err := service.NewJWTService(&config.JWTConfig{
		SecretKey:     "middleware-test-secret-key-0123456789",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
	}, quietLogger())
	if err != nil {
		t.Fatalf("NewJWTService: %v", err)
	}
	return s
}

func TestRequireAuth(t *testing.T) {
	jwtService := newJWT(t)
	pair, _, err := jwtService.IssueTokens("+201234567890", models.AccountPlayer, "")
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}

	var seen *service.Claims
	handler := NewAuthMiddleware(jwtService, quietLogger()).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"access token", "Bearer " + pair.AccessToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && (seen == nil || seen.Phone != "+201234567890") {
				t.Fatalf("claims not propagated: %+v", seen)
			}
		})
	}
}

func TestCORSAndLogging(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CORS("https://app.example.com"))
	router.Use(Logging(quietLogger()))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("GET", "OPTIONS")

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("status %d request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id not generated")
	}
}
