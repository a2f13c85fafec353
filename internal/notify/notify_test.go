package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMessageText(t *testing.T) {
	text := Message{Phone: "+201234567890", Code: "482913", TTL: 5 * time.Minute}.Text()
	if !strings.Contains(text, "482913") || !strings.Contains(text, "5") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestBeonSMS_SendOTP(t *testing.T) {
	var gotPath, gotToken string
	var gotBody beonSMSRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("beon-token")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":200,"message":"ok"}`))
	}))
	defer srv.Close()

	sms := NewBeonSMS(&config.SMSConfig{BaseURL: srv.URL + "/", Token: "tok", Sender: "ElSahm", Timeout: time.Second}, quietLogger())
	source, err := sms.SendOTP(context.Background(), Message{Phone: "+201234567890", Code: "123456", TTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if source != models.SourceSMS {
		t.Fatalf("source = %q", source)
	}
	if gotPath != "/messages/sms/bulk" || gotToken != "tok" {
		t.Fatalf("path %q token %q", gotPath, gotToken)
	}
	if len(gotBody.PhoneNumbers) != 1 || gotBody.PhoneNumbers[0] != "+201234567890" || gotBody.Name != "ElSahm" {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
	if !strings.Contains(gotBody.Message, "123456") {
		t.Fatalf("message %q missing code", gotBody.Message)
	}
}

func TestBeonSMS_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad token"}`))
	}))
	defer srv.Close()

	sms := NewBeonSMS(&config.SMSConfig{BaseURL: srv.URL, Timeout: time.Second}, quietLogger())
	_, err := sms.SendOTP(context.Background(), Message{Phone: "+201234567890", Code: "123456"})

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || !strings.Contains(se.Body, "bad token") {
		t.Fatalf("expected StatusError 401, got %v", err)
	}
}

func TestWhatsAppOTP_SendOTP(t *testing.T) {
	var gotAuth string
	var gotBody whatsAppRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/otp/send" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	wa := NewWhatsAppOTP(&config.WhatsAppConfig{BaseURL: srv.URL, Token: "secret", Timeout: time.Second}, quietLogger())
	source, err := wa.SendOTP(context.Background(), Message{Phone: "+201234567890", Code: "654321"})
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if source != models.SourceWhatsApp || gotAuth != "Bearer secret" {
		t.Fatalf("source %q auth %q", source, gotAuth)
	}
	if gotBody.PhoneNumber != "201234567890" || gotBody.OTP != "654321" || gotBody.Lang != "ar" {
		t.Fatalf("unexpected payload %+v", gotBody)
	}
}

func TestWhatsAppOTP_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"not on whatsapp"}`))
	}))
	defer srv.Close()

	wa := NewWhatsAppOTP(&config.WhatsAppConfig{BaseURL: srv.URL, Timeout: time.Second}, quietLogger())
	if _, err := wa.SendOTP(context.Background(), Message{Phone: "+201234567890", Code: "654321"}); err == nil {
		t.Fatal("expected rejection error")
	}

	unconfigured := NewWhatsAppOTP(&config.WhatsAppConfig{}, quietLogger())
	if _, err := unconfigured.SendOTP(context.Background(), Message{Phone: "+201234567890"}); err == nil {
		t.Fatal("expected error without base url")
	}
}

type stubSender struct {
	source models.OTPSource
	err    error
	calls  int
}

func (s *stubSender) SendOTP(context.Context, Message) (models.OTPSource, error) {
	s.calls++
	return s.source, s.err
}

func TestFallback(t *testing.T) {
	errWA := errors.New("whatsapp down")
	wa := &stubSender{err: errWA}
	sms := &stubSender{source: models.SourceSMS}

	source, err := NewFallback(quietLogger(), wa, sms).SendOTP(context.Background(), Message{Phone: "+201234567890"})
	if err != nil || source != models.SourceSMS {
		t.Fatalf("got %q, %v", source, err)
	}
	if wa.calls != 1 || sms.calls != 1 {
		t.Fatalf("calls wa=%d sms=%d", wa.calls, sms.calls)
	}

	errSMS := errors.New("sms down")
	sms.err = errSMS
	_, err = NewFallback(quietLogger(), wa, sms).SendOTP(context.Background(), Message{Phone: "+201234567890"})
	if !errors.Is(err, errWA) || !errors.Is(err, errSMS) {
		t.Fatalf("expected joined errors, got %v", err)
	}

	first := &stubSender{source: models.SourceWhatsApp}
	second := &stubSender{source: models.SourceSMS}
	source, _ = NewFallback(quietLogger(), first, second).SendOTP(context.Background(), Message{})
	if source != models.SourceWhatsApp || second.calls != 0 {
		t.Fatalf("fallback used despite success: %q, second calls %d", source, second.calls)
	}
}
