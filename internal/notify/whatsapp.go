package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

// WhatsAppOTP sends codes through a WhatsApp smart-OTP gateway that renders
// its own approved template around the code.
type WhatsAppOTP struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logrus.Logger
}

func NewWhatsAppOTP(cfg *config.WhatsAppConfig, logger *logrus.Logger) *WhatsAppOTP {
	return &WhatsAppOTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type whatsAppRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
	Lang        string `json:"lang"`
}

type whatsAppResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (w *WhatsAppOTP) SendOTP(ctx context.Context, msg Message) (models.OTPSource, error) {
	if w.baseURL == "" {
		return "", fmt.Errorf("whatsapp otp gateway not configured")
	}

	out := whatsAppResponse{Success: true}
	err := postJSON(ctx, w.client, "whatsapp otp", w.baseURL+"/otp/send",
		map[string]string{"Authorization": "Bearer " + w.token},
		whatsAppRequest{
			PhoneNumber: strings.TrimPrefix(msg.Phone, "+"),
			OTP:         msg.Code,
			Lang:        "ar",
		}, &out)
	if err != nil {
		w.logger.WithError(err).WithField("phone", msg.Phone).Error("Failed to send WhatsApp OTP")
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("whatsapp otp rejected: %s", out.Message)
	}

	w.logger.WithField("phone", msg.Phone).Info("WhatsApp OTP sent")
	return models.SourceWhatsApp, nil
}
