package notify

import (
	"context"
	"net/http"
	"strings"

	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/sirupsen/logrus"
)

// BeonSMS sends codes through the BeOn SMS gateway.
type BeonSMS struct {
	baseURL string
	token   string
	sender  string
	client  *http.Client
	logger  *logrus.Logger
}

func NewBeonSMS(cfg *config.SMSConfig, logger *logrus.Logger) *BeonSMS {
	return &BeonSMS{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		sender:  cfg.Sender,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type beonSMSRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
	Name         string   `json:"name"`
	Message      string   `json:"message"`
}

type beonSMSResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (b *BeonSMS) SendOTP(ctx context.Context, msg Message) (models.OTPSource, error) {
	var out beonSMSResponse
	err := postJSON(ctx, b.client, "beon sms", b.baseURL+"/messages/sms/bulk",
		map[string]string{"beon-token": b.token},
		beonSMSRequest{
			PhoneNumbers: []string{msg.Phone},
			Name:         b.sender,
			Message:      msg.Text(),
		}, &out)
	if err != nil {
		b.logger.WithError(err).WithField("phone", msg.Phone).Error("Failed to send OTP SMS")
		return "", err
	}

	b.logger.WithField("phone", msg.Phone).Info("OTP SMS sent")
	return models.SourceSMS, nil
}
