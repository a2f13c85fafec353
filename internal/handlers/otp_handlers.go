package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/qcom/recruitauth/internal/models"
	"github.com/qcom/recruitauth/internal/phone"
	"github.com/qcom/recruitauth/internal/service"
	"github.com/sirupsen/logrus"
)

// UserStore is the account lookup the handlers need.
type UserStore interface {
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error)
	GetOrCreate(ctx context.Context, phoneNumber string, accountType models.AccountType) (*models.User, error)
}

type AuthHandlers struct {
	otpService          *service.OTPService
	jwtService          *service.JWTService
	refreshTokenService *service.RefreshTokenService
	users               UserStore
	trustedProxies      []*net.IPNet
	logger              *logrus.Logger
}

func NewAuthHandlers(
	otpService *service.OTPService,
	jwtService *service.JWTService,
	refreshTokenService *service.RefreshTokenService,
	users UserStore,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		otpService:          otpService,
		jwtService:          jwtService,
		refreshTokenService: refreshTokenService,
		users:               users,
		logger:              logger,
	}
}

// WithTrustedProxies sets the peers allowed to report the client address
// through forwarding headers.
func (h *AuthHandlers) WithTrustedProxies(proxies []*net.IPNet) *AuthHandlers {
	h.trustedProxies = proxies
	return h
}

type SendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,max=32"`
}

type SendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Channel   string `json:"channel"`
	ExpiresIn int64  `json:"expiresIn"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,max=32"`
	OTP         string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Source      string `json:"source" validate:"omitempty,oneof=sms whatsapp"`
	AccountType string `json:"accountType" validate:"omitempty,oneof=player club academy agent trainer"`
}

type VerifyOTPResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	PhoneNumber   string `json:"phone_number"`
	AccountType   string `json:"account_type"`
	Name          string `json:"name,omitempty"`
	PhoneVerified bool   `json:"phone_verified"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		PhoneNumber:   u.PhoneNumber,
		AccountType:   string(u.AccountType),
		Name:          u.Name,
		PhoneVerified: u.PhoneVerified,
	}
}

// SendSMSOTP serves /api/sms/send-otp and /api/notifications/sms/send-otp.
func (h *AuthHandlers) SendSMSOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, service.ChannelSMS)
}

// SendSmartOTP serves /api/notifications/smart-otp: WhatsApp first, SMS as
// fallback. The response names the channel that delivered.
func (h *AuthHandlers) SendSmartOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, service.ChannelSmart)
}

func (h *AuthHandlers) sendOTP(w http.ResponseWriter, r *http.Request, channel service.Channel) {
	var req SendOTPRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.otpService.SendOTP(r.Context(), service.SendRequest{
		Phone:    req.PhoneNumber,
		ClientIP: clientIP(r, h.trustedProxies),
		Channel:  channel,
	})
	if err != nil {
		h.respondOTPError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SendOTPResponse{
		Success:   true,
		Message:   msgOTPSent,
		Channel:   string(result.Source),
		ExpiresIn: int64(result.ExpiresIn.Seconds()),
	})
}

// VerifyOTP serves /api/sms/verify-otp. Source in the body optionally
// restricts the check to one channel.
func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	h.verifyOTP(w, r, "")
}

// VerifySmartOTP checks codes issued by SendSmartOTP, defaulting to the
// WhatsApp channel.
func (h *AuthHandlers) VerifySmartOTP(w http.ResponseWriter, r *http.Request) {
	h.verifyOTP(w, r, models.SourceWhatsApp)
}

func (h *AuthHandlers) verifyOTP(w http.ResponseWriter, r *http.Request, defaultSource models.OTPSource) {
	var req VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}

	source := models.OTPSource(req.Source)
	if source == "" {
		source = defaultSource
	}

	result, err := h.otpService.VerifyOTP(r.Context(), service.VerifyRequest{
		Phone:    req.PhoneNumber,
		Code:     strings.TrimSpace(req.OTP),
		ClientIP: clientIP(r, h.trustedProxies),
		Source:   source,
	})
	if err != nil {
		h.respondOTPError(w, err)
		return
	}

	accountType := models.AccountType(req.AccountType)
	if accountType == "" {
		accountType = models.AccountPlayer
	}

	user, err := h.users.GetOrCreate(r.Context(), result.Phone, accountType)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get or create user")
		respondWithError(w, http.StatusInternalServerError, "USER_CREATION_FAILED", msgServerError)
		return
	}

	tokenPair, refreshClaims, err := h.jwtService.IssueTokens(user.PhoneNumber, user.AccountType, "")
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate tokens")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", msgServerError)
		return
	}

	if err := h.refreshTokenService.Store(r.Context(), refreshClaims); err != nil {
		// The access token is still usable; only refresh will fail later.
		h.logger.WithError(err).Error("Failed to store refresh token")
	}

	respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Success:      true,
		Message:      msgPhoneVerified,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresIn:    tokenPair.ExpiresIn,
		User:         toUserResponse(user),
	})
}

func (h *AuthHandlers) respondOTPError(w http.ResponseWriter, err error) {
	var rateErr *service.RateLimitError
	var attemptErr *service.AttemptError

	switch {
	case errors.As(err, &rateErr):
		retry := service.RetryAfterSeconds(rateErr.RetryAfter)
		if errors.Is(err, service.ErrOTPAlreadySent) {
			respondRateLimited(w, retry, "OTP_ALREADY_SENT", msgAlreadySent)
			return
		}
		h.logger.WithField("key", rateErr.Key).Warn("Rate limit exceeded")
		respondRateLimited(w, retry, "RATE_LIMITED", msgRateLimited)

	case errors.Is(err, phone.ErrInvalid):
		respondWithError(w, http.StatusBadRequest, "INVALID_PHONE", msgInvalidPhone)

	case errors.Is(err, service.ErrOTPNotFound):
		respondWithError(w, http.StatusNotFound, "OTP_NOT_FOUND", msgOTPNotFound)

	case errors.Is(err, service.ErrOTPExpired):
		respondWithError(w, http.StatusBadRequest, "OTP_EXPIRED", msgOTPExpired)

	case errors.Is(err, service.ErrTooManyAttempts):
		respondWithError(w, http.StatusBadRequest, "TOO_MANY_ATTEMPTS", msgTooManyAttempts)

	case errors.As(err, &attemptErr):
		remaining := attemptErr.Remaining
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:             msgInvalidOTP,
			Code:              "INVALID_OTP",
			RemainingAttempts: &remaining,
		})

	case errors.Is(err, service.ErrDeliveryFailed):
		h.logger.WithError(err).Error("Failed to deliver OTP")
		respondWithError(w, http.StatusInternalServerError, "OTP_DELIVERY_FAILED", msgDeliveryFailed)

	default:
		h.logger.WithError(err).Error("OTP request failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", msgServerError)
	}
}
