package handlers

import (
	"github.com/gorilla/mux"
	"github.com/qcom/recruitauth/internal/middleware"
)

// Register mounts the OTP and session routes on router.
func (h *AuthHandlers) Register(router *mux.Router, auth *middleware.AuthMiddleware) {
	sms := router.PathPrefix("/api/sms").Subrouter()
	sms.HandleFunc("/send-otp", h.SendSMSOTP).Methods("POST", "OPTIONS")
	sms.HandleFunc("/verify-otp", h.VerifyOTP).Methods("POST", "OPTIONS")

	notifications := router.PathPrefix("/api/notifications").Subrouter()
	notifications.HandleFunc("/sms/send-otp", h.SendSMSOTP).Methods("POST", "OPTIONS")
	notifications.HandleFunc("/smart-otp", h.SendSmartOTP).Methods("POST", "OPTIONS")
	notifications.HandleFunc("/smart-otp/verify", h.VerifySmartOTP).Methods("POST", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/refresh", h.RefreshToken).Methods("POST", "OPTIONS")

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.RequireAuth)
	protected.HandleFunc("/auth/logout", h.Logout).Methods("POST", "OPTIONS")
	protected.HandleFunc("/me", h.Me).Methods("GET", "OPTIONS")
}
