package handlers

import (
	"errors"
	"net/http"

	"github.com/qcom/recruitauth/internal/middleware"
	"github.com/qcom/recruitauth/internal/service"
)

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally names the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RefreshToken rotates a refresh token within its family.
func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decode(w, r, &req) {
		return
	}

	claims, err := h.jwtService.VerifyToken(req.RefreshToken)
	if err != nil || claims.Type != service.TokenTypeRefresh {
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", msgInvalidToken)
		return
	}

	stored, err := h.refreshTokenService.Rotate(r.Context(), claims)
	switch {
	case errors.Is(err, service.ErrTokenRevoked):
		respondWithError(w, http.StatusUnauthorized, "TOKEN_REVOKED", msgTokenRevoked)
		return
	case errors.Is(err, service.ErrTokenNotFound):
		respondWithError(w, http.StatusUnauthorized, "INVALID_TOKEN", msgInvalidToken)
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to rotate refresh token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", msgServerError)
		return
	}

	tokenPair, refreshClaims, err := h.jwtService.IssueTokens(stored.Phone, stored.AccountType, stored.FamilyID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate new tokens")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", msgServerError)
		return
	}

	if err := h.refreshTokenService.Store(r.Context(), refreshClaims); err != nil {
		h.logger.WithError(err).Error("Failed to store new refresh token")
	}

	respondWithJSON(w, http.StatusOK, RefreshTokenResponse{
		Success:      true,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresIn:    tokenPair.ExpiresIn,
	})
}

// Logout revokes the refresh token in the body, if any. Requires auth.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	access, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", msgUnauthorized)
		return
	}

	var req LogoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	if req.RefreshToken != "" {
		refreshClaims, err := h.jwtService.VerifyToken(req.RefreshToken)
		if err == nil && refreshClaims.Type == service.TokenTypeRefresh && refreshClaims.Phone == access.Phone {
			if err := h.refreshTokenService.Revoke(r.Context(), refreshClaims.JTI); err != nil && !errors.Is(err, service.ErrTokenNotFound) {
				h.logger.WithError(err).Warn("Failed to revoke refresh token on logout")
			}
		}
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Success: true, Message: msgLoggedOut})
}

// Me returns the authenticated user's account.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", msgUnauthorized)
		return
	}

	user, err := h.users.GetByPhoneNumber(r.Context(), claims.Phone)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load user")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", msgServerError)
		return
	}
	if user == nil {
		respondWithError(w, http.StatusNotFound, "USER_NOT_FOUND", msgUserNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Success bool         `json:"success"`
		User    UserResponse `json:"user"`
	}{Success: true, User: toUserResponse(user)})
}
