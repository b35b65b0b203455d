package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/service"
	"agroguardian-api/internal/util"
)

// AuthHandler exposes the phone-OTP login flow. The response shapes are
// the mobile client's contract and change only with an app release.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type sendOTPResponse struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message"`
	Channels *service.DispatchResult `json:"channels"`
}

type verifyOTPRequest struct {
	Phone      string `json:"phone"`
	OTP        string `json:"otp"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Location   string `json:"location,omitempty"`
	Language   string `json:"language,omitempty"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

type verifyOTPResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	User      *model.PublicProfile `json:"user"`
	Token     string               `json:"token"`
	IsNewUser bool                 `json:"isNewUser"`
}

type profileResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	User    *model.PublicProfile `json:"user"`
}

// RegisterRoutes registers the auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.authService))
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Post("/logout", h.Logout)
		})
	})
}

// SendOTP issues and dispatches a one-time code.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	channels, err := h.authService.RequestCode(r.Context(), req.Phone, req.Email)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, sendOTPResponse{
		Success:  true,
		Message:  "OTP sent successfully",
		Channels: channels,
	})

	h.logger.Info("OTP requested via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SendOTP"),
	)
}

// VerifyOTP checks the code and completes the login.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile := &service.ProfileUpdateRequest{
		Name:     req.Name,
		Email:    req.Email,
		Location: req.Location,
		Language: req.Language,
	}
	result, err := h.authService.VerifyCode(r.Context(), req.Phone, req.OTP, profile, req.DeviceInfo)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, verifyOTPResponse{
		Success:   true,
		Message:   "OTP verified successfully",
		User:      result.User.Public(),
		Token:     result.Token,
		IsNewUser: result.IsNewUser,
	})

	h.logger.Info("OTP verified via HTTP",
		util.String("user_id", result.User.UserID),
		util.Bool("is_new_user", result.IsNewUser),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyOTP"),
	)
}

// GetProfile returns the authenticated user's account.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	respondWithJSON(w, http.StatusOK, profileResponse{
		Success: true,
		User:    user.Public(),
	})
}

// UpdateProfile applies profile changes for the authenticated user.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	var req service.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.authService.UpdateProfile(r.Context(), user.UserID, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, profileResponse{
		Success: true,
		Message: "Profile updated successfully",
		User:    updated.Public(),
	})
}

// Logout deletes the session behind the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	tokenString, tokenOK := TokenFromContext(r.Context())
	if !ok || !tokenOK {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	if err := h.authService.Logout(r.Context(), user.UserID, tokenString); err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Logged out successfully",
	})
}
