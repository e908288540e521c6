// Package handler contains HTTP handlers for the Tickwise API.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/domain"
	"github.com/tickwise/tickwise/internal/service"
)

// AuthHandler handles account and subscription HTTP requests.
//
// Routes handled:
//   - POST /api/auth/register -> Register
//   - POST /api/auth/login    -> Login
//   - GET  /api/auth/me       -> Me
//   - POST /api/auth/upgrade  -> Upgrade
type AuthHandler struct {
	users  service.UserService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// RegisterRoutes registers auth routes on the provided mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, public, protected func(http.Handler) http.Handler) {
	mux.Handle("POST /api/auth/register", public(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", public(http.HandlerFunc(h.Login)))
	mux.Handle("GET /api/auth/me", protected(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/auth/upgrade", protected(http.HandlerFunc(h.Upgrade)))
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type upgradeRequest struct {
	Tier string `json:"tier"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriptionResponse struct {
	ID        uuid.UUID  `json:"id"`
	Tier      string     `json:"tier"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type loginResponse struct {
	AccessToken  string                `json:"access_token"`
	TokenType    string                `json:"token_type"`
	User         userResponse          `json:"user"`
	Subscription *subscriptionResponse `json:"subscription"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func toSubscriptionResponse(s *domain.Subscription) *subscriptionResponse {
	if s == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:        s.ID,
		Tier:      string(s.Tier),
		IsActive:  s.IsActive,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}

// Register creates a new account with a free-tier subscription and returns a
// signed access token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.users.Register(r.Context(), domain.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, loginResponse{
		AccessToken:  result.Token,
		TokenType:    "bearer",
		User:         toUserResponse(result.User),
		Subscription: toSubscriptionResponse(result.Subscription),
	})
}

// Login authenticates a user and returns a signed access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.Token,
		TokenType:    "bearer",
		User:         toUserResponse(result.User),
		Subscription: toSubscriptionResponse(result.Subscription),
	})
}

// Me returns the authenticated user and their current subscription.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	sub := auth.GetSubscription(r.Context())

	resp := struct {
		userResponse
		Subscription *subscriptionResponse `json:"subscription"`
	}{
		userResponse: toUserResponse(user),
		Subscription: toSubscriptionResponse(sub),
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Upgrade moves the caller's subscription to a strictly higher tier.
func (h *AuthHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	var req upgradeRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	target := domain.SubscriptionTier(req.Tier)
	if !domain.IsValidTier(target) {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.upgrade", "Invalid subscription tier"))
		return
	}

	sub, err := h.users.UpgradeTier(r.Context(), user.ID, target)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
