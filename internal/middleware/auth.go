// Package middleware contains HTTP middleware for the Tickwise API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/handler"
	"github.com/tickwise/tickwise/internal/service"
)

// AuthMiddleware authenticates requests carrying a Bearer token.
type AuthMiddleware struct {
	users  service.UserService
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(users service.UserService, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// WithUser attempts to authenticate the request from the Authorization
// header. On success the user and their subscription are stored in the
// request context; on any failure the request continues unauthenticated.
// Routes that need a caller must also wrap RequireUser.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			m.logger.Debug("token rejected", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		user, sub, err := m.users.GetWithSubscription(r.Context(), claims.UserID)
		if err != nil {
			m.logger.Debug("token user lookup failed", "user_id", claims.UserID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.WithIdentity(r.Context(), user, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects unauthenticated requests with a 401 JSON error.
// Must run after WithUser in the chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Stack composes middleware so the first argument is the outermost wrapper.
//
//	stack := Stack(loggingMw.Handler, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/auth/me", stack(meHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
