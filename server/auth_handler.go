package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/repository"
)

type contextKey int

const claimsKey contextKey = iota

// claimsFromContext returns the caller identity set by AuthMiddleware.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// LoginHandler exchanges credentials for a bearer token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		logger.Warn("Login failed", logger.String("username", req.Username))
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	case errors.Is(err, auth.ErrUserNotVerified):
		logger.Warn("Login by unverified user", logger.String("username", req.Username))
		writeMessage(w, http.StatusForbidden, "User is not verified")
		return
	case err != nil:
		logger.Error("Login error", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("Login succeeded", logger.String("username", req.Username))
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// RegisterHandler creates a user. Routed behind the ADMIN scope.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.accounts.Register(r.Context(), req.Username, req.Password, req.Role)
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		writeMessage(w, http.StatusConflict, "Username already taken")
		return
	case errors.Is(err, auth.ErrUnknownRole):
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("Register error", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeMessage(w, http.StatusOK, "User registered successfully")
}

// ChangePasswordHandler replaces the caller's password.
func (h *APIHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req changePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.accounts.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWrongPassword):
		writeMessage(w, http.StatusBadRequest, "Current password is incorrect")
		return
	case errors.Is(err, repository.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logger.Error("Change password error", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

// bearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on websocket requests, so those may pass access_token.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("access_token"); token != "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return token, true
	}
	return "", false
}

// AuthMiddleware verifies the bearer token and stores its claims in the
// request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		claims, err := h.accounts.Tokens().ParseToken(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// RequireScope rejects callers without a role (401) or whose role lacks
// scope (403). It must run inside AuthMiddleware.
func RequireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok || claims.Role == "" {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized: No role found")
			return
		}
		if !auth.HasScope(claims.Role, scope) {
			writeMessage(w, http.StatusForbidden, "Forbidden: Insufficient scope")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// withScope combines AuthMiddleware and RequireScope.
func (h *APIHandler) withScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return h.AuthMiddleware(RequireScope(scope, next))
}
