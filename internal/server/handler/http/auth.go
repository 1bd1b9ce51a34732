package http

import (
	"context"
	"encoding/json"
	"net/http"
)

// AuthService defines the authentication operations required by AuthHandler.
type AuthService interface {
	// UserExists checks whether a user with the given login exists.
	UserExists(ctx context.Context, login string) (bool, error)
	// RegisterUser registers a new user with the given login.
	RegisterUser(ctx context.Context, login string) error
	// IssueToken signs a bearer token for the login.
	IssueToken(login string) (string, error)
}

// AuthHandler handles user registration and token issuance.
type AuthHandler struct {
	AuthService AuthService
}

// AuthRequest is the JSON payload for registration and login.
type AuthRequest struct {
	// Login is the account name.
	Login string `json:"login"`
}

// AuthResponse carries the issued bearer token.
type AuthResponse struct {
	Token string `json:"token"`
}

// Register handles POST /register. It creates the user if new and returns a
// bearer token usable for sync.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	exists, err := h.AuthService.UserExists(r.Context(), req.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}

	if err := h.AuthService.RegisterUser(r.Context(), req.Login); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	token, err := h.AuthService.IssueToken(req.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token})
}

// Login handles POST /login, issuing a fresh bearer token for a known user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	exists, err := h.AuthService.UserExists(r.Context(), req.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !exists {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	token, err := h.AuthService.IssueToken(req.Login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token})
}
