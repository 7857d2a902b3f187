package handler

import (
	"net/http"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/service"
)

// AuthHandler serves registration, login and presence.
type AuthHandler struct {
	accounts *service.AccountService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Message string           `json:"message"`
	User    model.PublicUser `json:"user"`
	Token   string           `json:"token"`
}

// HandleRegister handles POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrMissingFields.Error())
		return
	}

	sess, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Message: "User registered successfully",
		User:    sess.User,
		Token:   sess.Token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login. The identifier is the email, or the
// username when no email is sent.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}

	sess, err := h.accounts.Login(r.Context(), identifier, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Message: "Login successful",
		User:    sess.User,
		Token:   sess.Token,
	})
}

type userIDRequest struct {
	UserID model.ID `json:"userId"`
}

// HandleLogout handles POST /auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrUserIDRequired.Error())
		return
	}

	if _, err := h.accounts.Logout(r.Context(), req.UserID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleOnline handles GET /auth/online.
func (h *AuthHandler) HandleOnline(w http.ResponseWriter, r *http.Request) {
	online, err := h.accounts.Online(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": online})
}

// HandleHeartbeat handles POST /auth/heartbeat.
func (h *AuthHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	// The body is optional when the token identifies the caller.
	var req userIDRequest
	_ = decodeJSON(r, &req)

	userID := actor(r, req.UserID)
	if userID.IsZero() {
		writeError(w, http.StatusBadRequest, service.ErrUserIDRequired.Error())
		return
	}
	if err := h.accounts.Heartbeat(r.Context(), userID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Heartbeat received"})
}
