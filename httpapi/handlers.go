package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/teamdeck/authkit"
	"github.com/teamdeck/authkit/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type twoFactorVerifyRequest struct {
	UserID     string `json:"userId"`
	MethodID   string `json:"methodId"`
	MethodType string `json:"methodType"`
	Code       string `json:"code"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type twoFactorResponse struct {
	TwoFactorRequired bool      `json:"twoFactorRequired"`
	UserID            string    `json:"userId"`
	MethodID          string    `json:"methodId"`
	MethodType        string    `json:"methodType"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if result.TwoFactor != nil {
		writeJSON(w, http.StatusOK, twoFactorResponse{
			TwoFactorRequired: true,
			UserID:            result.TwoFactor.UserID,
			MethodID:          result.TwoFactor.MethodID,
			MethodType:        string(result.TwoFactor.MethodType),
			ExpiresAt:         result.TwoFactor.ExpiresAt,
		})
		return
	}

	h.setSessionCookies(w, result.Session)
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    result.Session.UserID,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.engine.Register(r.Context(), authkit.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusCreated, sessionResponse{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorVerifyRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.engine.ConfirmTwoFactor(r.Context(),
		req.UserID, req.MethodID, storage.MethodType(req.MethodType), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleTwoFactorResend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendTwoFactorCode(r.Context(), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh rotates the refresh token. Only the frontend middleware may
// call it; its marker header keeps a stolen cookie from being replayed
// against the endpoint directly by a plain browser navigation.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(refreshHeader) != "true" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "refresh not permitted"})
		return
	}

	token := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	}

	session, err := h.engine.RefreshSession(r.Context(), token)
	if err != nil {
		h.clearSessionCookies(w)
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookie); err == nil {
		if err := h.engine.Logout(r.Context(), c.Value); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, err)
		return
	}
	// Identical response whether or not the address is registered.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	info := h.engine.VerifySession(r.Context(), bearerOrCookie(r, sessionCookie))
	if info == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    info.UserID,
		ExpiresAt: info.ExpiresAt,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *authkit.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: vErr.Fields})
		return
	}

	switch {
	case errors.Is(err, authkit.ErrInvalidCredentials),
		errors.Is(err, authkit.ErrInvalidCode),
		errors.Is(err, authkit.ErrInvalidRefreshToken),
		errors.Is(err, authkit.ErrInvalidResetToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, authkit.ErrAccountLocked),
		errors.Is(err, authkit.ErrAccountInactive),
		errors.Is(err, authkit.ErrCodeAttemptsExceeded):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, authkit.ErrEmailInUse):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, authkit.ErrMethodNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, authkit.ErrTwoFactorUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: authkit.ErrTwoFactorUnavailable.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
