// Package httpapi exposes the authkit engine over HTTP for the dashboard
// frontend. Session and refresh tokens travel in httpOnly cookies; request
// and response bodies are JSON.
package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teamdeck/authkit"
)

const (
	sessionCookie = "session"
	refreshCookie = "refresh_token"

	// Refresh is only reachable through the frontend middleware, which
	// stamps this header. Direct browser requests are rejected.
	refreshHeader = "x-middleware-refresh"
)

// Config carries the HTTP-layer knobs. Cookie lifetimes should match the
// engine's token TTLs so the browser drops credentials when they die
// server-side.
type Config struct {
	ProductionMode bool
	CookieDomain   string
	SessionTTL     time.Duration
	RefreshTTL     time.Duration
}

// Handler serves the authentication routes backed by an Engine.
type Handler struct {
	engine *authkit.Engine
	config Config
}

// NewHandler wires the route tree.
func NewHandler(engine *authkit.Engine, cfg Config) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Handler{engine: engine, config: cfg}
}

// Routes returns the chi router for mounting under the API root.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.clientContext)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
		r.Post("/2fa/verify", h.handleTwoFactorVerify)
		r.Post("/2fa/resend", h.handleTwoFactorResend)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
		r.Post("/password/forgot", h.handlePasswordForgot)
		r.Post("/password/reset", h.handlePasswordReset)
		r.Get("/me", h.handleMe)
	})

	return r
}

// clientContext copies the caller's network identity into the request
// context so engine audit records carry it.
func (h *Handler) clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authkit.WithClientIP(r.Context(), ip)
		ctx = authkit.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, session *authkit.Session) {
	http.SetCookie(w, h.cookie(sessionCookie, session.Token, h.config.SessionTTL))
	http.SetCookie(w, h.cookie(refreshCookie, session.RefreshToken, h.config.RefreshTTL))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(sessionCookie, "", -time.Second))
	http.SetCookie(w, h.cookie(refreshCookie, "", -time.Second))
}

func (h *Handler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.ProductionMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
	} else {
		c.MaxAge = -1
	}
	return c
}

func bearerOrCookie(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
