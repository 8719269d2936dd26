package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/models"
	"github.com/desertthunder/songdesk/internal/services"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/shared"
)

// SessionManager is the part of [session.Manager] the gateway drives.
type SessionManager interface {
	SessionChecker
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	Sync(ctx context.Context) session.Snapshot
}

// Backend is the part of [services.Client] the passthrough uses.
type Backend interface {
	Do(ctx context.Context, method, path string, body []byte) (*services.APIResponse, error)
}

// DegradedHeader marks passthrough responses synthesized by the recovery policy.
const DegradedHeader = "X-Songdesk-Degraded"

// Gateway serves the local session endpoints and the gated API passthrough.
type Gateway struct {
	manager SessionManager
	backend Backend
	cookie  CookieOptions
	logger  *log.Logger
	mux     *BasicRouter
}

// NewGateway creates a [Gateway] and registers its routes.
func NewGateway(manager SessionManager, backend Backend, cookie CookieOptions, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	g := &Gateway{
		manager: manager,
		backend: backend,
		cookie:  cookie,
		logger:  shared.WithLogger(logger, "component", "gateway"),
		mux:     NewBasicRouter(),
	}

	g.mux.HandleFunc(http.MethodGet, "/login", g.loginPage)
	g.mux.HandleFunc(http.MethodPost, "/login", g.login)
	g.mux.HandleFunc(http.MethodPost, "/logout", g.logout)
	g.mux.HandleFunc(http.MethodGet, "/session", g.status)

	gated := NewBasicRouter()
	gated.Use(SessionGate(manager, "/login", cookie))
	gated.HandleFunc("", "/api/", g.proxy)
	g.mux.Handle("", "/api/", gated)

	return g
}

// Routes implements [Handler].
func (g *Gateway) Routes() []string {
	return []string{"/login", "/logout", "/session", "/api/"}
}

// ServeHTTP implements [http.Handler].
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// SessionResponse is the JSON view of a session snapshot.
type SessionResponse struct {
	State    session.State    `json:"state"`
	Identity *models.Identity `json:"identity,omitempty"`
	Warning  string           `json:"warning,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func sessionResponse(s session.Snapshot) SessionResponse {
	resp := SessionResponse{State: s.State, Identity: s.Identity, Warning: s.Warning}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (g *Gateway) loginPage(w http.ResponseWriter, r *http.Request) {
	msg := "sign in with POST /login"
	if r.URL.Query().Get("expired") == "true" {
		msg = "session expired, sign in again with POST /login"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expired": r.URL.Query().Get("expired") == "true",
		"message": msg,
	})
}

// login checks credentials, verifies the identity synchronously and issues the cookie on success.
func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := g.manager.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, signInStatus(err), err.Error())
		return
	}

	snap := g.manager.Sync(r.Context())
	if !snap.State.Active() {
		ClearAuthCookie(w, g.cookie)
		writeJSON(w, snapshotStatus(snap), sessionResponse(snap))
		return
	}

	SetAuthCookie(w, g.cookie)
	writeJSON(w, http.StatusOK, sessionResponse(snap))
}

func (g *Gateway) logout(w http.ResponseWriter, r *http.Request) {
	err := g.manager.SignOut(r.Context())
	ClearAuthCookie(w, g.cookie)
	if err != nil {
		g.logger.Warn("sign out incomplete", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// status reports the session and keeps the cookie in line with it.
func (g *Gateway) status(w http.ResponseWriter, r *http.Request) {
	snap := g.manager.Snapshot()
	if snap.State.Active() {
		SetAuthCookie(w, g.cookie)
	} else if HasAuthCookie(r) {
		ClearAuthCookie(w, g.cookie)
	}
	writeJSON(w, http.StatusOK, sessionResponse(snap))
}

// proxy forwards /api/{path} to the backend through the resilient client.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet {
		data, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(data) > 0 {
			body = data
		}
	}

	if snap, ok := SnapshotFromContext(r.Context()); ok && snap.Identity != nil {
		g.logger.Debug("proxy", "method", r.Method, "path", path, "user", snap.Identity.Email)
	}

	resp, err := g.backend.Do(r.Context(), r.Method, path, body)
	switch {
	case errors.Is(err, shared.ErrSessionExpired):
		ClearAuthCookie(w, g.cookie)
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    err.Error(),
			"redirect": "/login?expired=true",
		})
		return
	case err != nil && resp == nil:
		status := http.StatusBadGateway
		if errors.Is(err, shared.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
		return
	}

	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else if resp.IsJSON {
		w.Header().Set("Content-Type", "application/json")
	}
	if resp.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func signInStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func snapshotStatus(s session.Snapshot) int {
	switch {
	case errors.Is(s.Err, shared.ErrRoleNotEligible), errors.Is(s.Err, shared.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(s.Err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
