package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/shared"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(logger *log.Logger) Middleware {
	logger = shared.WithLogger(logger, "component", "gateway")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

// Recover turns handler panics into 500 responses.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionChecker reports the full session state behind the cookie hint.
type SessionChecker interface {
	Snapshot() session.Snapshot
}

type snapshotKey struct{}

// SnapshotFromContext returns the session snapshot attached by [SessionGate].
func SnapshotFromContext(ctx context.Context) (session.Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey{}).(session.Snapshot)
	return s, ok
}

// SessionGate lets a request through only with the isAuthenticated cookie and an active session.
//
// The cookie is checked first. A missing cookie or a stale one (session no longer active) redirects to
// the login path with expired=true; a stale cookie is also cleared.
func SessionGate(checker SessionChecker, loginPath string, opts CookieOptions) Middleware {
	if loginPath == "" {
		loginPath = "/login"
	}
	target := loginPath + "?expired=true"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasAuthCookie(r) {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			snap := checker.Snapshot()
			if !snap.State.Active() {
				ClearAuthCookie(w, opts)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), snapshotKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
