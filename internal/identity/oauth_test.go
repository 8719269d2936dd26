package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/songdesk/internal/repositories"
	"github.com/desertthunder/songdesk/internal/shared"
)

// tokenServer is a minimal OAuth2 token endpoint supporting password and refresh grants.
type tokenServer struct {
	*httptest.Server
	refreshes atomic.Int32
	revoked   atomic.Bool  // refresh grants fail with invalid_grant
	status    atomic.Int32 // when set, every request fails with this status
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")

		if status := ts.status.Load(); status != 0 {
			w.WriteHeader(int(status))
			json.NewEncoder(w).Encode(map[string]string{"error": "slow_down"})
			return
		}

		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") != "admin@example.com" || r.Form.Get("password") != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"token_type":    "Bearer",
				"refresh_token": "refresh-1",
				"expires_in":    3600,
				"user_id":       "uid-admin",
			})
		case "refresh_token":
			if ts.revoked.Load() {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			n := ts.refreshes.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": fmt.Sprintf("access-refreshed-%d", n),
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestProvider(t *testing.T, ts *tokenServer, repo SessionRepository) *OAuthProvider {
	t.Helper()
	p, err := NewOAuthProvider(OAuthProviderOpts{
		TokenURL:   ts.URL,
		ClientID:   "songdesk-dashboard",
		Repository: repo,
		HTTPClient: ts.Client(),
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func setupSessionRepo(t *testing.T) *repositories.ProviderSessionRepository {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repositories.NewProviderSessionRepository(db)
}

func TestOAuthProvider(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Requires Token URL", func(t *testing.T) {
			_, err := NewOAuthProvider(OAuthProviderOpts{ClientID: "x"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("Requires Client ID", func(t *testing.T) {
			_, err := NewOAuthProvider(OAuthProviderOpts{TokenURL: "http://localhost/token"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("SignInWithPassword", func(t *testing.T) {
		t.Run("Success Publishes Principal", func(t *testing.T) {
			ts := newTokenServer(t)
			repo := setupSessionRepo(t)
			p := newTestProvider(t, ts, repo)

			ch, unsubscribe := p.Subscribe()
			defer unsubscribe()
			if got := receive(t, ch); got != nil {
				t.Fatalf("expected signed-out initial state, got %+v", got)
			}

			principal, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if principal.UID != "uid-admin" {
				t.Errorf("expected uid from token response, got %s", principal.UID)
			}
			if got := receive(t, ch); got != principal {
				t.Errorf("expected published principal, got %+v", got)
			}

			saved, err := repo.Current()
			if err != nil {
				t.Fatalf("expected persisted session, got %v", err)
			}
			if saved.RefreshToken != "refresh-1" {
				t.Errorf("expected refresh token to be persisted, got %s", saved.RefreshToken)
			}
		})

		t.Run("Invalid Credential", func(t *testing.T) {
			ts := newTokenServer(t)
			p := newTestProvider(t, ts, nil)

			_, err := p.SignInWithPassword(context.Background(), "admin@example.com", "wrong")
			if code := ErrorCode(err); code != CodeInvalidCredential {
				t.Errorf("expected %s, got %s (%v)", CodeInvalidCredential, code, err)
			}
			if p.CurrentPrincipal() != nil {
				t.Error("expected no principal after failed sign-in")
			}
		})

		t.Run("Rate Limited", func(t *testing.T) {
			ts := newTokenServer(t)
			ts.status.Store(http.StatusTooManyRequests)
			p := newTestProvider(t, ts, nil)

			_, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret")
			if code := ErrorCode(err); code != CodeTooManyRequests {
				t.Errorf("expected %s, got %s (%v)", CodeTooManyRequests, code, err)
			}
		})
	})

	t.Run("Restore", func(t *testing.T) {
		ts := newTokenServer(t)
		repo := setupSessionRepo(t)

		first := newTestProvider(t, ts, repo)
		if _, err := first.SignInWithPassword(context.Background(), "admin@example.com", "secret"); err != nil {
			t.Fatalf("sign-in failed: %v", err)
		}

		second := newTestProvider(t, ts, repo)
		restored := second.CurrentPrincipal()
		if restored == nil {
			t.Fatal("expected principal to be restored")
		}
		if restored.UID != "uid-admin" || restored.Email != "admin@example.com" {
			t.Errorf("unexpected restored principal: %+v", restored)
		}
	})

	t.Run("RefreshToken", func(t *testing.T) {
		t.Run("Nil Principal", func(t *testing.T) {
			p := newTestProvider(t, newTokenServer(t), nil)
			if _, err := p.RefreshToken(context.Background(), nil, true); !errors.Is(err, shared.ErrNoPrincipal) {
				t.Errorf("expected ErrNoPrincipal, got %v", err)
			}
		})

		t.Run("Valid Token Without Force", func(t *testing.T) {
			ts := newTokenServer(t)
			p := newTestProvider(t, ts, nil)
			principal, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret")
			if err != nil {
				t.Fatalf("sign-in failed: %v", err)
			}

			tok, err := p.RefreshToken(context.Background(), principal, false)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tok != "access-1" {
				t.Errorf("expected cached token, got %s", tok)
			}
			if ts.refreshes.Load() != 0 {
				t.Error("expected no refresh grant")
			}
		})

		t.Run("Forced Refresh", func(t *testing.T) {
			ts := newTokenServer(t)
			repo := setupSessionRepo(t)
			p := newTestProvider(t, ts, repo)
			principal, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret")
			if err != nil {
				t.Fatalf("sign-in failed: %v", err)
			}

			tok, err := p.RefreshToken(context.Background(), principal, true)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tok != "access-refreshed-1" {
				t.Errorf("expected refreshed token, got %s", tok)
			}
			if got := principal.Token(); got.RefreshToken != "refresh-1" {
				t.Errorf("expected refresh token to carry over, got %s", got.RefreshToken)
			}

			saved, err := repo.Current()
			if err != nil {
				t.Fatalf("expected persisted session, got %v", err)
			}
			if saved.AccessToken != "access-refreshed-1" {
				t.Errorf("expected refreshed token to be persisted, got %s", saved.AccessToken)
			}
		})

		t.Run("Revoked Refresh Token Is Permanent", func(t *testing.T) {
			ts := newTokenServer(t)
			p := newTestProvider(t, ts, nil)
			principal, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret")
			if err != nil {
				t.Fatalf("sign-in failed: %v", err)
			}

			ts.revoked.Store(true)
			_, err = p.RefreshToken(context.Background(), principal, true)
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if !IsPermanent(err) {
				t.Errorf("expected permanent failure, got %v", err)
			}
		})
	})

	t.Run("SignOut", func(t *testing.T) {
		ts := newTokenServer(t)
		repo := setupSessionRepo(t)
		p := newTestProvider(t, ts, repo)
		if _, err := p.SignInWithPassword(context.Background(), "admin@example.com", "secret"); err != nil {
			t.Fatalf("sign-in failed: %v", err)
		}

		if err := p.SignOut(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.CurrentPrincipal() != nil {
			t.Error("expected principal to be cleared")
		}
		if _, err := repo.Current(); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
