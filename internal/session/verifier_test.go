package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/songdesk/internal/models"
	"github.com/desertthunder/songdesk/internal/shared"
	tu "github.com/desertthunder/songdesk/internal/testing"
)

func TestHTTPVerifier(t *testing.T) {
	t.Run("Eligible Identity", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/auth/admin/me" {
				t.Errorf("expected path '/api/auth/admin/me', got %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
				t.Errorf("expected bearer token, got %q", auth)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"7","name":"Ana","email":"ana@example.com","role":"CONTRIBUTOR","isActive":true}`))
		}))
		defer server.Close()

		v := NewHTTPVerifier(server.URL+"/api/", "auth/admin/me", nil, 0, nil)
		got := v.Verify(context.Background(), "tok")

		if got.Kind != models.VerifyEligible {
			t.Fatalf("expected eligible, got %s", got)
		}
		if got.Identity.Email != "ana@example.com" {
			t.Errorf("unexpected identity %+v", got.Identity)
		}
	})

	t.Run("Wrapped Identity", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"id":"7","email":"ana@example.com","role":"admin","isActive":true}}`))
		}))
		defer server.Close()

		got := NewHTTPVerifier(server.URL, "/me", nil, 0, nil).Verify(context.Background(), "tok")
		if got.Kind != models.VerifyEligible || got.Identity.Role != models.RoleAdmin {
			t.Errorf("expected eligible admin, got %s", got)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want models.VerificationKind
		}{
			{"editor", `{"id":"1","email":"e@example.com","role":"EDITOR","isActive":true}`, models.VerifyRoleRejected},
			{"unknown role", `{"id":"1","email":"e@example.com","role":"VIEWER","isActive":true}`, models.VerifyRoleRejected},
			{"inactive", `{"id":"1","email":"e@example.com","role":"ADMIN","isActive":false}`, models.VerifyInactive},
			{"missing id", `{"email":"e@example.com","role":"ADMIN","isActive":true}`, models.VerifyFailed},
			{"not json", `<html>`, models.VerifyFailed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				got := NewHTTPVerifier(server.URL, "/me", nil, 0, nil).Verify(context.Background(), "tok")
				if got.Kind != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}
	})

	t.Run("Non-200 Is Failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		got := NewHTTPVerifier(server.URL, "/me", nil, 0, nil).Verify(context.Background(), "tok")
		if got.Kind != models.VerifyFailed || !errors.Is(got.Err, shared.ErrVerification) {
			t.Errorf("expected failed verification, got %s", got)
		}
	})

	t.Run("Connection Refused Is Unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		got := NewHTTPVerifier(url, "/me", nil, 0, nil).Verify(context.Background(), "tok")
		if got.Kind != models.VerifyUnreachable {
			t.Errorf("expected unreachable, got %s", got)
		}
	})

	t.Run("Timeout Is Unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer server.Close()

		got := NewHTTPVerifier(server.URL, "/me", nil, 50*time.Millisecond, nil).Verify(context.Background(), "tok")
		if got.Kind != models.VerifyUnreachable {
			t.Errorf("expected unreachable, got %s", got)
		}
	})
}

// TestDegradedOnVerificationTimeout drives the manager against a real endpoint that starts timing
// out after the first successful verification.
func TestDegradedOnVerificationTimeout(t *testing.T) {
	var slow atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.Write([]byte(`{"id":"7","name":"Ana","email":"ana@example.com","role":"ADMIN","isActive":true}`))
	}))
	defer server.Close()

	provider := tu.NewFakeProvider()
	m := NewManager(ManagerOpts{
		Provider: provider,
		Session:  newTestStore(t),
		Verifier: NewHTTPVerifier(server.URL, "/auth/admin/me", server.Client(), 50*time.Millisecond, nil),
	})
	t.Cleanup(m.Stop)

	provider.SignInAs("uid-ana", "ana@example.com")
	if snap := m.Sync(context.Background()); snap.State != StateSignedIn {
		t.Fatalf("expected SIGNED_IN, got %s (%v)", snap.State, snap.Err)
	}

	slow.Store(true)
	snap := m.Sync(context.Background())

	if snap.State != StateDegraded {
		t.Fatalf("expected DEGRADED, got %s (%v)", snap.State, snap.Err)
	}
	if snap.Identity == nil || snap.Identity.Email != "ana@example.com" {
		t.Errorf("expected identity from snapshot, got %+v", snap.Identity)
	}
	if snap.Warning == "" {
		t.Error("expected cached data warning")
	}
}
