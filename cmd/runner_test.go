package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/songdesk/internal/shared"
	tu "github.com/desertthunder/songdesk/internal/testing"
	"github.com/urfave/cli/v3"
)

var testRoles = map[string]string{
	"admin@example.com":  "ADMIN",
	"editor@example.com": "EDITOR",
}

// newTokenServer serves the password and refresh grants for the accounts in testRoles.
func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var email string
		switch r.PostForm.Get("grant_type") {
		case "password":
			email = r.PostForm.Get("username")
			if _, ok := testRoles[email]; !ok || r.PostForm.Get("password") != "secret" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "refresh_token":
			email = strings.TrimPrefix(r.PostForm.Get("refresh_token"), "refresh-")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + email,
			"refresh_token": "refresh-" + email,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"user_id":       "uid-" + email,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newBackend serves the verification endpoint and the dashboard sections.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	caller := func(r *http.Request) (string, bool) {
		email := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer access-")
		_, ok := testRoles[email]
		return email, ok
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/admin/me", func(w http.ResponseWriter, r *http.Request) {
		email, ok := caller(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "7", "name": "Test User", "email": email, "role": testRoles[email], "isActive": true,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := caller(r); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/songs" && r.Method == http.MethodGet:
			w.Write([]byte(`[{"id":"s1","title":"Blue"}]`))
		case r.URL.Path == "/songs" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"s2","title":"Red"}`))
		default:
			w.Write([]byte(`[]`))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	config := shared.DefaultConfig()
	config.API.BaseURL = newBackend(t).URL
	config.Auth.TokenURL = newTokenServer(t).URL
	config.Database.Path = filepath.Join(t.TempDir(), "songdesk.db")

	output := &bytes.Buffer{}
	return NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
	}), output
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "songdesk", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"songdesk"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "api", "overview", "serve", "tui"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command at index %d: expected %s", i, want[i])
			}
		}
	})

	t.Run("open rejects incomplete config", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Auth.TokenURL = ""
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

		if _, err := runner.open(stackOpts{}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("creates config and database", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

		if err := run(runner, "setup", "--config", "config.toml"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
		tu.AssertFileExists(t, filepath.Join(dir, "songdesk.db"))
		if !strings.Contains(output.String(), "Setup complete") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("login status logout", func(t *testing.T) {
		runner, output := newTestRunner(t)

		if err := run(runner, "auth", "login", "-e", "admin@example.com", "-p", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(output.String(), "Signed in as admin@example.com (ADMIN)") {
			t.Errorf("unexpected login output %q", output.String())
		}

		output.Reset()
		if err := run(runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), `"state": "SIGNED_IN"`) {
			t.Errorf("expected restored session, got %s", output.String())
		}

		output.Reset()
		if err := run(runner, "auth", "refresh"); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if !strings.Contains(output.String(), "Token refreshed") {
			t.Errorf("unexpected refresh output %q", output.String())
		}

		if err := run(runner, "auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}

		output.Reset()
		if err := run(runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), `"state": "SIGNED_OUT"`) {
			t.Errorf("expected signed out, got %s", output.String())
		}
		if !strings.Contains(output.String(), `"authenticated_marker": false`) {
			t.Errorf("expected marker cleared, got %s", output.String())
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := run(runner, "auth", "login", "-e", "admin@example.com", "-p", "wrong")
		if !errors.Is(err, shared.ErrInvalidCredential) {
			t.Errorf("expected ErrInvalidCredential, got %v", err)
		}
	})

	t.Run("editor is rejected", func(t *testing.T) {
		runner, output := newTestRunner(t)

		err := run(runner, "auth", "login", "-e", "editor@example.com", "-p", "secret")
		if !errors.Is(err, shared.ErrRoleNotEligible) {
			t.Errorf("expected ErrRoleNotEligible, got %v", err)
		}

		output.Reset()
		if err := run(runner, "auth", "status", "--json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), `"state": "SIGNED_OUT"`) {
			t.Errorf("expected provider session to be gone, got %s", output.String())
		}
	})

	t.Run("login requires credentials", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		if err := run(runner, "auth", "login"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestAPICommands(t *testing.T) {
	runner, output := newTestRunner(t)

	t.Run("requires session", func(t *testing.T) {
		if err := run(runner, "api", "get", "/songs"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	if err := run(runner, "auth", "login", "-e", "admin@example.com", "-p", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	t.Run("get as json", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "api", "get", "/songs"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !strings.Contains(output.String(), `"title": "Blue"`) {
			t.Errorf("unexpected output %s", output.String())
		}
	})

	t.Run("get as csv", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "api", "get", "--format", "csv", "/songs"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !strings.Contains(output.String(), "s1,Blue") {
			t.Errorf("unexpected output %s", output.String())
		}
	})

	t.Run("post", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "api", "post", "-d", `{"title":"Red"}`, "/songs"); err != nil {
			t.Fatalf("post failed: %v", err)
		}
		if !strings.Contains(output.String(), `"id": "s2"`) {
			t.Errorf("unexpected output %s", output.String())
		}
	})

	t.Run("post rejects invalid JSON", func(t *testing.T) {
		if err := run(runner, "api", "post", "-d", `{`, "/songs"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestOverviewCommand(t *testing.T) {
	runner, output := newTestRunner(t)
	if err := run(runner, "auth", "login", "-e", "admin@example.com", "-p", "secret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	t.Run("summary", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "overview", "--section", "songs", "--section", "ratings"); err != nil {
			t.Fatalf("overview failed: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "Songs") || !strings.Contains(out, "1 records") {
			t.Errorf("unexpected output %s", out)
		}
		if !strings.Contains(out, "Ratings") {
			t.Errorf("expected ratings section, got %s", out)
		}
	})

	t.Run("export", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "export")
		if err := run(runner, "overview", "--section", "songs", "--output", dir, "--format", "csv"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		tu.AssertDirExists(t, dir)
		tu.AssertFileExists(t, filepath.Join(dir, "songs.csv"))
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})

	t.Run("unknown section", func(t *testing.T) {
		if err := run(runner, "overview", "--section", "billing"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
