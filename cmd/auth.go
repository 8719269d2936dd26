package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin checks credentials at the identity provider and verifies the account with the backend.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	password := cmd.String("password")
	if email == "" || password == "" {
		return fmt.Errorf("%w: --email and --password are required", shared.ErrMissingArgument)
	}

	s, err := r.open(stackOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Info("signing in", "email", email)
	if err := s.manager.SignIn(ctx, email, password); err != nil {
		return err
	}

	snap := s.manager.Sync(ctx)
	if !snap.State.Active() {
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("%w: session was not established", shared.ErrSignInFailed)
	}

	r.writePlain("✓ Signed in as %s (%s)\n", snap.Identity.Email, snap.Identity.Role)
	r.logger.Info("session established", "user", snap.Identity.DisplayName(), "state", snap.State)
	if snap.Warning != "" {
		r.writePlain("! %s\n", snap.Warning)
	}
	return nil
}

// AuthLogout ends the provider session and clears all local session state.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(stackOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.SignOut(ctx); err != nil {
		r.logger.Warn("provider sign out failed, local state cleared", "error", err)
	}
	return r.writePlain("✓ Signed out\n")
}

type statusView struct {
	State    session.State `json:"state"`
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Email    string        `json:"email,omitempty"`
	Role     string        `json:"role,omitempty"`
	Warning  string        `json:"warning,omitempty"`
	Error    string        `json:"error,omitempty"`
	Marker   bool          `json:"authenticated_marker"`
	Cached   bool          `json:"using_cached_identity"`
}

// AuthStatus verifies the stored principal and reports the resulting session.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(stackOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.manager.Sync(ctx)
	view := statusView{
		State:    snap.State,
		Warning:  snap.Warning,
		Marker:   s.session.IsAuthenticated(),
		Cached:   s.session.UsingCached(),
	}
	if id := snap.Identity; id != nil {
		view.ID, view.Name, view.Email, view.Role = id.ID, id.Name, id.Email, string(id.Role)
	}
	if snap.Err != nil {
		view.Error = snap.Err.Error()
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}

	r.writePlainHeader("Session")
	r.writePlain("State: %s\n", view.State)
	if view.Email != "" {
		r.writePlain("User:  %s <%s>\n", view.Name, view.Email)
		r.writePlain("Role:  %s\n", view.Role)
	}
	if view.Warning != "" {
		r.writePlain("! %s\n", view.Warning)
	}
	if view.Error != "" {
		r.writePlain("✗ %s\n", view.Error)
	}
	return nil
}

// AuthRefresh force-refreshes the token of the current session.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(stackOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := r.requireSession(ctx, s); err != nil {
		return err
	}
	if err := s.manager.Refresh(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Token refreshed at %s\n", s.session.RefreshedAt().Format("15:04:05"))
}
