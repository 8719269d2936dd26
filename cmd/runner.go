package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/identity"
	"github.com/desertthunder/songdesk/internal/repositories"
	"github.com/desertthunder/songdesk/internal/services"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/desertthunder/songdesk/internal/store"
	"github.com/desertthunder/songdesk/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by subsequently opened stacks.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, apiCommand, overviewCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// stack is the session core wired from config: database, store, provider, manager, client and engine.
type stack struct {
	db       *sql.DB
	session  *store.Session
	provider *identity.OAuthProvider
	manager  *session.Manager
	client   *services.Client
	engine   *tasks.OverviewEngine
}

type stackOpts struct {
	onChange  func(session.Snapshot)
	onExpired services.Navigator
}

// open builds the [stack]. The caller must Close it.
func (r *Runner) open(opts stackOpts) (*stack, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sess := store.NewSession(repositories.NewMarkerRepository(db), r.logger)
	sess.Init()

	provider, err := identity.NewOAuthProvider(identity.OAuthProviderOpts{
		TokenURL:     r.config.Auth.TokenURL,
		ClientID:     r.config.Auth.ClientID,
		ClientSecret: r.config.Auth.ClientSecret,
		Scopes:       r.config.Auth.Scopes,
		Repository:   repositories.NewProviderSessionRepository(db),
		HTTPClient:   r.httpClient,
		Logger:       r.logger,
	})
	if err != nil {
		sess.Teardown()
		db.Close()
		return nil, err
	}

	if opts.onExpired == nil {
		opts.onExpired = func(loginURL string) {
			r.writePlain("Session expired, sign in again: songdesk auth login (%s)\n", loginURL)
		}
	}

	client := services.NewClient(services.ClientOpts{
		BaseURL:    r.config.API.BaseURL,
		HTTPClient: r.httpClient,
		Timeout:    r.config.API.Timeout(),
		RateLimit:  r.config.API.RateLimit,
		LoginURL:   r.config.API.LoginURL,
		Provider:   provider,
		Session:    sess,
		Logger:     r.logger,
		OnExpired:  opts.onExpired,
	})

	verifier := session.NewHTTPVerifier(r.config.API.BaseURL, r.config.Auth.VerifyPath, r.httpClient, r.config.API.Timeout(), r.logger)

	manager := session.NewManager(session.ManagerOpts{
		Provider:        provider,
		Session:         sess,
		Verifier:        verifier,
		RefreshInterval: r.config.Auth.RefreshInterval(),
		Logger:          r.logger,
		OnChange:        opts.onChange,
	})

	return &stack{
		db:       db,
		session:  sess,
		provider: provider,
		manager:  manager,
		client:   client,
		engine:   tasks.NewOverviewEngine(client, r.logger),
	}, nil
}

// Close stops the manager and releases the database.
func (s *stack) Close() {
	s.manager.Stop()
	s.session.Teardown()
	s.db.Close()
}

// requireSession verifies the stored principal and fails unless the session is usable.
func (r *Runner) requireSession(ctx context.Context, s *stack) (session.Snapshot, error) {
	snap := s.manager.Sync(ctx)
	if snap.State.Active() {
		if snap.Warning != "" {
			r.logger.Warn(snap.Warning)
		}
		return snap, nil
	}
	if snap.Err != nil {
		return snap, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, snap.Err)
	}
	return snap, fmt.Errorf("%w: run 'songdesk auth login'", shared.ErrNotAuthenticated)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
