package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/identity"
	"github.com/desertthunder/songdesk/internal/models"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/desertthunder/songdesk/internal/store"
)

// DefaultRefreshInterval is how often a live session force-refreshes its token.
const DefaultRefreshInterval = 30 * time.Minute

// WarningCachedIdentity is surfaced while the session runs on the cached snapshot.
const WarningCachedIdentity = "backend unreachable, using cached user data"

// State is a session lifecycle state.
type State string

const (
	StateSignedOut State = "SIGNED_OUT"
	StateVerifying State = "VERIFYING"
	StateSignedIn  State = "SIGNED_IN"
	StateDegraded  State = "DEGRADED"
)

// Active reports whether the state grants access to the dashboard.
func (s State) Active() bool {
	return s == StateSignedIn || s == StateDegraded
}

// Snapshot is a point-in-time view of the session for observers.
type Snapshot struct {
	State     State
	Identity  *models.Identity
	Warning   string
	Err       error // why the last session ended, if it did not end by sign-out
	UpdatedAt time.Time
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	Provider        identity.Provider
	Session         *store.Session
	Verifier        Verifier
	RefreshInterval time.Duration
	Logger          *log.Logger

	// OnChange is called after every state change while the manager lock is held. It must not call
	// back into the manager's mutating methods.
	OnChange func(Snapshot)
}

// Manager owns the current identity and drives the session state machine from provider auth-state
// events.
type Manager struct {
	provider identity.Provider
	session  *store.Session
	verifier Verifier
	interval time.Duration
	logger   *log.Logger
	onChange func(Snapshot)

	// mu serializes transitions. It is held across verification I/O.
	mu sync.Mutex

	snapMu sync.RWMutex
	snap   Snapshot

	runMu       sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}

	// lifetime bounds the refresh task while the listener runs.
	lifeMu   sync.RWMutex
	lifetime context.Context
}

// NewManager creates a signed-out [Manager].
func NewManager(opts ManagerOpts) *Manager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Manager{
		provider: opts.Provider,
		session:  opts.Session,
		verifier: opts.Verifier,
		interval: opts.RefreshInterval,
		logger:   shared.WithLogger(opts.Logger, "component", "session"),
		onChange: opts.OnChange,
		snap:     Snapshot{State: StateSignedOut, UpdatedAt: time.Now()},
	}
}

// Start subscribes to the provider's auth-state stream and handles events serially until ctx is
// done or [Manager.Stop] is called. Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := m.provider.Subscribe()
	done := make(chan struct{})

	m.cancel = cancel
	m.unsubscribe = unsubscribe
	m.done = done

	m.lifeMu.Lock()
	m.lifetime = ctx
	m.lifeMu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-events:
				if !ok {
					return
				}
				m.HandleAuthState(ctx, p)
			}
		}
	}()
}

// Stop unsubscribes from the provider, waits for the listener to exit and cancels the refresh task.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		return
	}

	m.cancel()
	m.unsubscribe()
	<-m.done

	m.cancel = nil
	m.unsubscribe = nil
	m.done = nil
	m.session.CancelRefresh()

	m.lifeMu.Lock()
	m.lifetime = nil
	m.lifeMu.Unlock()
}

// scheduleRefresh installs the refresh task. It outlives ctx, which may belong to a single request:
// the task runs until the listener stops, or until the session ends when no listener is running.
func (m *Manager) scheduleRefresh(ctx context.Context) {
	m.lifeMu.RLock()
	lifetime := m.lifetime
	m.lifeMu.RUnlock()

	if lifetime == nil {
		lifetime = context.WithoutCancel(ctx)
	}
	m.session.ScheduleRefresh(lifetime, m.interval, m.refreshTick)
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.Snapshot().State
}

// Identity returns the verified or cached identity, or nil when signed out.
func (m *Manager) Identity() *models.Identity {
	return m.Snapshot().Identity
}

func (m *Manager) setSnapshot(s Snapshot) {
	s.UpdatedAt = time.Now()

	m.snapMu.Lock()
	prev := m.snap.State
	m.snap = s
	m.snapMu.Unlock()

	if prev != s.State {
		m.logger.Info("session state changed", "from", prev, "to", s.State)
	}
	if m.onChange != nil {
		m.onChange(s)
	}
}

// Sync verifies the provider's current principal once, as if it had just been reported.
func (m *Manager) Sync(ctx context.Context) Snapshot {
	m.HandleAuthState(ctx, m.provider.CurrentPrincipal())
	return m.Snapshot()
}

// HandleAuthState runs the state machine for one auth-state event. A nil principal means signed out.
//
// Every call re-verifies and replaces the refresh task, so repeated events are safe.
func (m *Manager) HandleAuthState(ctx context.Context, p *identity.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p == nil {
		m.handleSignedOut()
		return
	}

	prev := m.Snapshot()
	m.setSnapshot(Snapshot{State: StateVerifying, Identity: prev.Identity})

	logger := shared.WithLogger(m.logger, "uid", p.UID)

	token, err := m.provider.RefreshToken(ctx, p, false)
	switch {
	case err == nil:
		m.session.SetToken(token)
	case identity.IsPermanent(err):
		logger.Warn("token refresh failed permanently during verification", "error", err)
		m.reject(ctx, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err))
		return
	default:
		logger.Warn("token refresh failed, verifying with last known token", "error", err)
		token = m.session.Token()
		if token == "" {
			if t := p.Token(); t != nil {
				token = t.AccessToken
			}
		}
	}

	v := m.verifier.Verify(ctx, token)
	if ctx.Err() != nil {
		logger.Debug("verification interrupted", "error", ctx.Err())
		m.setSnapshot(prev)
		return
	}
	logger.Debug("verification result", "result", v.String())

	switch v.Kind {
	case models.VerifyEligible:
		m.signedIn(ctx, p, v.Identity)

	case models.VerifyRoleRejected:
		logger.Warn("role not allowed to hold a session", "role", v.Identity.Role)
		m.reject(ctx, fmt.Errorf("%w: %s", shared.ErrRoleNotEligible, v.Identity.Role))

	case models.VerifyInactive:
		logger.Warn("account is inactive", "email", v.Identity.Email)
		m.reject(ctx, shared.ErrAccountInactive)

	case models.VerifyUnreachable:
		m.unreachable(ctx, p, v.Err)

	default:
		logger.Error("verification failed", "error", v.Err)
		m.reject(ctx, v.Err)
	}
}

func (m *Manager) handleSignedOut() {
	m.session.CancelRefresh()
	m.session.ClearToken()

	prev := m.Snapshot()
	if prev.State == StateSignedOut {
		return
	}

	if err := m.session.SetAuthenticated(false); err != nil {
		m.logger.Warn("failed to clear marker", "error", err)
	}
	if err := m.session.SetUsingCached(false); err != nil {
		m.logger.Warn("failed to clear marker", "error", err)
	}
	m.setSnapshot(Snapshot{State: StateSignedOut, Err: prev.Err})
}

func (m *Manager) signedIn(ctx context.Context, p *identity.Principal, id *models.Identity) {
	id.ProviderUID = p.UID

	if err := m.session.CacheIdentity(id); err != nil {
		m.logger.Warn("failed to cache identity", "error", err)
	}
	if err := m.session.SetAuthenticated(true); err != nil {
		m.logger.Warn("failed to set marker", "error", err)
	}
	if err := m.session.SetUsingCached(false); err != nil {
		m.logger.Warn("failed to clear marker", "error", err)
	}

	m.scheduleRefresh(ctx)
	m.setSnapshot(Snapshot{State: StateSignedIn, Identity: id})
}

// unreachable serves the cached snapshot when it belongs to the same provider user.
//
// Without one the local session ends but the provider session is kept, so a later event or
// [Manager.Sync] can recover once the backend is back.
func (m *Manager) unreachable(ctx context.Context, p *identity.Principal, cause error) {
	cached, err := m.session.CachedIdentity()
	if err == nil && cached.ProviderUID == p.UID {
		if err := m.session.SetUsingCached(true); err != nil {
			m.logger.Warn("failed to set marker", "error", err)
		}
		if err := m.session.SetAuthenticated(true); err != nil {
			m.logger.Warn("failed to set marker", "error", err)
		}
		if m.session.Once(store.FlagCachedAuthShown) {
			m.logger.Warn(WarningCachedIdentity, "error", cause)
		}

		m.scheduleRefresh(ctx)
		m.setSnapshot(Snapshot{State: StateDegraded, Identity: cached, Warning: WarningCachedIdentity})
		return
	}

	if err != nil && !store.IsNotFound(err) {
		m.logger.Warn("failed to read cached identity", "error", err)
	}
	m.logger.Warn("backend unreachable and no cached identity for this user", "error", cause)

	m.session.CancelRefresh()
	m.session.ClearToken()
	if err := m.session.SetAuthenticated(false); err != nil {
		m.logger.Warn("failed to clear marker", "error", err)
	}
	if err := m.session.SetUsingCached(false); err != nil {
		m.logger.Warn("failed to clear marker", "error", err)
	}
	m.setSnapshot(Snapshot{State: StateSignedOut, Err: fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, cause)})
}

// reject ends the session and the provider session. The cached snapshot is dropped too, so a
// rejected account never falls back to offline access.
func (m *Manager) reject(ctx context.Context, cause error) {
	if err := m.session.Clear(); err != nil {
		m.logger.Warn("failed to clear session", "error", err)
	}
	m.setSnapshot(Snapshot{State: StateSignedOut, Err: cause})

	if err := m.provider.SignOut(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("provider sign-out failed", "error", err)
	}
}

// SignIn checks credentials at the provider. The isAuthenticated marker is set before the check and
// removed if it fails; the identity is established asynchronously when the provider reports the new
// principal.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", shared.ErrMissingArgument)
	}

	if err := m.session.SetAuthenticated(true); err != nil {
		m.logger.Warn("failed to set marker", "error", err)
	}

	if _, err := m.provider.SignInWithPassword(ctx, email, password); err != nil {
		m.logger.Warn("sign in failed", "email", email, "error", err)
		if err := m.session.SetAuthenticated(false); err != nil {
			m.logger.Warn("failed to clear marker", "error", err)
		}
		return signInError(err)
	}

	m.logger.Info("signed in", "email", email)
	return nil
}

func signInError(err error) error {
	switch identity.ErrorCode(err) {
	case identity.CodeInvalidCredential:
		return shared.ErrInvalidCredential
	case identity.CodeTooManyRequests:
		return shared.ErrTooManyAttempts
	default:
		return fmt.Errorf("%w: %w", shared.ErrSignInFailed, err)
	}
}

// SignOut ends the provider session and clears the local session. The cached snapshot is kept for a
// later sign-in by the same user; expiry and rejection drop it.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.endSession(ctx, nil)
}

func (m *Manager) endSession(ctx context.Context, cause error) error {
	providerErr := m.provider.SignOut(context.WithoutCancel(ctx))
	if providerErr != nil {
		m.logger.Warn("provider sign-out failed", "error", providerErr)
	}

	var clearErr error
	if cause == nil {
		clearErr = m.session.End()
	} else {
		clearErr = m.session.Clear()
	}
	m.setSnapshot(Snapshot{State: StateSignedOut, Err: cause})

	if err := errors.Join(providerErr, clearErr); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Refresh force-refreshes the token now. Permanent failures end the session.
func (m *Manager) Refresh(ctx context.Context) error {
	p := m.provider.CurrentPrincipal()
	if p == nil {
		m.expire(ctx, shared.ErrNoPrincipal)
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoPrincipal)
	}

	token, err := m.provider.RefreshToken(ctx, p, true)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if identity.IsPermanent(err) {
			m.expire(ctx, err)
		}
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	if !m.session.SetTokenFrom(ctx, token) {
		return ctx.Err()
	}
	m.logger.Debug("token refreshed", "uid", p.UID)
	return nil
}

func (m *Manager) refreshTick(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("scheduled token refresh failed", "error", err)
	}
}

// expire ends an active session after an unrecoverable refresh failure.
func (m *Manager) expire(ctx context.Context, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Snapshot().State.Active() {
		m.session.CancelRefresh()
		return
	}
	m.logger.Warn("session expired", "error", cause)
	if err := m.endSession(ctx, fmt.Errorf("%w: %w", shared.ErrSessionExpired, cause)); err != nil {
		m.logger.Warn("failed to end session", "error", err)
	}
}
