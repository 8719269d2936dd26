// package store holds the session state shared by the session manager and the dashboard client.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/models"
	"github.com/desertthunder/songdesk/internal/repositories"
	"github.com/desertthunder/songdesk/internal/shared"
)

// Durable is the key-value backend for markers that survive a restart.
//
// [repositories.MarkerRepository] implements it.
type Durable interface {
	Bool(key string) (bool, error)
	SetBool(key string, value bool) error
	JSON(key string, v any) error
	SetJSON(key string, v any) error
	Delete(keys ...string) error
}

// One-shot flags kept in the ephemeral store.
const (
	FlagAPIUnreachableShown = "apiUnreachableShown"
	FlagCachedAuthShown     = "cachedAuthShown"
	FlagForbiddenShown      = "forbiddenShown"
)

// Session is the single writer-many-reader session cell.
//
// The bearer token, its refresh timestamp and the one-shot flags are ephemeral: they live only for the
// lifetime of the process and are dropped by [Session.Teardown]. Markers go to the [Durable] backend.
type Session struct {
	durable Durable
	logger  *log.Logger
	now     func() time.Time

	mu          sync.RWMutex
	token       string
	refreshedAt time.Time
	flags       map[string]bool
	unreachable bool

	refreshMu sync.Mutex
	refresh   *refreshHandle
}

type refreshHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a [Session] over durable. A nil logger defaults to [shared.NewLogger].
func NewSession(durable Durable, logger *log.Logger) *Session {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Session{
		durable: durable,
		logger:  shared.WithLogger(logger, "component", "store"),
		now:     time.Now,
		flags:   make(map[string]bool),
	}
}

// Init starts a fresh ephemeral scope. Durable markers are left untouched.
func (s *Session) Init() {
	s.CancelRefresh()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.refreshedAt = time.Time{}
	s.flags = make(map[string]bool)
	s.unreachable = false
}

// Teardown cancels the refresh task, waits for it to exit and drops all ephemeral state. It must not
// be called from the refresh task itself.
func (s *Session) Teardown() {
	s.refreshMu.Lock()
	h := s.refresh
	s.cancelRefreshLocked()
	s.refreshMu.Unlock()

	if h != nil {
		<-h.done
	}
	s.Init()
}

// Token returns the current bearer token, or "" when none is stored.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// RefreshedAt returns when the token was last written.
func (s *Session) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// SetToken stores token. Writes are last-write-wins.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.refreshedAt = s.now()
}

// SetTokenFrom stores token unless ctx is already done, reporting whether it was written.
//
// Scheduled refreshes write through this so a task cancelled by a replacement cannot land a stale token.
func (s *Session) SetTokenFrom(ctx context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.token = token
	s.refreshedAt = s.now()
	return true
}

// ClearToken removes the bearer token.
func (s *Session) ClearToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.refreshedAt = time.Time{}
}

// Once reports true the first time flag is seen in this ephemeral scope, false afterwards.
func (s *Session) Once(flag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[flag] {
		return false
	}
	s.flags[flag] = true
	return true
}

// MarkAPIUnreachable sets the process-wide unreachable flag. It returns true only the first time in
// this scope so callers can warn once.
func (s *Session) MarkAPIUnreachable() bool {
	s.mu.Lock()
	s.unreachable = true
	s.mu.Unlock()
	return s.Once(FlagAPIUnreachableShown)
}

// ClearAPIUnreachable resets the unreachable flag after a successful response.
func (s *Session) ClearAPIUnreachable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = false
}

// APIUnreachable reports whether the last network attempt failed.
func (s *Session) APIUnreachable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreachable
}

// SetAuthenticated writes or removes the durable isAuthenticated marker.
func (s *Session) SetAuthenticated(v bool) error {
	if !v {
		return s.durable.Delete(repositories.KeyIsAuthenticated)
	}
	return s.durable.SetBool(repositories.KeyIsAuthenticated, true)
}

// IsAuthenticated reads the durable isAuthenticated marker. Read errors are logged and read as false.
func (s *Session) IsAuthenticated() bool {
	v, err := s.durable.Bool(repositories.KeyIsAuthenticated)
	if err != nil {
		s.logger.Warn("failed to read marker", "key", repositories.KeyIsAuthenticated, "error", err)
		return false
	}
	return v
}

// CacheIdentity writes the last verified identity snapshot.
func (s *Session) CacheIdentity(id *models.Identity) error {
	if id == nil {
		return fmt.Errorf("%w: nil identity", shared.ErrInvalidInput)
	}
	return s.durable.SetJSON(repositories.KeyCachedUserData, id)
}

// CachedIdentity returns the last verified identity snapshot, or [repositories.ErrNotFound].
func (s *Session) CachedIdentity() (*models.Identity, error) {
	var id models.Identity
	if err := s.durable.JSON(repositories.KeyCachedUserData, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// SetUsingCached writes or removes the durable usingCachedAuth flag.
func (s *Session) SetUsingCached(v bool) error {
	if !v {
		return s.durable.Delete(repositories.KeyUsingCachedAuth)
	}
	return s.durable.SetBool(repositories.KeyUsingCachedAuth, true)
}

// UsingCached reports whether the session is running on the cached snapshot.
func (s *Session) UsingCached() bool {
	v, err := s.durable.Bool(repositories.KeyUsingCachedAuth)
	if err != nil {
		s.logger.Warn("failed to read marker", "key", repositories.KeyUsingCachedAuth, "error", err)
		return false
	}
	return v
}

// Clear removes every piece of session state: token, flags, the refresh task and all durable markers,
// including the cached snapshot.
func (s *Session) Clear() error {
	s.Init()
	return s.durable.Delete(repositories.KeyIsAuthenticated, repositories.KeyCachedUserData, repositories.KeyUsingCachedAuth)
}

// End is [Session.Clear] for an ordinary sign-out: the cached snapshot survives so the same user can
// fall back to it on a later sign-in while the backend is down.
func (s *Session) End() error {
	s.Init()
	return s.durable.Delete(repositories.KeyIsAuthenticated, repositories.KeyUsingCachedAuth)
}

// ScheduleRefresh replaces any running refresh task with one that calls fn every interval until
// cancelled. The previous handle is cancelled before the new one starts.
func (s *Session) ScheduleRefresh(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.cancelRefreshLocked()

	ctx, cancel := context.WithCancel(ctx)
	h := &refreshHandle{cancel: cancel, done: make(chan struct{})}
	s.refresh = h

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// CancelRefresh stops the refresh task, if any.
func (s *Session) CancelRefresh() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.cancelRefreshLocked()
}

// RefreshScheduled reports whether a refresh task is installed.
func (s *Session) RefreshScheduled() bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refresh != nil
}

// cancelRefreshLocked does not wait for the task to exit: fn may itself be the caller. Only
// [Session.Teardown] waits, on done.
func (s *Session) cancelRefreshLocked() {
	if s.refresh == nil {
		return
	}
	s.refresh.cancel()
	s.refresh = nil
}

// IsNotFound reports whether err means a marker is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}
