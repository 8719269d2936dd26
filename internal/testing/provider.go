package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/songdesk/internal/identity"
	"github.com/desertthunder/songdesk/internal/shared"
	"golang.org/x/oauth2"
)

// FakeProvider is a scriptable [identity.Provider].
//
// Refresh results are served from a queue; once it drains every refresh succeeds with a numbered token.
type FakeProvider struct {
	hub *identity.Hub

	mu         sync.Mutex
	signInErr  error
	signOutErr error
	refreshes  []RefreshResult
	issued     int

	SignInCalls  atomic.Int32
	SignOutCalls atomic.Int32
	RefreshCalls atomic.Int32
}

// RefreshResult is one scripted answer to [FakeProvider.RefreshToken].
type RefreshResult struct {
	Token string
	Err   error
}

var _ identity.Provider = (*FakeProvider)(nil)

// NewFakeProvider creates a signed-out fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{hub: identity.NewHub()}
}

// SetSignInError makes the next sign-ins fail with err. Pass nil to succeed again.
func (f *FakeProvider) SetSignInError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInErr = err
}

// SetSignOutError makes sign-outs fail with err while still publishing the signed-out state.
func (f *FakeProvider) SetSignOutError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutErr = err
}

// QueueRefresh appends scripted refresh results.
func (f *FakeProvider) QueueRefresh(results ...RefreshResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, results...)
}

// Emit publishes p as the provider auth state, as if the provider restored or changed the user.
func (f *FakeProvider) Emit(p *identity.Principal) {
	f.hub.Publish(p)
}

// SignInAs publishes a principal for uid and returns it.
func (f *FakeProvider) SignInAs(uid, email string) *identity.Principal {
	p := identity.NewPrincipal(uid, email, &oauth2.Token{
		AccessToken:  "initial-" + uid,
		RefreshToken: "refresh-" + uid,
		Expiry:       time.Now().Add(time.Hour),
	})
	f.hub.Publish(p)
	return p
}

func (f *FakeProvider) Subscribe() (<-chan *identity.Principal, func()) {
	return f.hub.Subscribe()
}

func (f *FakeProvider) CurrentPrincipal() *identity.Principal {
	return f.hub.Current()
}

func (f *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Principal, error) {
	f.SignInCalls.Add(1)

	f.mu.Lock()
	err := f.signInErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.SignInAs("uid-"+email, email), nil
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.SignOutCalls.Add(1)
	f.hub.Publish(nil)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutErr
}

func (f *FakeProvider) RefreshToken(ctx context.Context, p *identity.Principal, force bool) (string, error) {
	f.RefreshCalls.Add(1)
	if p == nil {
		return "", shared.ErrNoPrincipal
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.refreshes) > 0 {
		next := f.refreshes[0]
		f.refreshes = f.refreshes[1:]
		return next.Token, next.Err
	}

	f.issued++
	return fmt.Sprintf("token-%d", f.issued), nil
}
