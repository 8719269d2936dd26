// package identity defines the identity provider boundary consumed by the session manager and the
// dashboard client, plus an OAuth2 implementation of it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/songdesk/internal/shared"
	"golang.org/x/oauth2"
)

// Provider is the capability set the session layer needs from an identity provider.
//
// Any provider offering these operations is substitutable.
type Provider interface {
	// Subscribe returns a stream of auth-state changes, starting with the current state, and a func that
	// ends the subscription. A nil principal means signed out.
	Subscribe() (<-chan *Principal, func())

	// SignInWithPassword checks credentials. Failures are returned as [*Error].
	SignInWithPassword(ctx context.Context, email, password string) (*Principal, error)

	// SignOut ends the provider session.
	SignOut(ctx context.Context) error

	// RefreshToken returns an access token for p, fetching a new one when force is set or the
	// current one expired.
	RefreshToken(ctx context.Context, p *Principal, force bool) (string, error)

	// CurrentPrincipal returns the live principal, or nil.
	CurrentPrincipal() *Principal
}

// Principal is a provider-side signed-in user.
type Principal struct {
	UID   string
	Email string

	mu    sync.RWMutex
	token *oauth2.Token
}

// NewPrincipal creates a [Principal] holding tok.
func NewPrincipal(uid, email string, tok *oauth2.Token) *Principal {
	return &Principal{UID: uid, Email: email, token: tok}
}

// Token returns a copy of the principal's current token, or nil.
func (p *Principal) Token() *oauth2.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil {
		return nil
	}
	t := *p.token
	return &t
}

func (p *Principal) setToken(t *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = t
}

// Error codes reported by providers.
const (
	CodeInvalidCredential = "auth/invalid-credential"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeUserDisabled      = "auth/user-disabled"
	CodeTokenRevoked      = "auth/token-revoked"
	CodeNetwork           = "auth/network-request-failed"
	CodeUnknown           = "auth/unknown"
)

// Error is a provider failure carrying a machine-readable code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode extracts the provider code from err, or "" when err is not an [*Error].
func ErrorCode(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsPermanent reports whether a refresh failure cannot recover without a new sign-in.
func IsPermanent(err error) bool {
	if errors.Is(err, shared.ErrNoPrincipal) || errors.Is(err, shared.ErrNoRefreshToken) {
		return true
	}
	switch ErrorCode(err) {
	case CodeTokenRevoked, CodeUserDisabled, CodeInvalidCredential:
		return true
	default:
		return false
	}
}
