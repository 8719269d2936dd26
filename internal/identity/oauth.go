package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/repositories"
	"github.com/desertthunder/songdesk/internal/shared"
	"golang.org/x/oauth2"
)

// SessionRepository persists the signed-in principal across processes.
//
// [repositories.ProviderSessionRepository] implements it.
type SessionRepository interface {
	Save(s *repositories.ProviderSession) error
	Current() (*repositories.ProviderSession, error)
	Clear() error
}

// OAuthProvider implements [Provider] over the OAuth2 resource owner password and refresh token grants.
type OAuthProvider struct {
	config     *oauth2.Config
	repo       SessionRepository
	httpClient *http.Client
	hub        *Hub
	logger     *log.Logger
}

// OAuthProviderOpts configures an [OAuthProvider].
type OAuthProviderOpts struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Repository   SessionRepository
	HTTPClient   *http.Client // used for token endpoint calls, defaults to [http.DefaultClient]
	Logger       *log.Logger
}

var _ Provider = (*OAuthProvider)(nil)

// NewOAuthProvider creates a provider and restores any principal saved by a previous process.
func NewOAuthProvider(opts OAuthProviderOpts) (*OAuthProvider, error) {
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("%w: missing token_url", shared.ErrInvalidConfig)
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	p := &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       opts.Scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: opts.TokenURL},
		},
		repo:       opts.Repository,
		httpClient: opts.HTTPClient,
		hub:        NewHub(),
		logger:     shared.WithLogger(opts.Logger, "component", "identity"),
	}

	if err := p.restore(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *OAuthProvider) restore() error {
	if p.repo == nil {
		return nil
	}

	saved, err := p.repo.Current()
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore provider session: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  saved.AccessToken,
		TokenType:    saved.TokenType,
		RefreshToken: saved.RefreshToken,
		Expiry:       saved.Expiry,
	}
	p.hub.Publish(NewPrincipal(saved.UID, saved.Email, tok))
	p.logger.Debug("restored provider session", "uid", saved.UID)
	return nil
}

func (p *OAuthProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Subscribe implements [Provider].
func (p *OAuthProvider) Subscribe() (<-chan *Principal, func()) {
	return p.hub.Subscribe()
}

// CurrentPrincipal implements [Provider].
func (p *OAuthProvider) CurrentPrincipal() *Principal {
	return p.hub.Current()
}

// SignInWithPassword exchanges email and password for a token and publishes the new principal.
func (p *OAuthProvider) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	tok, err := p.config.PasswordCredentialsToken(p.withClient(ctx), email, password)
	if err != nil {
		return nil, classifyTokenError(err, false)
	}

	principal := NewPrincipal(principalUID(tok, email), email, tok)
	if err := p.save(principal, tok); err != nil {
		return nil, err
	}

	p.hub.Publish(principal)
	p.logger.Info("signed in at provider", "uid", principal.UID)
	return principal, nil
}

// SignOut clears the saved principal and publishes the signed-out state.
func (p *OAuthProvider) SignOut(ctx context.Context) error {
	if p.repo != nil {
		if err := p.repo.Clear(); err != nil {
			return fmt.Errorf("failed to clear provider session: %w", err)
		}
	}
	p.hub.Publish(nil)
	return nil
}

// RefreshToken implements [Provider] using the refresh token grant.
func (p *OAuthProvider) RefreshToken(ctx context.Context, principal *Principal, force bool) (string, error) {
	if principal == nil {
		return "", shared.ErrNoPrincipal
	}

	current := principal.Token()
	if current == nil {
		return "", shared.ErrNoRefreshToken
	}
	if !force && current.Valid() {
		return current.AccessToken, nil
	}
	if current.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	src := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, classifyTokenError(err, true))
	}

	principal.setToken(tok)
	if p.hub.Current() == principal {
		if err := p.save(principal, tok); err != nil {
			p.logger.Warn("failed to persist refreshed token", "error", err)
		}
	}

	return tok.AccessToken, nil
}

func (p *OAuthProvider) save(principal *Principal, tok *oauth2.Token) error {
	if p.repo == nil {
		return nil
	}
	err := p.repo.Save(&repositories.ProviderSession{
		UID:          principal.UID,
		Email:        principal.Email,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return fmt.Errorf("failed to save provider session: %w", err)
	}
	return nil
}

// principalUID reads the provider user id from the token response, falling back to email.
func principalUID(tok *oauth2.Token, email string) string {
	for _, key := range []string{"user_id", "uid", "sub", "localId"} {
		if v, ok := tok.Extra(key).(string); ok && v != "" {
			return v
		}
	}
	return email
}

// classifyTokenError maps token endpoint failures to provider error codes.
//
// An invalid_grant answer to a refresh means the refresh token was revoked.
func classifyTokenError(err error, refreshing bool) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}

		code := strings.ToLower(re.ErrorCode)
		switch {
		case status == http.StatusTooManyRequests || code == "slow_down" || code == "too_many_attempts":
			return &Error{Code: CodeTooManyRequests, Err: err}
		case code == "user_disabled" || code == "account_disabled":
			return &Error{Code: CodeUserDisabled, Err: err}
		case code == "invalid_grant" && refreshing:
			return &Error{Code: CodeTokenRevoked, Err: err}
		case code == "invalid_grant" || code == "invalid_credentials" || status == http.StatusUnauthorized:
			return &Error{Code: CodeInvalidCredential, Err: err}
		default:
			return &Error{Code: CodeUnknown, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Code: CodeNetwork, Err: err}
	}
	return &Error{Code: CodeUnknown, Err: err}
}
