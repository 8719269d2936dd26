package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/models"
	"github.com/desertthunder/songdesk/internal/services"
	"github.com/desertthunder/songdesk/internal/shared"
)

// Verifier checks a bearer token against the backend and classifies the result.
type Verifier interface {
	Verify(ctx context.Context, token string) models.Verification
}

// HTTPVerifier calls the backend's admin identity endpoint directly, bypassing the recovery policy so
// that rejections and outages stay distinguishable.
type HTTPVerifier struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	logger     *log.Logger
}

// NewHTTPVerifier creates a verifier for baseURL + path, e.g. /auth/admin/me.
func NewHTTPVerifier(baseURL, path string, client *http.Client, timeout time.Duration, logger *log.Logger) *HTTPVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = services.DefaultTimeout
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &HTTPVerifier{
		url:        strings.TrimRight(baseURL, "/") + path,
		httpClient: client,
		timeout:    timeout,
		logger:     shared.WithLogger(logger, "component", "verifier"),
	}
}

// Verify implements [Verifier].
func (v *HTTPVerifier) Verify(ctx context.Context, token string) models.Verification {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return models.Failed(fmt.Errorf("%w: %w", shared.ErrVerification, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", shared.GenerateID())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		if services.IsConnectivity(err) {
			v.logger.Warn("identity endpoint unreachable", "method", http.MethodGet, "url", v.url, "error", err)
			return models.Unreachable(err)
		}
		v.logger.Error("identity request failed", "method", http.MethodGet, "url", v.url, "error", err)
		return models.Failed(fmt.Errorf("%w: %w", shared.ErrVerification, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if services.IsConnectivity(err) {
			return models.Unreachable(err)
		}
		return models.Failed(fmt.Errorf("%w: failed to read response: %w", shared.ErrVerification, err))
	}

	if resp.StatusCode != http.StatusOK {
		herr := &services.HTTPError{Method: http.MethodGet, URL: v.url, StatusCode: resp.StatusCode, Body: body}
		v.logger.Error("identity verification rejected", "method", http.MethodGet, "url", v.url, "status", resp.StatusCode)
		return models.Failed(fmt.Errorf("%w: %w", shared.ErrVerification, herr))
	}

	id, err := decodeIdentity(body)
	if err != nil {
		return models.Failed(fmt.Errorf("%w: %w", shared.ErrVerification, err))
	}
	return models.Classify(id)
}

// decodeIdentity accepts both a bare identity and one wrapped in {"data": ...} or {"user": ...}.
//
// Unknown roles decode successfully so that [models.Classify] rejects them.
func decodeIdentity(body []byte) (*models.Identity, error) {
	var envelope struct {
		Data *models.Identity `json:"data"`
		User *models.Identity `json:"user"`
	}

	var id *models.Identity
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Data != nil && envelope.Data.ID != "":
			id = envelope.Data
		case envelope.User != nil && envelope.User.ID != "":
			id = envelope.User
		}
	}
	if id == nil {
		id = &models.Identity{}
		if err := json.Unmarshal(body, id); err != nil {
			return nil, fmt.Errorf("failed to decode identity: %w", err)
		}
	}

	if id.ID == "" {
		return nil, fmt.Errorf("%w: identity without id", shared.ErrInvalidInput)
	}
	id.Role = models.ParseRole(string(id.Role))
	return id, nil
}
