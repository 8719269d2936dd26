package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Credential errors are user-facing and need new input before a retry.
	ErrInvalidCredential = fmt.Errorf("invalid email or password")
	ErrTooManyAttempts   = fmt.Errorf("too many attempts, try later")
	ErrSignInFailed      = fmt.Errorf("sign in failed")

	// Authorization errors end the session.
	ErrRoleNotEligible = fmt.Errorf("role is not allowed to use the dashboard")
	ErrAccountInactive = fmt.Errorf("account is inactive")

	// Token errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoPrincipal      = fmt.Errorf("no current principal")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrSessionExpired   = fmt.Errorf("session expired")

	// API and connectivity errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrVerification       = fmt.Errorf("identity verification failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
