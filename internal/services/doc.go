// Package services implements the resilient HTTP client used for every call to the dashboard backend.
//
// # Token Injection
//
// Before each request the [Client] force-refreshes the live principal's token through the
// [identity.Provider] and stores it in the [store.Session]. When the refresh fails the last stored
// token is sent instead, and with no token at all the request goes out unauthenticated.
//
// # Recovery Policy
//
// Responses and transport failures are handled in this order:
//   - 401: one silent refresh and a single retry. A missing principal, a failed refresh or a second
//     401 clears the session, signs out at the provider and calls the [Navigator] with the login URL
//     carrying expired=true. The error wraps [shared.ErrSessionExpired].
//   - 403: never re-authenticates. GET returns an empty degraded [APIResponse]; other methods return
//     an [*HTTPError] wrapping [shared.ErrForbidden].
//   - Network failure: marks the API unreachable (warned once per session). GET degrades, mutations
//     return the original error wrapped in [shared.ErrServiceUnavailable].
//   - Timeout: GET degrades, mutations return an error wrapping [shared.ErrTimeout].
//   - Any other non-2xx: an [*HTTPError] alongside the response.
//
// Degraded responses have status 200, body "[]" and Degraded set, with the absorbed error in Cause.
package services
