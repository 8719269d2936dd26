// Package repositories implements SQLite persistence for durable session state.
//
// Key Implementations:
//   - [MarkerRepository] : durable key-value markers (isAuthenticated, cachedUserData, usingCachedAuth)
//   - [ProviderSessionRepository] : the identity provider's signed-in principal, so a new process resumes it
//
// Bearer tokens used by the dashboard client are never written here; they live in the ephemeral store.
// The provider session row holds the provider's own grant, the way a browser SDK keeps its user record.
package repositories
