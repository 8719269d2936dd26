// Package session implements the session manager: the state machine that turns provider auth-state
// events into a verified dashboard identity.
//
// # States
//
//	SIGNED_OUT -> VERIFYING            principal reported
//	VERIFYING  -> SIGNED_IN            eligible role and active account
//	VERIFYING  -> SIGNED_OUT           role or active rejection, backend error; provider signed out too
//	VERIFYING  -> DEGRADED             backend unreachable, cached snapshot for the same provider uid
//	VERIFYING  -> SIGNED_OUT           backend unreachable, no usable snapshot; provider session kept
//	SIGNED_IN, DEGRADED -> SIGNED_OUT  sign-out, or permanent refresh failure
//
// Events are handled one at a time. Each handled principal replaces the refresh task instead of
// adding one, and a nil principal while already signed out changes nothing.
//
// Verification goes straight to the backend through [HTTPVerifier] rather than the resilient client,
// since the client absorbs exactly the failures the state machine needs to see.
package session
