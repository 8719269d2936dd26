// Package models defines the domain types shared by the session manager, the HTTP client and the CLI.
//
//   - [Identity] : the authenticated admin user returned by the verification endpoint
//   - [Role] : dashboard role; only SUPER_ADMIN, ADMIN and CONTRIBUTOR may hold a session
//   - [Verification] : tagged result of a backend identity check, consumed by the session state machine
package models
