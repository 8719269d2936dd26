// package repositories provides the SQLite persistence behind the durable session markers and the
// identity provider's saved principal.
package repositories

import (
	"errors"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Marker keys persisted in the markers table.
const (
	KeyIsAuthenticated = "isAuthenticated"
	KeyCachedUserData  = "cachedUserData"
	KeyUsingCachedAuth = "usingCachedAuth"
)
