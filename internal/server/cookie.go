package server

import (
	"net/http"
	"time"
)

// CookieName is the routing hint cookie checked by [SessionGate] before the full session check.
const CookieName = "isAuthenticated"

// DefaultCookieMaxAge is how long the routing hint survives in the browser.
const DefaultCookieMaxAge = 7 * 24 * time.Hour

// CookieOptions defines how the routing hint cookie is issued.
type CookieOptions struct {
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultCookieMaxAge
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// SetAuthCookie issues the isAuthenticated cookie.
//
// It is readable by scripts: it only steers routing and never grants access on its own.
func SetAuthCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "true",
		Path:     opts.Path,
		MaxAge:   int(opts.MaxAge / time.Second),
		Expires:  time.Now().Add(opts.MaxAge),
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearAuthCookie removes the isAuthenticated cookie.
func ClearAuthCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// HasAuthCookie reports whether the request carries the routing hint.
func HasAuthCookie(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	return err == nil && c.Value == "true"
}
