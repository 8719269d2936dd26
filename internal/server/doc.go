// Package server provides the local dashboard gateway: routing, middleware, the routing hint cookie
// and the session endpoints.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns internally.
//
// # Gateway
//
// [Gateway] serves:
//
//	GET  /login    sign-in hint, echoes expired=true
//	POST /login    {"email","password"}; verifies synchronously and issues the isAuthenticated cookie
//	POST /logout   ends the session and clears the cookie
//	GET  /session  current session snapshot
//	*    /api/...  passthrough to the backend through the resilient client
//
// # Session Gate
//
// [SessionGate] protects /api/. It checks the isAuthenticated cookie first and only then the session
// state; either failing redirects to /login?expired=true. The cookie is a routing hint, never a credential:
// the backend still authorizes every call with the bearer token.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
