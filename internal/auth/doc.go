// Package auth provides authentication middleware for the tailalert status server.
//
// APIKeyMiddleware(mode, header, key) wraps an http.Handler and validates the
// API key carried in the named request header.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately.
package auth
