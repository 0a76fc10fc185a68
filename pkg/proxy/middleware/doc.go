// Package middleware provides the HTTP middleware chain for the gateway:
// request-ID injection and propagation, wide-open CORS, structured request
// logging, and panic recovery.
package middleware
