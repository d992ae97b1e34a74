package mux

import "errors"

// ErrInvalidPattern is returned when a path template cannot be compiled.
// It is the only error that should abort startup.
var ErrInvalidPattern = errors.New("mux: invalid pattern")

// ErrInvalidMethod is returned when a route is registered with a method
// that is not an RFC 9110 token.
var ErrInvalidMethod = errors.New("mux: invalid method")

// ErrNilHandler is returned when a route or middleware is registered
// without a callable.
var ErrNilHandler = errors.New("mux: nil handler")

// ErrInvalidPhase is returned when middleware is registered for a phase
// other than PhasePre or PhasePost.
var ErrInvalidPhase = errors.New("mux: invalid middleware phase")

// ErrFrozen is returned by registration methods once the router has been
// frozen, explicitly or by serving its first request.
var ErrFrozen = errors.New("mux: router is frozen")

// ErrBodyTooLarge is returned by NewRequestFromHTTP when the request body
// exceeds the configured limit.
var ErrBodyTooLarge = errors.New("mux: request body too large")

// ErrMethodMismatch is returned when the method in the request does not match
// the method defined against the route. Triggers 405 Method Not Allowed
// per RFC 9110 Section 15.5.6 when a MethodNotAllowedHandler is set.
var ErrMethodMismatch = errors.New("method is not allowed")

// ErrNotFound is returned when no route match is found. Triggers 404 Not Found
// per RFC 9110 Section 15.5.5.
var ErrNotFound = errors.New("no matching route was found")
