package mux

import (
	"fmt"
	"strings"
)

// Phase selects when a middleware runs relative to the route handler.
type Phase uint8

const (
	// PhasePre middleware runs before routing. Returning a response
	// short-circuits the request: later pre middleware and the handler
	// are skipped.
	PhasePre Phase = iota + 1
	// PhasePost middleware runs after the handler (or the not-found
	// handler). Returning a response replaces the current one and the
	// phase continues.
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhasePost:
		return "post"
	}

	return fmt.Sprintf("phase(%d)", p)
}

// Middleware processes a request before or after the route handler.
//
// Process returns the request to pass on (nil keeps the current one) and
// an optional response. In the pre phase a non-nil response short-circuits
// the request; in the post phase it replaces the current response. Both
// phases may also modify resp in place and return nil.
//
// A middleware instance is shared by all concurrent requests; any state it
// keeps must be synchronized by the middleware itself.
type Middleware interface {
	Process(req *Request, resp *Response) (*Request, *Response)
}

// MiddlewareFunc adapts an ordinary function to the Middleware interface.
type MiddlewareFunc func(req *Request, resp *Response) (*Request, *Response)

// Process calls f(req, resp).
func (f MiddlewareFunc) Process(req *Request, resp *Response) (*Request, *Response) {
	return f(req, resp)
}

// MiddlewareEntry is a registered middleware with its mount prefix.
type MiddlewareEntry struct {
	Prefix     string
	Phase      Phase
	Middleware Middleware
}

// selects reports whether the entry applies to path. The test is a plain
// string prefix, not segment aware: "/api" selects "/apiville" too.
func (e MiddlewareEntry) selects(path string) bool {
	return strings.HasPrefix(path, e.Prefix)
}

// Chain holds the ordered pre and post middleware lists. Like RouteTable it
// is built before serving and read concurrently afterwards.
type Chain struct {
	pre  []MiddlewareEntry
	post []MiddlewareEntry
}

// Register appends mw to the phase's list, scoped to request paths starting
// with prefix. An empty prefix selects every request.
func (c *Chain) Register(phase Phase, prefix string, mw Middleware) error {
	if mw == nil {
		return fmt.Errorf("%w: %s middleware at %q", ErrNilHandler, phase, prefix)
	}

	entry := MiddlewareEntry{Prefix: prefix, Phase: phase, Middleware: mw}

	switch phase {
	case PhasePre:
		c.pre = append(c.pre, entry)
	case PhasePost:
		c.post = append(c.post, entry)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPhase, phase)
	}

	return nil
}

// Entries returns a copy of the phase's list in registration order.
func (c *Chain) Entries(phase Phase) []MiddlewareEntry {
	var src []MiddlewareEntry

	switch phase {
	case PhasePre:
		src = c.pre
	case PhasePost:
		src = c.post
	}

	out := make([]MiddlewareEntry, len(src))
	copy(out, src)

	return out
}

// Run invokes the middleware of one phase selected by req.Path, strictly in
// registration order. It returns the final request and response, and
// whether a pre middleware short-circuited.
func (c *Chain) Run(phase Phase, req *Request, resp *Response) (*Request, *Response, bool) {
	switch phase {
	case PhasePre:
		for _, e := range c.pre {
			if !e.selects(req.Path) {
				continue
			}

			next, out := e.Middleware.Process(req, resp)
			if next != nil {
				req = next
			}

			if out != nil {
				return req, out, true
			}
		}

	case PhasePost:
		for _, e := range c.post {
			if !e.selects(req.Path) {
				continue
			}

			next, out := e.Middleware.Process(req, resp)
			if next != nil {
				req = next
			}

			if out != nil {
				resp = out
			}
		}
	}

	return req, resp, false
}
