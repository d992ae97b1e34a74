package mux

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Router registers routes and middleware and dispatches requests to them.
//
// Registration happens before serving. The first call to Freeze, Dispatch
// or ServeHTTP freezes the router; later registration fails with ErrFrozen.
// A frozen router is safe for concurrent use.
//
//	r := mux.NewRouter()
//	r.Get("/users/{id}", showUser)
//	r.UsePre("/admin", auth)
//	if err := r.Freeze(); err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", r)
type Router struct {
	// NotFoundHandler is called when no route matches.
	// If nil, NotFound is used.
	NotFoundHandler Handler

	// MethodNotAllowedHandler, when set, is called instead of the
	// NotFoundHandler if routes for other methods match the path. The
	// Allow header is set before it is invoked.
	MethodNotAllowedHandler Handler

	table *RouteTable
	chain *Chain
	opts  options
	log   logrus.FieldLogger

	mu       sync.Mutex
	errs     []error
	frozen   atomic.Bool
	buildErr error
}

// NewRouter returns a new router instance.
func NewRouter(opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Router{
		table: NewRouteTable(),
		chain: &Chain{},
		opts:  o,
		log:   o.logger,
	}
}

// --- Registration ---

// Handle registers a route. Errors are also recorded and reported by Freeze.
func (r *Router) Handle(method, pattern string, handler Handler) (*Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return nil, fmt.Errorf("%w: cannot register %s %s", ErrFrozen, method, pattern)
	}

	route, err := r.table.Register(method, pattern, handler)
	if err != nil {
		r.errs = append(r.errs, err)
		return nil, err
	}

	return route, nil
}

// HandleFunc registers a route with a handler function.
func (r *Router) HandleFunc(method, pattern string, f HandlerFunc) (*Route, error) {
	if f == nil {
		return r.Handle(method, pattern, nil)
	}

	return r.Handle(method, pattern, f)
}

// Get registers a GET route.
func (r *Router) Get(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodGet, pattern, f)
}

// Post registers a POST route.
func (r *Router) Post(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodPost, pattern, f)
}

// Put registers a PUT route.
func (r *Router) Put(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodPut, pattern, f)
}

// Patch registers a PATCH route.
func (r *Router) Patch(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodPatch, pattern, f)
}

// Delete registers a DELETE route.
func (r *Router) Delete(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodDelete, pattern, f)
}

// Head registers a HEAD route.
func (r *Router) Head(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodHead, pattern, f)
}

// Options registers an OPTIONS route.
func (r *Router) Options(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(http.MethodOptions, pattern, f)
}

// Any registers a route matching every method.
func (r *Router) Any(pattern string, f HandlerFunc) (*Route, error) {
	return r.HandleFunc(MethodAny, pattern, f)
}

// Use registers middleware for a phase, scoped to request paths starting
// with prefix. Errors are also recorded and reported by Freeze.
func (r *Router) Use(phase Phase, prefix string, mw Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register %s middleware at %q", ErrFrozen, phase, prefix)
	}

	if err := r.chain.Register(phase, prefix, mw); err != nil {
		r.errs = append(r.errs, err)
		return err
	}

	return nil
}

// UsePre registers pre middleware.
func (r *Router) UsePre(prefix string, mw Middleware) error {
	return r.Use(PhasePre, prefix, mw)
}

// UsePost registers post middleware.
func (r *Router) UsePost(prefix string, mw Middleware) error {
	return r.Use(PhasePost, prefix, mw)
}

// Freeze ends registration and returns every registration error recorded
// so far, joined. It is safe to call more than once.
func (r *Router) Freeze() error {
	if r.frozen.Load() {
		return r.buildErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frozen.Load() {
		r.buildErr = errors.Join(r.errs...)
		if r.buildErr != nil {
			r.log.WithError(r.buildErr).Error("mux: router has registration errors, all requests will fail")
		}

		r.frozen.Store(true)
	}

	return r.buildErr
}

// --- Introspection ---

// Routes returns all routes in registration order.
func (r *Router) Routes() []*Route {
	return r.table.Routes()
}

// Walk calls fn for every route in registration order.
func (r *Router) Walk(fn WalkFunc) error {
	return r.table.Walk(fn)
}

// Allowed returns the methods with a route matching the escaped path.
func (r *Router) Allowed(escapedPath string) []string {
	return r.table.Allowed(escapedPath)
}

// Match resolves a route without dispatching.
func (r *Router) Match(method, escapedPath string) (*Route, Params, error) {
	route, params, ok := r.table.Resolve(method, escapedPath)
	if ok {
		return route, params, nil
	}

	if len(r.table.Allowed(escapedPath)) > 0 {
		return nil, nil, ErrMethodMismatch
	}

	return nil, nil, ErrNotFound
}

// --- Dispatch ---

// ServeHTTP reads and dispatches the request and writes the response.
func (r *Router) ServeHTTP(w http.ResponseWriter, hr *http.Request) {
	req, err := NewRequestFromHTTP(hr, r.opts.maxBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		r.log.WithFields(logrus.Fields{
			"method": hr.Method,
			"path":   hr.URL.Path,
		}).WithError(err).Debug("mux: rejecting request")

		Error(status).Write(w) //nolint:errcheck

		return
	}

	resp := r.Dispatch(req)

	if err := resp.Write(w); err != nil {
		r.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
		}).WithError(err).Debug("mux: writing response")
	}
}

// Dispatch runs one request through the router:
//
//	pre middleware -> (short-circuit | route match) -> handler -> post middleware
//
// A pre middleware that returns a response skips the handler, and the post
// phase unless WithPostAfterShortCircuit is set. When no route matches,
// the not-found (or method-not-allowed) handler runs and the post phase
// still runs. Panics are recovered and answered with 500. Dispatch stops
// with 503 when the request context is done between steps.
func (r *Router) Dispatch(req *Request) *Response {
	if err := r.Freeze(); err != nil {
		return Error(http.StatusInternalServerError)
	}

	if req.finish == nil {
		req.finish = new([]func())
	}

	defer req.runFinish()

	log := r.log.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
	})

	req.DecodeBody(r.opts.decodeOptions(log))

	resp := NewResponse()

	if cancelled(req) {
		return Error(http.StatusServiceUnavailable)
	}

	var short bool

	if ok := r.protect(log, "pre middleware", func() {
		req, resp, short = r.chain.Run(PhasePre, req, resp)
	}); !ok {
		resp, short = Error(http.StatusInternalServerError), true
	}

	if short {
		if !r.opts.postAfterShortCircuit {
			return resp
		}

		return r.runPost(log, req, resp)
	}

	if cancelled(req) {
		return Error(http.StatusServiceUnavailable)
	}

	route, params, matched := r.table.Resolve(req.Method, req.RawPath)

	handler := r.notFoundHandler()
	if matched {
		req.Route = route
		req.Params = params
		handler = route.handler
	} else if r.MethodNotAllowedHandler != nil {
		if allowed := r.table.Allowed(req.RawPath); len(allowed) > 0 {
			// RFC 9110 Section 15.5.6: a 405 response MUST carry Allow.
			resp.Header.Set("Allow", strings.Join(allowed, ", "))
			handler = r.MethodNotAllowedHandler
		}
	}

	if ok := r.protect(log, "handler", func() {
		if out := handler.ServeRequest(req, resp); out != nil {
			resp = out
		}
	}); !ok {
		resp = Error(http.StatusInternalServerError)
	}

	if cancelled(req) {
		return Error(http.StatusServiceUnavailable)
	}

	return r.runPost(log, req, resp)
}

func (r *Router) runPost(log logrus.FieldLogger, req *Request, resp *Response) *Response {
	if ok := r.protect(log, "post middleware", func() {
		_, resp, _ = r.chain.Run(PhasePost, req, resp)
	}); !ok {
		return Error(http.StatusInternalServerError)
	}

	return resp
}

func (r *Router) notFoundHandler() Handler {
	if r.NotFoundHandler != nil {
		return r.NotFoundHandler
	}

	return HandlerFunc(NotFound)
}

// protect runs fn and recovers a panic, logging it with the stack. It
// reports whether fn returned normally.
func (r *Router) protect(log logrus.FieldLogger, stage string, fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("stage", stage).Errorf("mux: recovered from panic: %v\n%s", rec, debug.Stack())

			ok = false
		}
	}()

	fn()

	return true
}

func cancelled(req *Request) bool {
	return req.Context().Err() != nil
}
