package mux

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// MethodAny registers a route that matches every request method.
const MethodAny = "*"

// standardMethods are reported by Allowed for routes registered with
// MethodAny.
var standardMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost,
	http.MethodPut, http.MethodPatch, http.MethodDelete,
	http.MethodOptions,
}

// Route is a registered (method, pattern, handler) triple. Routes are
// created by registration and never modified afterwards.
type Route struct {
	method  string
	pattern *Pattern
	handler Handler
	seq     uint64
}

// Method returns the route method, or MethodAny.
func (r *Route) Method() string {
	return r.method
}

// Pattern returns the compiled path pattern.
func (r *Route) Pattern() *Pattern {
	return r.pattern
}

// Handler returns the route handler.
func (r *Route) Handler() Handler {
	return r.handler
}

// GetPathTemplate returns the template used to register the route.
func (r *Route) GetPathTemplate() string {
	return r.pattern.String()
}

// URLPath builds an escaped path for the route from key/value pairs:
//
//	route.URLPath("id", "42")
func (r *Route) URLPath(pairs ...string) (string, error) {
	values, err := mapFromPairs(pairs...)
	if err != nil {
		return "", err
	}

	return r.pattern.Build(values)
}

func (r *Route) String() string {
	return r.method + " " + r.pattern.String()
}

// WalkFunc is called for each route visited by Walk. Returning an error
// stops the walk and the error is returned by Walk.
type WalkFunc func(route *Route) error

// RouteTable holds routes per method. Lookup walks the routes of the
// request method together with the MethodAny routes in registration order,
// so the first registered match wins regardless of specificity.
//
// A RouteTable is not safe for concurrent registration; it is safe for
// concurrent lookups once registration has finished.
type RouteTable struct {
	byMethod map[string][]*Route
	any      []*Route
	all      []*Route
	seq      uint64
}

// NewRouteTable returns an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{byMethod: make(map[string][]*Route)}
}

// Register compiles the pattern and appends a route for the method.
// The method is upper-cased and must be an RFC 9110 token or MethodAny.
func (t *RouteTable) Register(method, pattern string, handler Handler) (*Route, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNilHandler, method, pattern)
	}

	method = strings.ToUpper(method)
	if err := validateMethod(method); err != nil {
		return nil, err
	}

	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	t.seq++

	route := &Route{method: method, pattern: p, handler: handler, seq: t.seq}

	if method == MethodAny {
		t.any = append(t.any, route)
	} else {
		t.byMethod[method] = append(t.byMethod[method], route)
	}

	t.all = append(t.all, route)

	return route, nil
}

// Resolve returns the first route registered for method (or MethodAny)
// whose pattern matches the escaped path, with its bound parameters.
func (t *RouteTable) Resolve(method, escapedPath string) (*Route, Params, bool) {
	specific := t.byMethod[method]
	anyRoutes := t.any

	// Merge both lists by registration sequence.
	for len(specific) > 0 || len(anyRoutes) > 0 {
		var route *Route
		if len(anyRoutes) == 0 || (len(specific) > 0 && specific[0].seq < anyRoutes[0].seq) {
			route, specific = specific[0], specific[1:]
		} else {
			route, anyRoutes = anyRoutes[0], anyRoutes[1:]
		}

		if params, ok := route.pattern.Match(escapedPath); ok {
			return route, params, true
		}
	}

	return nil, nil, false
}

// Allowed returns the sorted methods that have a route matching the
// escaped path. A matching MethodAny route contributes the standard
// methods. It is used for the Allow header of 405 responses and for CORS.
func (t *RouteTable) Allowed(escapedPath string) []string {
	var methods []string

	for _, route := range t.all {
		if _, ok := route.pattern.Match(escapedPath); !ok {
			continue
		}

		if route.method == MethodAny {
			methods = append(methods, standardMethods...)
		} else {
			methods = append(methods, route.method)
		}
	}

	slices.Sort(methods)

	return slices.Compact(methods)
}

// Routes returns all routes in registration order.
func (t *RouteTable) Routes() []*Route {
	return slices.Clone(t.all)
}

// Len returns the number of registered routes.
func (t *RouteTable) Len() int {
	return len(t.all)
}

// Walk calls fn for every route in registration order.
func (t *RouteTable) Walk(fn WalkFunc) error {
	for _, route := range t.all {
		if err := fn(route); err != nil {
			return err
		}
	}

	return nil
}

// validateMethod checks that method is an RFC 9110 Section 9.1 token.
func validateMethod(method string) error {
	if method == MethodAny {
		return nil
	}

	if method == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMethod)
	}

	for _, r := range method {
		if !httpguts.IsTokenRune(r) {
			return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
		}
	}

	return nil
}
