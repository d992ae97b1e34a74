package mux

import (
	"fmt"
	"net/http"
	"strings"
)

// Group registers routes and middleware under a common path prefix.
type Group struct {
	router *Router
	prefix string
	err    error
}

// Group returns a group whose routes are registered under prefix. The
// prefix must be static so that it can also scope middleware; a prefix
// with parameters makes every registration through the group fail.
func (r *Router) Group(prefix string) *Group {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	g := &Group{router: r, prefix: prefix}

	p, err := CompilePattern(prefix)
	if err == nil && p.params > 0 {
		err = fmt.Errorf("%w %q: group prefix must be static", ErrInvalidPattern, prefix)
	}

	if err != nil {
		g.err = err

		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}

	return g
}

// Group returns a nested group.
func (g *Group) Group(prefix string) *Group {
	return g.router.Group(g.prefix + "/" + strings.Trim(prefix, "/"))
}

// Prefix returns the group prefix.
func (g *Group) Prefix() string {
	return g.prefix
}

// Handle registers a route under the group prefix.
func (g *Group) Handle(method, pattern string, handler Handler) (*Route, error) {
	if g.err != nil {
		return nil, g.err
	}

	return g.router.Handle(method, joinPath(g.prefix, pattern), handler)
}

// HandleFunc registers a route with a handler function under the group
// prefix.
func (g *Group) HandleFunc(method, pattern string, f HandlerFunc) (*Route, error) {
	if f == nil {
		return g.Handle(method, pattern, nil)
	}

	return g.Handle(method, pattern, f)
}

func (g *Group) Get(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(http.MethodGet, pattern, f)
}

func (g *Group) Post(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(http.MethodPost, pattern, f)
}

func (g *Group) Put(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(http.MethodPut, pattern, f)
}

func (g *Group) Patch(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(http.MethodPatch, pattern, f)
}

func (g *Group) Delete(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(http.MethodDelete, pattern, f)
}

func (g *Group) Any(pattern string, f HandlerFunc) (*Route, error) {
	return g.HandleFunc(MethodAny, pattern, f)
}

// Use registers middleware scoped to the group prefix followed by prefix.
// Selection is a plain string prefix test on the request path.
func (g *Group) Use(phase Phase, prefix string, mw Middleware) error {
	if g.err != nil {
		return g.err
	}

	return g.router.Use(phase, g.prefix+prefix, mw)
}

func (g *Group) UsePre(prefix string, mw Middleware) error {
	return g.Use(PhasePre, prefix, mw)
}

func (g *Group) UsePost(prefix string, mw Middleware) error {
	return g.Use(PhasePost, prefix, mw)
}
