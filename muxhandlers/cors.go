package muxhandlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/vitalvas/harbor/mux"
)

// ErrWildcardCredentials is returned when AllowedOrigins contains "*" and
// AllowCredentials is true. Use AllowOriginFunc for dynamic origin checks
// with credentials.
var ErrWildcardCredentials = errors.New("wildcard origin \"*\" cannot be used with AllowCredentials; use AllowOriginFunc instead")

// ErrMultipleOriginWildcards is returned when an origin pattern contains
// more than one "*".
var ErrMultipleOriginWildcards = errors.New("origin pattern contains multiple wildcards")

// MethodLister reports the methods routed for an escaped path.
// *mux.Router implements it.
type MethodLister interface {
	Allowed(escapedPath string) []string
}

// CORSConfig configures the CORS middleware behaviour.
//
// Spec references:
//   - CORS protocol: https://fetch.spec.whatwg.org/#http-cors-protocol
//   - Web Origin:    https://www.rfc-editor.org/rfc/rfc6454
//   - HTTP Vary:     https://www.rfc-editor.org/rfc/rfc9110#field.vary
type CORSConfig struct {
	// AllowedOrigins is a list of exact origin strings, "*" for wildcard,
	// or subdomain wildcard patterns like "https://*.example.com".
	AllowedOrigins []string

	// AllowOriginFunc is an optional dynamic callback invoked when the
	// origin does not match any entry in AllowedOrigins. Return true to allow.
	AllowOriginFunc func(origin string) bool

	// AllowedMethods overrides the set of methods advertised in preflight
	// and actual responses. When empty the middleware asks the router
	// which methods are routed for the request path.
	AllowedMethods []string

	// AllowedHeaders lists the headers the client may send in the actual
	// request. When empty the middleware reflects the Access-Control-Request-Headers
	// value from the preflight request. Use "*" to reflect all requested headers.
	AllowedHeaders []string

	// ExposeHeaders lists the headers the browser may expose to client code.
	ExposeHeaders []string

	// AllowCredentials sets Access-Control-Allow-Credentials: true.
	// Per the Fetch Standard, "*" cannot be used as Allow-Origin when
	// credentials are enabled; the middleware returns ErrWildcardCredentials.
	AllowCredentials bool

	// MaxAge is the duration in seconds a preflight result may be cached.
	// Positive values are sent as-is, negative values emit "0", zero omits the header.
	MaxAge int

	// OptionsStatusCode overrides the HTTP status code for preflight responses.
	// When zero (default) the middleware uses 204 No Content.
	OptionsStatusCode int

	// OptionsPassthrough, when true, lets preflight requests continue to
	// routing; the CORS headers are added to whatever response results.
	OptionsPassthrough bool

	// AllowPrivateNetwork, when true, responds to Access-Control-Request-Private-Network
	// preflight headers with Access-Control-Allow-Private-Network: true.
	// See https://wicg.github.io/private-network-access/
	AllowPrivateNetwork bool
}

// wildcardPattern represents a subdomain wildcard pattern split at the "*".
type wildcardPattern struct {
	prefix string
	suffix string
}

// parseOrigins normalizes AllowedOrigins to lowercase and splits them into
// exact matches and wildcard patterns.
func parseOrigins(origins []string) ([]string, []wildcardPattern, error) {
	var exact []string
	var patterns []wildcardPattern

	for _, o := range origins {
		if o == "*" {
			exact = append(exact, o)
			continue
		}

		lower := strings.ToLower(o)

		prefix, suffix, found := strings.Cut(lower, "*")
		if !found {
			exact = append(exact, lower)
			continue
		}

		if strings.Contains(suffix, "*") {
			return nil, nil, errors.Join(ErrMultipleOriginWildcards, errors.New(o))
		}

		patterns = append(patterns, wildcardPattern{prefix: prefix, suffix: suffix})
	}

	return exact, patterns, nil
}

// matchOrigin reports whether originLower matches any exact origin or wildcard pattern.
func matchOrigin(originLower string, exactOrigins []string, patterns []wildcardPattern) bool {
	for _, o := range exactOrigins {
		if o == "*" || o == originLower {
			return true
		}
	}

	for _, wp := range patterns {
		if len(originLower) >= len(wp.prefix)+len(wp.suffix) &&
			strings.HasPrefix(originLower, wp.prefix) &&
			strings.HasSuffix(originLower, wp.suffix) {
			return true
		}
	}

	return false
}

type cors struct {
	cfg      CORSConfig
	lister   MethodLister
	exact    []string
	patterns []wildcardPattern

	wildcardOrigin  bool
	specificOrigins bool
	headersWildcard bool
	preflightStatus int
}

func (c *cors) allowed(rawOrigin string) bool {
	if matchOrigin(strings.ToLower(rawOrigin), c.exact, c.patterns) {
		return true
	}

	if c.cfg.AllowOriginFunc != nil {
		return c.cfg.AllowOriginFunc(rawOrigin)
	}

	return false
}

func isPreflight(req *mux.Request) bool {
	return req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""
}

func (c *cors) methods(req *mux.Request) []string {
	if len(c.cfg.AllowedMethods) > 0 {
		return c.cfg.AllowedMethods
	}

	if c.lister == nil {
		return nil
	}

	return c.lister.Allowed(req.RawPath)
}

// setOrigin sets Access-Control-Allow-Origin, Vary and
// Access-Control-Allow-Credentials.
func (c *cors) setOrigin(h http.Header, origin string) {
	if c.wildcardOrigin && !c.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}

	if c.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (c *cors) setPreflight(h http.Header, req *mux.Request) {
	if methods := c.methods(req); len(methods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
	}

	reqHeaders := req.Header.Get("Access-Control-Request-Headers")

	switch {
	case c.headersWildcard:
		if reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		}
	case len(c.cfg.AllowedHeaders) > 0:
		h.Set("Access-Control-Allow-Headers", strings.Join(c.cfg.AllowedHeaders, ","))
	case reqHeaders != "":
		h.Set("Access-Control-Allow-Headers", reqHeaders)
	}

	if c.cfg.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.cfg.MaxAge))
	} else if c.cfg.MaxAge < 0 {
		h.Set("Access-Control-Max-Age", "0")
	}

	if c.cfg.AllowPrivateNetwork && req.Header.Get("Access-Control-Request-Private-Network") == "true" {
		h.Set("Access-Control-Allow-Private-Network", "true")
		h.Add("Vary", "Access-Control-Request-Private-Network")
	}

	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
}

func (c *cors) setActual(h http.Header, req *mux.Request) {
	if methods := c.methods(req); len(methods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
	}

	if len(c.cfg.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.cfg.ExposeHeaders, ","))
	}
}

// pre answers preflight requests before routing, so a path without an
// OPTIONS route never reaches the not-found handler.
func (c *cors) pre(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
	if c.cfg.OptionsPassthrough || !isPreflight(req) {
		return nil, nil
	}

	origin := req.Header.Get("Origin")
	if origin == "" || !c.allowed(origin) {
		return nil, nil
	}

	resp := mux.NewResponse()
	resp.Status = c.preflightStatus

	c.setOrigin(resp.Header, origin)
	c.setPreflight(resp.Header, req)

	return nil, resp
}

// post decorates the final response of every request that reached routing.
func (c *cors) post(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
	h := header(resp)

	origin := req.Header.Get("Origin")
	if origin == "" {
		if c.specificOrigins {
			h.Add("Vary", "Origin")
		}

		return nil, nil
	}

	// Already decorated, by the pre half or by the handler.
	if !c.allowed(origin) || h.Get("Access-Control-Allow-Origin") != "" {
		return nil, nil
	}

	c.setOrigin(h, origin)

	if isPreflight(req) {
		c.setPreflight(h, req)
	} else {
		c.setActual(h, req)
	}

	return nil, nil
}

// CORSMiddleware returns a middleware pair that implements the CORS
// protocol per the Fetch Standard
// (https://fetch.spec.whatwg.org/#http-cors-protocol). The pre half
// answers preflight requests; the post half adds the origin headers to
// the final response of actual requests. lister, usually the router,
// supplies Access-Control-Allow-Methods when AllowedMethods is empty.
//
// It returns an error if the configuration is invalid (e.g. wildcard origin
// combined with AllowCredentials).
func CORSMiddleware(lister MethodLister, cfg CORSConfig) (Pair, error) {
	wildcardOrigin := slices.Contains(cfg.AllowedOrigins, "*")
	if wildcardOrigin && cfg.AllowCredentials {
		return Pair{}, ErrWildcardCredentials
	}

	exact, patterns, err := parseOrigins(cfg.AllowedOrigins)
	if err != nil {
		return Pair{}, err
	}

	c := &cors{
		cfg:            cfg,
		lister:         lister,
		exact:          exact,
		patterns:       patterns,
		wildcardOrigin: wildcardOrigin,
		specificOrigins: !wildcardOrigin &&
			(len(exact) > 0 || len(patterns) > 0 || cfg.AllowOriginFunc != nil),
		headersWildcard: slices.Contains(cfg.AllowedHeaders, "*"),
		preflightStatus: cfg.OptionsStatusCode,
	}

	if c.preflightStatus == 0 {
		c.preflightStatus = http.StatusNoContent
	}

	return Pair{Pre: mux.MiddlewareFunc(c.pre), Post: mux.MiddlewareFunc(c.post)}, nil
}
