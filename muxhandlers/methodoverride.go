package muxhandlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/harbor/mux"
	"github.com/vitalvas/harbor/reqbody"
)

// MethodOverrideOriginalKey is the side-channel key holding the method a
// request arrived with once it has been overridden.
const MethodOverrideOriginalKey = "methodoverride.original"

// ErrInvalidOverrideMethod is returned when MethodOverrideConfig.AllowedMethods
// or MethodOverrideConfig.OriginalMethods contains a value that is not an
// upper-case method token.
var ErrInvalidOverrideMethod = errors.New("method override: allowed methods must be valid HTTP methods")

// MethodOverrideConfig configures the method override middleware.
type MethodOverrideConfig struct {
	// HeaderNames are checked in order; the first non-empty value is the
	// override. Defaults to X-HTTP-Method-Override, X-Method-Override and
	// X-HTTP-Method.
	HeaderNames []string

	// FormField names a form or multipart text field consulted when no
	// header carries an override, for HTML forms that cannot set headers.
	// Typically "_method". Empty disables it.
	FormField string

	// OriginalMethods are the request methods eligible for override.
	// Defaults to POST.
	OriginalMethods []string

	// AllowedMethods are the methods a request may be overridden to.
	// Defaults to PUT, PATCH, DELETE, HEAD and OPTIONS.
	AllowedMethods []string
}

var defaultOverrideHeaders = []string{
	"X-HTTP-Method-Override",
	"X-Method-Override",
	"X-HTTP-Method",
}

var defaultOverrideMethods = []string{
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

type methodOverride struct {
	headers   []string
	formField string
	originals map[string]struct{}
	allowed   map[string]struct{}
}

// MethodOverrideMiddleware returns a pre middleware that rewrites
// req.Method from an override header or form field. Pre middleware runs
// before routing, so the route is resolved with the new method. The
// override is upper-cased and applied only when the request method is in
// OriginalMethods and the override is in AllowedMethods; the header that
// carried it is then removed and the original method is stored under
// MethodOverrideOriginalKey.
//
// It returns ErrInvalidOverrideMethod if AllowedMethods or OriginalMethods
// contains an invalid method.
func MethodOverrideMiddleware(cfg MethodOverrideConfig) (mux.Middleware, error) {
	originals := cfg.OriginalMethods
	if originals == nil {
		originals = []string{http.MethodPost}
	}

	methods := cfg.AllowedMethods
	if methods == nil {
		methods = defaultOverrideMethods
	}

	m := &methodOverride{
		headers:   slices.Clone(cfg.HeaderNames),
		formField: cfg.FormField,
		originals: make(map[string]struct{}, len(originals)),
		allowed:   make(map[string]struct{}, len(methods)),
	}

	if len(m.headers) == 0 {
		m.headers = defaultOverrideHeaders
	}

	for _, method := range originals {
		if !validOverrideMethod(method) {
			return nil, ErrInvalidOverrideMethod
		}

		m.originals[method] = struct{}{}
	}

	for _, method := range methods {
		if !validOverrideMethod(method) {
			return nil, ErrInvalidOverrideMethod
		}

		m.allowed[method] = struct{}{}
	}

	return mux.MiddlewareFunc(m.process), nil
}

func (m *methodOverride) process(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
	if _, ok := m.originals[req.Method]; !ok {
		return nil, nil
	}

	override, header := m.lookup(req)
	if override == "" {
		return nil, nil
	}

	override = strings.ToUpper(override)
	if _, ok := m.allowed[override]; !ok {
		return nil, nil
	}

	req.Set(MethodOverrideOriginalKey, req.Method)
	req.Method = override

	if header != "" {
		req.Header.Del(header)
	}

	return nil, nil
}

// lookup returns the override value and the header it came from, which is
// empty for a form field.
func (m *methodOverride) lookup(req *mux.Request) (string, string) {
	for _, h := range m.headers {
		if v := strings.TrimSpace(req.Header.Get(h)); v != "" {
			return v, h
		}
	}

	if m.formField == "" {
		return "", ""
	}

	switch req.Decoded.Kind {
	case reqbody.KindForm, reqbody.KindMultipart:
		return strings.TrimSpace(req.Decoded.Fields.Get(m.formField)), ""
	}

	return "", ""
}

func validOverrideMethod(method string) bool {
	if method == "" || method != strings.ToUpper(method) {
		return false
	}

	return strings.IndexFunc(method, func(r rune) bool { return !httpguts.IsTokenRune(r) }) < 0
}
