package mux

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/vitalvas/harbor/reqbody"
)

// Request is the per-request context handed to middleware and handlers.
// It is owned by the goroutine dispatching the request and must not be
// shared with other requests; it is not safe for concurrent use.
type Request struct {
	Method     string
	Path       string // decoded path
	RawPath    string // escaped path, used for route matching
	Host       string
	Scheme     string
	RemoteAddr string
	Header     http.Header
	Query      url.Values
	RawQuery   string

	// Params are the parameters bound by the matched route.
	Params Params

	// Route is the matched route, nil before routing and on not-found.
	Route *Route

	// Body is the raw request body.
	Body []byte

	// Decoded is the body decoded according to Content-Type. DecodeErr is
	// the *reqbody.DecodeError for malformed JSON or urlencoded bodies;
	// handlers decide how to respond to it.
	Decoded   reqbody.Body
	DecodeErr error

	// Form is the form-data view: urlencoded pairs or multipart text
	// fields. Middleware may add to it.
	Form url.Values

	ctx     context.Context
	data    map[string]any
	finish  *[]func()
	decoded bool
	orig    *http.Request
}

// NewRequest builds a Request for transport-agnostic dispatch. target is
// an origin-form request target such as "/users/42?verbose=1".
func NewRequest(ctx context.Context, method, target string, header http.Header, body []byte) (*Request, error) {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, fmt.Errorf("mux: invalid request target %q: %w", target, err)
	}

	if header == nil {
		header = make(http.Header)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return &Request{
		Method:   method,
		Path:     u.Path,
		RawPath:  u.EscapedPath(),
		Host:     u.Host,
		Scheme:   u.Scheme,
		Header:   header,
		Query:    u.Query(),
		RawQuery: u.RawQuery,
		Body:     body,
		Form:     make(url.Values),
		ctx:      ctx,
	}, nil
}

// NewRequestFromHTTP reads the body of hr and builds a Request from it.
// A positive maxBody limits the body size; larger bodies return
// ErrBodyTooLarge.
func NewRequestFromHTTP(hr *http.Request, maxBody int64) (*Request, error) {
	if maxBody > 0 && hr.ContentLength > maxBody {
		return nil, ErrBodyTooLarge
	}

	var body []byte

	if hr.Body != nil && hr.Body != http.NoBody {
		var reader io.Reader = hr.Body
		if maxBody > 0 {
			reader = io.LimitReader(hr.Body, maxBody+1)
		}

		var err error

		body, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("mux: reading request body: %w", err)
		}

		if maxBody > 0 && int64(len(body)) > maxBody {
			return nil, ErrBodyTooLarge
		}
	}

	scheme := hr.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if hr.TLS != nil {
			scheme = "https"
		}
	}

	return &Request{
		Method:     hr.Method,
		Path:       hr.URL.Path,
		RawPath:    hr.URL.EscapedPath(),
		Host:       hr.Host,
		Scheme:     scheme,
		RemoteAddr: hr.RemoteAddr,
		Header:     hr.Header,
		Query:      hr.URL.Query(),
		RawQuery:   hr.URL.RawQuery,
		Body:       body,
		Form:       make(url.Values),
		ctx:        hr.Context(),
		orig:       hr,
	}, nil
}

// Context returns the request context. It is never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}

	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
// The copy shares the side-channel data with r.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("mux: nil context")
	}

	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx

	if r2.data == nil {
		r.data = make(map[string]any)
		r2.data = r.data
	}

	if r2.finish == nil {
		r.finish = new([]func())
		r2.finish = r.finish
	}

	return r2
}

// OnFinish registers fn to run once dispatch of the request is over,
// whichever phase produced the response. Functions run in reverse order of
// registration. Copies made with WithContext share the list.
func (r *Request) OnFinish(fn func()) {
	if r.finish == nil {
		r.finish = new([]func())
	}

	*r.finish = append(*r.finish, fn)
}

// runFinish runs and clears the functions registered with OnFinish.
func (r *Request) runFinish() {
	if r.finish == nil {
		return
	}

	fns := *r.finish
	*r.finish = nil

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Param returns the value of a route parameter, or "" if it is not bound.
func (r *Request) Param(name string) string {
	return r.Params.Get(name)
}

// Set stores a value in the request-scoped side channel. Middleware uses
// it to pass data such as upload manifests downstream.
func (r *Request) Set(key string, value any) {
	if r.data == nil {
		r.data = make(map[string]any)
	}

	r.data[key] = value
}

// Get returns a side-channel value and whether it was set.
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.data[key]
	return v, ok
}

// Value returns a side-channel value, or nil if it was not set.
func (r *Request) Value(key string) any {
	return r.data[key]
}

// Delete removes a side-channel value.
func (r *Request) Delete(key string) {
	delete(r.data, key)
}

// Keys returns the side-channel keys in sorted order.
func (r *Request) Keys() []string {
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// DecodeBody decodes Body according to the Content-Type header and fills
// Decoded, DecodeErr and Form. It runs once; later calls are no-ops.
func (r *Request) DecodeBody(opts reqbody.Options) {
	if r.decoded {
		return
	}

	r.decoded = true
	r.Decoded, r.DecodeErr = reqbody.Decode(r.Body, r.Header.Get("Content-Type"), opts)

	if r.Form == nil {
		r.Form = make(url.Values)
	}

	for k, vs := range r.Decoded.Fields {
		r.Form[k] = append(r.Form[k], vs...)
	}
}

// Cookie returns the named cookie provided in the request.
func (r *Request) Cookie(name string) (*http.Cookie, error) {
	return (&http.Request{Header: r.Header}).Cookie(name)
}

// BasicAuth returns the credentials of an RFC 7617 Authorization header.
func (r *Request) BasicAuth() (username, password string, ok bool) {
	return (&http.Request{Header: r.Header}).BasicAuth()
}

// HTTPRequest returns a *http.Request view of r, for calling code written
// against net/http. Mutations of the returned request are not reflected
// back into r.
func (r *Request) HTTPRequest() *http.Request {
	u := &url.URL{
		Scheme:   r.Scheme,
		Host:     r.Host,
		Path:     r.Path,
		RawPath:  r.RawPath,
		RawQuery: r.RawQuery,
	}

	hr := &http.Request{
		Method:        r.Method,
		URL:           u,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header,
		Host:          r.Host,
		RemoteAddr:    r.RemoteAddr,
		RequestURI:    u.RequestURI(),
		ContentLength: int64(len(r.Body)),
		Body:          http.NoBody,
	}

	if len(r.Body) > 0 {
		hr.Body = io.NopCloser(bytes.NewReader(r.Body))
	}

	if r.orig != nil {
		hr.Proto, hr.ProtoMajor, hr.ProtoMinor = r.orig.Proto, r.orig.ProtoMajor, r.orig.ProtoMinor
		hr.TLS = r.orig.TLS
	}

	return hr.WithContext(r.Context())
}
