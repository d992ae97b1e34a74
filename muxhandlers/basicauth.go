package muxhandlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/vitalvas/harbor/mux"
)

// ErrNoAuthSource is returned when BasicAuthConfig has neither ValidateFunc
// nor Credentials configured.
var ErrNoAuthSource = errors.New("basic auth: at least one of ValidateFunc or Credentials must be set")

// BasicAuthUserKey is the side channel key holding the authenticated
// username.
const BasicAuthUserKey = "basicauth.user"

// BasicAuthConfig configures the Basic Auth middleware behaviour.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc7617
type BasicAuthConfig struct {
	// Realm is the authentication realm sent in the WWW-Authenticate header.
	// Defaults to "Restricted" when empty.
	Realm string

	// ValidateFunc is called to validate credentials dynamically.
	// Takes priority over Credentials when both are set.
	ValidateFunc func(username, password string) bool

	// Credentials is a static map of username -> password pairs, compared
	// in constant time over SHA-256 digests.
	Credentials map[string]string

	// SkipPaths are exact request paths served without authentication.
	SkipPaths []string

	// Unauthorized, when set, builds the 401 response instead of the
	// empty default. WWW-Authenticate and the 401 status are enforced on
	// whatever it returns.
	Unauthorized mux.Handler
}

// BasicAuthMiddleware returns a pre middleware that implements HTTP Basic
// Authentication per RFC 7617. Missing or invalid credentials short-circuit
// with 401 Unauthorized and an empty body. On success the username is
// stored under BasicAuthUserKey. Requests to SkipPaths pass through.
//
// It returns ErrNoAuthSource if both ValidateFunc and Credentials are nil/empty.
func BasicAuthMiddleware(cfg BasicAuthConfig) (mux.Middleware, error) {
	if cfg.ValidateFunc == nil && len(cfg.Credentials) == 0 {
		return nil, ErrNoAuthSource
	}

	realm := cfg.Realm
	if realm == "" {
		realm = "Restricted"
	}

	wwwAuthenticate := fmt.Sprintf("Basic realm=%q", realm)

	validate := cfg.ValidateFunc
	if validate == nil {
		credentials := cfg.Credentials
		validate = func(username, password string) bool {
			expected, exists := credentials[username]
			// Compare even for unknown users so timing does not reveal them.
			match := constantTimeEqual(password, expected)

			return exists && match
		}
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	deny := cfg.Unauthorized

	return mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		if _, ok := skip[req.Path]; ok {
			return nil, nil
		}

		username, password, ok := req.BasicAuth()
		if !ok || !validate(username, password) {
			return nil, unauthorized(deny, req, resp, wwwAuthenticate)
		}

		req.Set(BasicAuthUserKey, username)

		return nil, nil
	}), nil
}

// constantTimeEqual compares two strings in constant time by first hashing
// them with SHA-256, which also hides length differences.
func constantTimeEqual(a, b string) bool {
	aHash := sha256.Sum256([]byte(a))
	bHash := sha256.Sum256([]byte(b))

	return subtle.ConstantTimeCompare(aHash[:], bHash[:]) == 1
}

func unauthorized(deny mux.Handler, req *mux.Request, resp *mux.Response, wwwAuthenticate string) *mux.Response {
	out := mux.NewResponse()

	if deny != nil {
		out = resp
		if r := deny.ServeRequest(req, resp); r != nil {
			out = r
		}
	}

	out.Status = http.StatusUnauthorized
	header(out).Set("WWW-Authenticate", wwwAuthenticate)

	return out
}
