package muxhandlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/vitalvas/harbor/mux"
)

var (
	// ErrNoAllowedTypes is returned when ContentTypeCheckConfig.AllowedTypes
	// is empty.
	ErrNoAllowedTypes = errors.New("content type check: at least one allowed content type is required")

	// ErrInvalidAllowedType is returned for an AllowedTypes entry that is
	// not a type/subtype pair.
	ErrInvalidAllowedType = errors.New("content type check: invalid allowed content type")
)

// ContentTypeCheckConfig configures the content type check middleware.
type ContentTypeCheckConfig struct {
	// AllowedTypes lists the acceptable media types. Matching is
	// case-insensitive and ignores parameters. An entry may use "*" as the
	// subtype ("text/*") or a structured suffix ("application/*+json").
	// Required.
	AllowedTypes []string

	// Methods are the request methods that are checked. Defaults to POST,
	// PUT and PATCH.
	Methods []string

	// AllowEmptyBody lets requests without a body through regardless of
	// their Content-Type.
	AllowEmptyBody bool
}

// mediaRange is one parsed AllowedTypes entry.
type mediaRange struct {
	typ    string
	sub    string // "*" matches any subtype
	suffix string // "+json" for "*+json"
}

func (m mediaRange) matches(mediaType string) bool {
	typ, sub, ok := strings.Cut(mediaType, "/")
	if !ok || typ != m.typ {
		return false
	}

	switch {
	case m.suffix != "":
		return strings.HasSuffix(sub, m.suffix)
	case m.sub == "*":
		return true
	}

	return sub == m.sub
}

func parseMediaRange(s string) (mediaRange, error) {
	typ, sub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "/")
	if !ok || typ == "" || sub == "" || typ == "*" {
		return mediaRange{}, fmt.Errorf("%w: %q", ErrInvalidAllowedType, s)
	}

	r := mediaRange{typ: typ, sub: sub}
	if rest, found := strings.CutPrefix(sub, "*+"); found && rest != "" {
		r.suffix = "+" + rest
	}

	return r, nil
}

// ContentTypeCheckMiddleware returns a pre middleware that validates the
// Content-Type of requests with a checked method. It short-circuits with
// 415 Unsupported Media Type when the header is missing, malformed or
// matches none of the allowed types.
//
// It returns ErrNoAllowedTypes if AllowedTypes is empty and
// ErrInvalidAllowedType for an unparsable entry.
func ContentTypeCheckMiddleware(cfg ContentTypeCheckConfig) (mux.Middleware, error) {
	if len(cfg.AllowedTypes) == 0 {
		return nil, ErrNoAllowedTypes
	}

	ranges := make([]mediaRange, 0, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		r, err := parseMediaRange(t)
		if err != nil {
			return nil, err
		}

		ranges = append(ranges, r)
	}

	methods := cfg.Methods
	if methods == nil {
		methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch}
	}

	checked := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		checked[strings.ToUpper(m)] = struct{}{}
	}

	allowEmpty := cfg.AllowEmptyBody

	return mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if _, ok := checked[req.Method]; !ok {
			return nil, nil
		}

		if allowEmpty && len(req.Body) == 0 {
			return nil, nil
		}

		mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil {
			return nil, mux.Error(http.StatusUnsupportedMediaType)
		}

		for _, r := range ranges {
			if r.matches(mediaType) {
				return nil, nil
			}
		}

		return nil, mux.Error(http.StatusUnsupportedMediaType)
	}), nil
}
