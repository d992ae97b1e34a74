package muxhandlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vitalvas/harbor/mux"
)

// ErrNoCacheControlRules is returned when CacheControlConfig has neither
// Rules nor ETag configured.
var ErrNoCacheControlRules = errors.New("cache control: at least one rule is required")

// CacheControlRule maps a Content-Type prefix to Cache-Control and Expires
// header values.
type CacheControlRule struct {
	// ContentType is a content type prefix to match against the response
	// Content-Type (e.g. "image/", "application/json"). Matching is
	// case-insensitive.
	ContentType string

	// Value is the Cache-Control header value to set when this rule
	// matches (e.g. "public, max-age=86400").
	Value string

	// Expires is the duration added to the current time to compute the
	// Expires header. Zero produces a date in the past (the epoch
	// relative to now). A negative duration sets no Expires header.
	Expires time.Duration
}

// CacheControlConfig configures the CacheControl middleware behaviour.
type CacheControlConfig struct {
	// Rules is the ordered list of content type rules. The first matching
	// rule wins.
	Rules []CacheControlRule

	// DefaultValue is the Cache-Control header value for responses that
	// don't match any rule. When empty, no header is set for unmatched
	// types.
	DefaultValue string

	// DefaultExpires applies to responses that don't match any rule, with
	// the same meaning as CacheControlRule.Expires.
	DefaultExpires time.Duration

	// ETag adds a strong ETag computed with xxhash over the rendered body
	// of 200 responses and answers a matching If-None-Match with 304 Not
	// Modified. Streamed bodies are skipped.
	ETag bool
}

type cacheControlRule struct {
	contentType string
	value       string
	expires     time.Duration
	hasExpires  bool
}

// CacheControlMiddleware returns a post middleware that sets Cache-Control
// and Expires response headers based on the response Content-Type. Rules
// are evaluated in order; the first rule whose ContentType prefix matches
// wins. Headers already set by the handler are left alone.
//
// It returns ErrNoCacheControlRules if Rules is empty and ETag is off.
func CacheControlMiddleware(cfg CacheControlConfig) (mux.Middleware, error) {
	if len(cfg.Rules) == 0 && !cfg.ETag {
		return nil, ErrNoCacheControlRules
	}

	rules := make([]cacheControlRule, len(cfg.Rules))
	for i, r := range cfg.Rules {
		rules[i] = cacheControlRule{
			contentType: strings.ToLower(r.ContentType),
			value:       r.Value,
			expires:     r.Expires,
			hasExpires:  r.Expires >= 0,
		}
	}

	fallback := cacheControlRule{
		value:      cfg.DefaultValue,
		expires:    cfg.DefaultExpires,
		hasExpires: cfg.DefaultExpires >= 0 && (len(cfg.Rules) > 0 || cfg.DefaultValue != ""),
	}

	etag := cfg.ETag

	return mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		h := header(resp)

		ccSet := h.Get("Cache-Control") != ""
		exSet := h.Get("Expires") != ""

		if !ccSet || !exSet {
			ct := strings.ToLower(contentType(resp))

			rule := fallback

			for _, r := range rules {
				if strings.HasPrefix(ct, r.contentType) {
					rule = r
					break
				}
			}

			if !ccSet && rule.value != "" {
				h.Set("Cache-Control", rule.value)
			}

			if !exSet && rule.hasExpires {
				h.Set("Expires", time.Now().UTC().Add(rule.expires).Format(http.TimeFormat))
			}
		}

		if etag {
			return nil, applyETag(req, resp)
		}

		return nil, nil
	}), nil
}

// applyETag sets the ETag of a 200 response and returns a 304 replacement
// when the request's If-None-Match matches it.
func applyETag(req *mux.Request, resp *mux.Response) *mux.Response {
	if resp.Status != http.StatusOK || !renderable(resp) {
		return nil
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil
	}

	tag := resp.Header.Get("ETag")
	if tag == "" {
		data, err := resp.BodyBytes()
		if err != nil {
			return nil
		}

		tag = fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
		resp.Header.Set("ETag", tag)
	}

	if !etagMatches(req.Header.Get("If-None-Match"), tag) {
		return nil
	}

	// RFC 9110 Section 15.4.5: a 304 repeats the validators and caching
	// headers of the 200 it stands for.
	notModified := mux.NewResponse()
	notModified.Status = http.StatusNotModified

	for _, name := range []string{"ETag", "Cache-Control", "Expires", "Vary", "Content-Location", "Date"} {
		if v, ok := resp.Header[name]; ok {
			notModified.Header[name] = v
		}
	}

	return notModified
}

// etagMatches implements the weak comparison of If-None-Match
// (RFC 9110 Section 13.1.2).
func etagMatches(ifNoneMatch, tag string) bool {
	if ifNoneMatch == "" {
		return false
	}

	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}

	tag = strings.TrimPrefix(tag, "W/")

	for candidate := range strings.SplitSeq(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag {
			return true
		}
	}

	return false
}
