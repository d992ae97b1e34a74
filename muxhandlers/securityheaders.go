package muxhandlers

import (
	"errors"
	"strconv"

	"github.com/vitalvas/harbor/mux"
)

// ErrInvalidFrameOption is returned when SecurityHeadersConfig.FrameOption is
// not one of the valid values: "DENY", "SAMEORIGIN", or empty string.
var ErrInvalidFrameOption = errors.New("security headers: frame option must be DENY, SAMEORIGIN, or empty")

// SecurityHeadersConfig configures the Security Headers middleware behaviour.
type SecurityHeadersConfig struct {
	// DisableContentTypeNosniff disables the X-Content-Type-Options: nosniff
	// header. The header is set by default (when false).
	DisableContentTypeNosniff bool

	// FrameOption sets the X-Frame-Options header value.
	// Valid values are "DENY", "SAMEORIGIN", or empty string to skip.
	// Defaults to "DENY".
	FrameOption string

	// ReferrerPolicy sets the Referrer-Policy header value.
	// Defaults to "strict-origin-when-cross-origin".
	ReferrerPolicy string

	// HSTSMaxAge sets the max-age directive for the Strict-Transport-Security
	// header in seconds. When zero, the header is not set. It is only sent
	// over https.
	HSTSMaxAge int

	// HSTSIncludeSubDomains appends the includeSubDomains directive to the
	// Strict-Transport-Security header. Only effective when HSTSMaxAge > 0.
	HSTSIncludeSubDomains bool

	// HSTSPreload appends the preload directive to the
	// Strict-Transport-Security header. Only effective when HSTSMaxAge > 0.
	HSTSPreload bool

	// CrossOriginOpenerPolicy sets the Cross-Origin-Opener-Policy header.
	// When empty, the header is not set.
	CrossOriginOpenerPolicy string

	// CrossOriginResourcePolicy sets the Cross-Origin-Resource-Policy
	// header, e.g. "same-origin". When empty, the header is not set.
	CrossOriginResourcePolicy string

	// ContentSecurityPolicy sets the Content-Security-Policy header.
	// When empty, the header is not set.
	ContentSecurityPolicy string

	// PermissionsPolicy sets the Permissions-Policy header.
	// When empty, the header is not set.
	PermissionsPolicy string
}

// SecurityHeadersMiddleware returns a post middleware that sets common
// security response headers. Headers the handler already set are kept.
// Strict-Transport-Security is only sent on requests whose scheme is
// https (RFC 6797 Section 7.2), so register ProxyHeadersMiddleware first
// when TLS terminates at a proxy.
//
// It returns ErrInvalidFrameOption if FrameOption is set to a value other than
// "DENY", "SAMEORIGIN", or empty string.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) (mux.Middleware, error) {
	frame := cfg.FrameOption

	switch frame {
	case "":
		frame = "DENY"
	case "DENY", "SAMEORIGIN":
	default:
		return nil, ErrInvalidFrameOption
	}

	referrer := cfg.ReferrerPolicy
	if referrer == "" {
		referrer = "strict-origin-when-cross-origin"
	}

	var headers [][2]string

	if !cfg.DisableContentTypeNosniff {
		headers = append(headers, [2]string{"X-Content-Type-Options", "nosniff"})
	}

	headers = append(headers,
		[2]string{"X-Frame-Options", frame},
		[2]string{"Referrer-Policy", referrer},
	)

	for _, kv := range [][2]string{
		{"Cross-Origin-Opener-Policy", cfg.CrossOriginOpenerPolicy},
		{"Cross-Origin-Resource-Policy", cfg.CrossOriginResourcePolicy},
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	} {
		if kv[1] != "" {
			headers = append(headers, kv)
		}
	}

	hsts := hstsValue(cfg)

	return mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		h := header(resp)

		for _, kv := range headers {
			if h.Get(kv[0]) == "" {
				h.Set(kv[0], kv[1])
			}
		}

		if hsts != "" && req.Scheme == "https" && h.Get("Strict-Transport-Security") == "" {
			h.Set("Strict-Transport-Security", hsts)
		}

		return nil, nil
	}), nil
}

func hstsValue(cfg SecurityHeadersConfig) string {
	if cfg.HSTSMaxAge <= 0 {
		return ""
	}

	v := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)

	if cfg.HSTSIncludeSubDomains {
		v += "; includeSubDomains"
	}

	if cfg.HSTSPreload {
		v += "; preload"
	}

	return v
}
