package muxhandlers

import (
	"errors"
	"net/http"

	"github.com/vitalvas/harbor/mux"
)

// ErrInvalidMaxSize is returned when RequestSizeLimitConfig.MaxBytes is not
// greater than zero.
var ErrInvalidMaxSize = errors.New("request size limit: max size must be greater than zero")

// RequestSizeLimitConfig configures the Request Size Limit middleware behaviour.
type RequestSizeLimitConfig struct {
	// MaxBytes is the maximum allowed request body size in bytes.
	// Must be greater than zero.
	MaxBytes int64
}

// RequestSizeLimitMiddleware returns a pre middleware that short-circuits
// with 413 Content Too Large when the request body is longer than MaxBytes.
// The body has already been read when pre middleware runs, so this
// middleware scopes limits to path prefixes; mux.WithMaxBodyBytes bounds
// what the router reads in the first place.
//
// It returns ErrInvalidMaxSize if MaxBytes is not greater than zero.
func RequestSizeLimitMiddleware(cfg RequestSizeLimitConfig) (mux.Middleware, error) {
	if cfg.MaxBytes <= 0 {
		return nil, ErrInvalidMaxSize
	}

	maxBytes := cfg.MaxBytes

	return mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if int64(len(req.Body)) > maxBytes {
			resp := mux.Error(http.StatusRequestEntityTooLarge)
			resp.Header.Set("Connection", "close")

			return nil, resp
		}

		return nil, nil
	}), nil
}
