package muxhandlers

import (
	"context"
	"errors"
	"time"

	"github.com/vitalvas/harbor/mux"
)

// ErrInvalidTimeout is returned when TimeoutConfig.Duration is not greater
// than zero.
var ErrInvalidTimeout = errors.New("timeout: duration must be greater than zero")

const timeoutCancelKey = "timeout.cancel"

// TimeoutConfig configures the Timeout middleware behaviour.
type TimeoutConfig struct {
	// Duration is the maximum time allowed from the pre half to the end of
	// the handler. Must be greater than zero.
	Duration time.Duration
}

// TimeoutMiddleware returns a middleware pair that bounds request
// processing time. The pre half replaces the request context with one
// that expires after Duration; the post half releases it, and the router
// releases it at the end of dispatch when the post phase does not run.
//
// Handlers run synchronously, so the deadline is cooperative: a handler
// that blocks must watch req.Context(). When the deadline passes before
// the handler returns, the router answers 503 Service Unavailable and
// skips the post phase.
//
// It returns ErrInvalidTimeout if Duration is not greater than zero.
func TimeoutMiddleware(cfg TimeoutConfig) (Pair, error) {
	if cfg.Duration <= 0 {
		return Pair{}, ErrInvalidTimeout
	}

	duration := cfg.Duration

	pre := mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		ctx, cancel := context.WithTimeout(req.Context(), duration)
		req.Set(timeoutCancelKey, cancel)
		req.OnFinish(cancel)

		return req.WithContext(ctx), nil
	})

	post := mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if cancel, ok := req.Value(timeoutCancelKey).(context.CancelFunc); ok {
			cancel()
			req.Delete(timeoutCancelKey)
		}

		return nil, nil
	})

	return Pair{Pre: pre, Post: post}, nil
}
