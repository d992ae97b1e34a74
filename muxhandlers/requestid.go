package muxhandlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/vitalvas/harbor/mux"
)

// RequestIDKey is the side channel key holding the request ID.
const RequestIDKey = "requestid"

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored in the context by
// RequestIDMiddleware. Returns an empty string if no ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}

	return ""
}

// RequestIDFromRequest returns the request ID stored in the side channel
// by RequestIDMiddleware, or an empty string.
func RequestIDFromRequest(req *mux.Request) string {
	id, _ := req.Value(RequestIDKey).(string)
	return id
}

// RequestIDConfig configures the Request ID middleware behaviour.
type RequestIDConfig struct {
	// HeaderName overrides the header used to propagate the request ID.
	// Defaults to "X-Request-ID" when empty.
	HeaderName string

	// GenerateFunc is an optional callback that returns a new unique ID.
	// It receives the current request. Defaults to GenerateUUIDv4.
	GenerateFunc func(req *mux.Request) string

	// TrustIncoming, when true, reuses an existing request ID from the
	// incoming request header instead of generating a new one.
	TrustIncoming bool
}

// RequestIDMiddleware returns a middleware pair that generates or
// propagates a request ID. The pre half sets the ID on the request header,
// the request context and the side channel; the post half copies it to
// the final response, whichever handler produced it.
func RequestIDMiddleware(cfg RequestIDConfig) Pair {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-Request-ID"
	}

	generate := cfg.GenerateFunc
	if generate == nil {
		generate = GenerateUUIDv4
	}

	trustIncoming := cfg.TrustIncoming

	pre := mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		id := ""
		if trustIncoming {
			id = req.Header.Get(headerName)
		}

		if id == "" {
			id = generate(req)
		}

		if id == "" {
			return nil, nil
		}

		req.Header.Set(headerName, id)
		req.Set(RequestIDKey, id)

		if resp != nil {
			header(resp).Set(headerName, id)
		}

		return req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)), nil
	})

	post := mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		if id := RequestIDFromRequest(req); id != "" {
			header(resp).Set(headerName, id)
		}

		return nil, nil
	})

	return Pair{Pre: pre, Post: post}
}

// GenerateUUIDv4 returns a new UUID v4 string.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.4
func GenerateUUIDv4(_ *mux.Request) string {
	return uuid.New().String()
}

// GenerateUUIDv7 returns a new UUID v7 string. UUIDs are time-ordered:
// IDs generated later sort lexicographically after earlier ones.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.7
func GenerateUUIDv7(_ *mux.Request) string {
	return uuid.Must(uuid.NewV7()).String()
}
