package muxhandlers

import (
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/harbor/mux"
)

const accessLogStartKey = "accesslog.start"

// AccessLogConfig configures the access log middleware.
type AccessLogConfig struct {
	// Logger receives one entry per request. Defaults to
	// logrus.StandardLogger().
	Logger logrus.FieldLogger

	// SkipPaths lists request paths that are not logged, such as health
	// checks. Paths are compared exactly.
	SkipPaths []string
}

// AccessLogMiddleware returns a middleware pair that logs one info entry
// per request with the client, request line, status, response size and
// duration. The pre half notes the start time, so register it before
// other pre middleware to include their cost.
func AccessLogMiddleware(cfg AccessLogConfig) Pair {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	skip := slices.Clone(cfg.SkipPaths)

	pre := mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if !slices.Contains(skip, req.Path) {
			req.Set(accessLogStartKey, time.Now())
		}

		return nil, nil
	})

	post := mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		start, ok := req.Value(accessLogStartKey).(time.Time)
		if !ok {
			return nil, nil
		}

		uri := req.Path
		if req.RawQuery != "" {
			uri += "?" + req.RawQuery
		}

		host := remoteHost(req)
		if host == "" {
			host = "-"
		}

		fields := logrus.Fields{
			"host":           host,
			"method":         req.Method,
			"uri":            uri,
			"status":         resp.Status,
			"response-size":  responseSize(resp),
			"referer":        req.Header.Get("Referer"),
			"user-agent":     req.Header.Get("User-Agent"),
			"requested-host": req.Host,
			"duration":       time.Since(start).Milliseconds(),
		}

		if id := RequestIDFromRequest(req); id != "" {
			fields["request-id"] = id
		}

		log.WithFields(fields).Info("access")

		return nil, nil
	})

	return Pair{Pre: pre, Post: post}
}

// responseSize returns the body size when it is known without rendering
// the body, or -1.
func responseSize(resp *mux.Response) int {
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil {
			return n
		}
	}

	switch b := resp.Body.(type) {
	case nil:
		return 0
	case mux.TextBody:
		return len(b)
	case mux.BinaryBody:
		return len(b)
	}

	return -1
}
