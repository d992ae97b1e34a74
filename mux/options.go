package mux

import (
	"github.com/sirupsen/logrus"

	"github.com/vitalvas/harbor/reqbody"
)

// Option configures a Router.
type Option func(*options)

type options struct {
	logger                logrus.FieldLogger
	maxBodyBytes          int64
	maxParts              int
	postAfterShortCircuit bool
}

func defaultOptions() options {
	return options{logger: logrus.StandardLogger()}
}

// WithLogger sets the logger for recovered panics, registration errors and
// body decoding diagnostics. Defaults to logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxBodyBytes limits the request body read by ServeHTTP. Larger
// bodies are answered with 413 Content Too Large. Zero means no limit.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		o.maxBodyBytes = n
	}
}

// WithMaxParts caps the number of multipart parts decoded per request.
// Zero selects reqbody.DefaultMaxParts; negative disables the cap.
func WithMaxParts(n int) Option {
	return func(o *options) {
		o.maxParts = n
	}
}

// WithPostAfterShortCircuit makes post middleware run on responses
// produced by a pre middleware short-circuit. By default it does not.
func WithPostAfterShortCircuit(enabled bool) Option {
	return func(o *options) {
		o.postAfterShortCircuit = enabled
	}
}

func (o options) decodeOptions(logger logrus.FieldLogger) reqbody.Options {
	return reqbody.Options{MaxParts: o.maxParts, Logger: logger}
}
