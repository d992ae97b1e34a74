package muxhandlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitalvas/harbor/mux"
)

const (
	metricsStartKey = "metrics.start"

	// UnmatchedRoute is the route label of requests no route matched.
	UnmatchedRoute = "unmatched"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer. Collectors already registered under
	// the same names are reused.
	Registerer prometheus.Registerer

	// Namespace prefixes the metric names. Defaults to "harbor".
	Namespace string

	// Buckets are the duration histogram buckets in seconds. Defaults to
	// prometheus.DefBuckets.
	Buckets []float64
}

// Metrics holds the collectors fed by MetricsMiddleware.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Size     *prometheus.CounterVec
}

// MetricsMiddleware returns a middleware pair that counts requests and
// observes their duration, labelled by method, route template and status
// code. The pre half notes the start time; the post half records the
// final response. Requests answered by a pre short-circuit are recorded
// only when the router runs post middleware after short-circuits.
func MetricsMiddleware(cfg MetricsConfig) (Pair, *Metrics, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "harbor"
	}

	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total of dispatched requests.",
		}, []string{"method", "route", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration in seconds from the first pre middleware to the last post middleware.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		Size: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_body_bytes_total",
			Help:      "The total of request body bytes read.",
		}, []string{"method", "route"}),
	}

	var err error

	if m.Requests, err = register(reg, m.Requests); err != nil {
		return Pair{}, nil, err
	}

	if m.Duration, err = register(reg, m.Duration); err != nil {
		return Pair{}, nil, err
	}

	if m.Size, err = register(reg, m.Size); err != nil {
		return Pair{}, nil, err
	}

	pre := mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		req.Set(metricsStartKey, time.Now())
		return nil, nil
	})

	post := mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		start, ok := req.Value(metricsStartKey).(time.Time)
		if !ok {
			return nil, nil
		}

		route := UnmatchedRoute
		if req.Route != nil {
			route = req.Route.GetPathTemplate()
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}

		m.Requests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		m.Duration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
		m.Size.WithLabelValues(req.Method, route).Add(float64(len(req.Body)))

		return nil, nil
	})

	return Pair{Pre: pre, Post: post}, m, nil
}

// register registers c, or returns the collector already registered under
// the same description.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}
