package muxhandlers

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vitalvas/harbor/mux"
)

var (
	// ErrInvalidRate is returned when RateLimitConfig.RequestsPerSecond is
	// not greater than zero.
	ErrInvalidRate = errors.New("rate limit: requests per second must be greater than zero")

	// ErrInvalidBurst is returned when RateLimitConfig.Burst is negative.
	ErrInvalidBurst = errors.New("rate limit: burst must not be negative")
)

// DefaultRateLimitIdleTTL is how long an idle client bucket is kept.
const DefaultRateLimitIdleTTL = 10 * time.Minute

// RateLimitConfig configures the RateLimit middleware behaviour.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per key.
	RequestsPerSecond float64

	// Burst is the bucket size. Zero selects RequestsPerSecond rounded up.
	Burst int

	// KeyFunc returns the bucket key of a request. Defaults to the host
	// part of req.RemoteAddr; register ProxyHeadersMiddleware first when
	// the service runs behind a proxy.
	KeyFunc func(req *mux.Request) string

	// IdleTTL evicts buckets not used for this long. Defaults to
	// DefaultRateLimitIdleTTL.
	IdleTTL time.Duration

	// Logger receives a debug entry for every rejected request.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

type rateLimiter struct {
	limit   rate.Limit
	burst   int
	key     func(*mux.Request) string
	idleTTL time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// RateLimitMiddleware returns a pre middleware that applies a token bucket
// per client key and short-circuits with 429 Too Many Requests, carrying
// Retry-After, once a bucket is empty.
func RateLimitMiddleware(cfg RateLimitConfig) (mux.Middleware, error) {
	rl, err := newRateLimiter(cfg)
	if err != nil {
		return nil, err
	}

	return mux.MiddlewareFunc(rl.process), nil
}

func newRateLimiter(cfg RateLimitConfig) (*rateLimiter, error) {
	if cfg.RequestsPerSecond <= 0 || math.IsInf(cfg.RequestsPerSecond, 0) || math.IsNaN(cfg.RequestsPerSecond) {
		return nil, ErrInvalidRate
	}

	if cfg.Burst < 0 {
		return nil, ErrInvalidBurst
	}

	rl := &rateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		key:     cfg.KeyFunc,
		idleTTL: cfg.IdleTTL,
		log:     cfg.Logger,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}

	if rl.burst == 0 {
		rl.burst = max(1, int(math.Ceil(cfg.RequestsPerSecond)))
	}

	if rl.key == nil {
		rl.key = remoteHost
	}

	if rl.idleTTL <= 0 {
		rl.idleTTL = DefaultRateLimitIdleTTL
	}

	if rl.log == nil {
		rl.log = logrus.StandardLogger()
	}

	return rl, nil
}

func (rl *rateLimiter) process(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
	key := rl.key(req)
	now := rl.now()

	lim := rl.limiter(key, now)
	if lim.AllowN(now, 1) {
		return nil, nil
	}

	retry := rl.retryAfter(lim, now)

	rl.log.WithFields(logrus.Fields{
		"key":    key,
		"method": req.Method,
		"path":   req.Path,
	}).Debug("rate limit: rejecting request")

	resp := mux.Error(http.StatusTooManyRequests)
	resp.Header.Set("Retry-After", strconv.Itoa(retry))
	resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
	resp.Header.Set("X-RateLimit-Remaining", "0")

	return nil, resp
}

// limiter returns the bucket for key, creating it on first use, and
// evicts idle buckets at most once per IdleTTL.
func (rl *rateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}

		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}

	b.seen = now

	return b.limiter
}

// retryAfter returns the whole seconds until one token is available,
// at least 1.
func (rl *rateLimiter) retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}

	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return max(1, int(math.Ceil(delay.Seconds())))
}

// remoteHost returns the host of req.RemoteAddr, or the whole value when
// it carries no port.
func remoteHost(req *mux.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}

	return host
}
