package muxhandlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/harbor/mux"
)

func timeoutRouter(t testing.TB, d time.Duration, h mux.HandlerFunc) *mux.Router {
	t.Helper()

	r := newRouter(t)
	_, err := r.Get("/test", h)
	require.NoError(t, err)

	pair, err := TimeoutMiddleware(TimeoutConfig{Duration: d})
	require.NoError(t, err)
	require.NoError(t, pair.Register(r, ""))

	return r
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("config validation", func(t *testing.T) {
		tests := []struct {
			name    string
			config  TimeoutConfig
			wantErr error
		}{
			{"zero duration", TimeoutConfig{Duration: 0}, ErrInvalidTimeout},
			{"negative duration", TimeoutConfig{Duration: -1 * time.Second}, ErrInvalidTimeout},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := TimeoutMiddleware(tt.config)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}

		t.Run("valid duration", func(t *testing.T) {
			_, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Second})
			assert.NoError(t, err)
		})
	})

	t.Run("handler completes before timeout", func(t *testing.T) {
		var ctx context.Context

		r := timeoutRouter(t, 2*time.Second, func(req *mux.Request, _ *mux.Response) *mux.Response {
			ctx = req.Context()
			return mux.Text(http.StatusOK, "ok")
		})

		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())

		require.NotNil(t, ctx)
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)

		// Released by the post half.
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("handler exceeds timeout", func(t *testing.T) {
		r := timeoutRouter(t, 20*time.Millisecond, func(req *mux.Request, _ *mux.Response) *mux.Response {
			select {
			case <-req.Context().Done():
			case <-time.After(5 * time.Second):
			}

			return mux.Text(http.StatusOK, "late")
		})

		start := time.Now()
		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), "late")
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("released when a later pre middleware short-circuits", func(t *testing.T) {
		var ctx context.Context

		r := newRouter(t, "/test")

		pair, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Hour})
		require.NoError(t, err)
		require.NoError(t, pair.Register(r, ""))
		require.NoError(t, r.UsePre("", mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
			ctx = req.Context()
			return nil, mux.Error(http.StatusUnauthorized)
		})))

		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, ctx)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("other paths are not limited", func(t *testing.T) {
		r := newRouter(t)

		var hasDeadline bool
		_, err := r.Get("/free", func(req *mux.Request, _ *mux.Response) *mux.Response {
			_, hasDeadline = req.Context().Deadline()
			return nil
		})
		require.NoError(t, err)

		pair, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Second})
		require.NoError(t, err)
		require.NoError(t, pair.Register(r, "/api"))

		w := serve(r, httptest.NewRequest(http.MethodGet, "/free", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, hasDeadline)
	})

	t.Run("cancel func does not leak into the side channel", func(t *testing.T) {
		var keys []string

		r := newRouter(t)
		_, err := r.Get("/test", okHandler)
		require.NoError(t, err)

		pair, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Second})
		require.NoError(t, err)
		require.NoError(t, pair.Register(r, ""))
		require.NoError(t, r.UsePost("", mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
			keys = req.Keys()
			return nil, nil
		})))

		serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Empty(t, keys)
	})
}

// --- Benchmarks ---

func BenchmarkTimeoutMiddleware(b *testing.B) {
	r := timeoutRouter(b, 5*time.Second, okHandler)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	for b.Loop() {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
}
