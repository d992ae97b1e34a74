package mux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/harbor/reqbody"
)

type ctxKey struct{}

func quietRouter(opts ...Option) (*Router, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewRouter(append([]Option{WithLogger(logger)}, opts...)...), hook
}

func serve(r *Router, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRouterServeHTTP(t *testing.T) {
	t.Run("routes with params", func(t *testing.T) {
		r, _ := quietRouter()
		_, err := r.Get("/users/{id}", func(req *Request, _ *Response) *Response {
			return Text(http.StatusOK, "user "+req.Param("id"))
		})
		require.NoError(t, err)

		w := serve(r, http.MethodGet, "/users/42", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user 42", w.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("registration order tie-break", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/users/static", func(_ *Request, _ *Response) *Response {
			return Text(http.StatusOK, "static")
		})
		_, _ = r.Get("/users/{id}", func(_ *Request, _ *Response) *Response {
			return Text(http.StatusOK, "param")
		})

		assert.Equal(t, "static", serve(r, http.MethodGet, "/users/static", "").Body.String())
		assert.Equal(t, "param", serve(r, http.MethodGet, "/users/7", "").Body.String())
	})

	t.Run("default not found", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/a", func(_ *Request, _ *Response) *Response { return nil })

		w := serve(r, http.MethodGet, "/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "404 page not found\n", w.Body.String())
	})

	t.Run("method mismatch is not found by default", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/a", func(_ *Request, _ *Response) *Response { return nil })

		w := serve(r, http.MethodPost, "/a", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Header().Get("Allow"))
	})

	t.Run("method not allowed when enabled", func(t *testing.T) {
		r, _ := quietRouter()
		r.MethodNotAllowedHandler = HandlerFunc(MethodNotAllowed)
		_, _ = r.Get("/a", func(_ *Request, _ *Response) *Response { return nil })
		_, _ = r.Put("/a", func(_ *Request, _ *Response) *Response { return nil })

		w := serve(r, http.MethodPost, "/a", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "GET, PUT", w.Header().Get("Allow"))

		w = serve(r, http.MethodPost, "/b", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("custom not found handler", func(t *testing.T) {
		r, _ := quietRouter()
		r.NotFoundHandler = HandlerFunc(func(req *Request, _ *Response) *Response {
			return Text(http.StatusNotFound, "nothing at "+req.Path)
		})

		w := serve(r, http.MethodGet, "/x", "")
		assert.Equal(t, "nothing at /x", w.Body.String())
	})

	t.Run("handler returning nil keeps response", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/", func(_ *Request, resp *Response) *Response {
			resp.Status = http.StatusAccepted
			resp.Header.Set("X-Handler", "yes")
			resp.Body = TextBody("kept")
			return nil
		})

		w := serve(r, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "yes", w.Header().Get("X-Handler"))
		assert.Equal(t, "kept", w.Body.String())
	})

	t.Run("any method route", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Any("/echo", func(req *Request, _ *Response) *Response {
			return Text(http.StatusOK, req.Method)
		})

		assert.Equal(t, "PATCH", serve(r, http.MethodPatch, "/echo", "").Body.String())
		assert.Equal(t, "DELETE", serve(r, http.MethodDelete, "/echo", "").Body.String())
	})

	t.Run("body too large", func(t *testing.T) {
		r, _ := quietRouter(WithMaxBodyBytes(4))
		called := false
		_, _ = r.Post("/", func(_ *Request, _ *Response) *Response {
			called = true
			return nil
		})

		w := serve(r, http.MethodPost, "/", "0123456789")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.False(t, called)

		w = serve(r, http.MethodPost, "/", "0123")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
	})

	t.Run("invalid header values are dropped", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/", func(_ *Request, resp *Response) *Response {
			resp.Header["Bad Name"] = []string{"x"}
			resp.Header["X-Bad-Value"] = []string{"a\r\nInjected: 1"}
			resp.Header.Set("X-Good", "ok")
			return nil
		})

		w := serve(r, http.MethodGet, "/", "")
		assert.Equal(t, "ok", w.Header().Get("X-Good"))
		assert.Empty(t, w.Header().Get("X-Bad-Value"))
		assert.Empty(t, w.Header().Get("Injected"))
		assert.NotContains(t, w.Header(), "Bad Name")
	})
}

func TestRouterDispatchPhases(t *testing.T) {
	t.Run("pre then handler then post", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string

		require.NoError(t, r.UsePre("/", recordingMiddleware(&order, "A")))
		require.NoError(t, r.UsePre("/", recordingMiddleware(&order, "B")))
		require.NoError(t, r.UsePost("/", recordingMiddleware(&order, "P")))
		_, _ = r.Get("/x", func(_ *Request, _ *Response) *Response {
			order = append(order, "H")
			return nil
		})

		serve(r, http.MethodGet, "/x", "")
		assert.Equal(t, []string{"A", "B", "H", "P"}, order)
	})

	t.Run("short-circuit skips handler, later pre and post", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string

		require.NoError(t, r.UsePre("/", recordingMiddleware(&order, "A")))
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			order = append(order, "deny")
			return nil, Text(http.StatusForbidden, "denied")
		})))
		require.NoError(t, r.UsePre("/", recordingMiddleware(&order, "B")))
		require.NoError(t, r.UsePost("/", recordingMiddleware(&order, "P")))
		_, _ = r.Get("/x", func(_ *Request, _ *Response) *Response {
			order = append(order, "H")
			return nil
		})

		w := serve(r, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "denied", w.Body.String())
		assert.Equal(t, []string{"A", "deny"}, order)
	})

	t.Run("post after short-circuit when enabled", func(t *testing.T) {
		r, _ := quietRouter(WithPostAfterShortCircuit(true))
		var order []string

		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			order = append(order, "deny")
			return nil, Text(http.StatusForbidden, "denied")
		})))
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			order = append(order, "P")
			resp.Header.Set("X-Post", "ran")
			return nil, nil
		})))

		w := serve(r, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "ran", w.Header().Get("X-Post"))
		assert.Equal(t, []string{"deny", "P"}, order)
	})

	t.Run("finish hooks run after a short-circuit", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string

		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(req *Request, _ *Response) (*Request, *Response) {
			req.OnFinish(func() { order = append(order, "first") })

			return req.WithContext(context.WithValue(req.Context(), ctxKey{}, "v")), nil
		})))
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(req *Request, _ *Response) (*Request, *Response) {
			req.OnFinish(func() { order = append(order, "second") })

			return nil, Text(http.StatusUnauthorized, "no")
		})))
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			order = append(order, "post")
			return nil, nil
		})))

		w := serve(r, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, []string{"second", "first"}, order)
	})

	t.Run("finish hooks run once after the post phase", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string

		_, err := r.Get("/x", func(req *Request, _ *Response) *Response {
			req.OnFinish(func() { order = append(order, "finish") })
			return Text(http.StatusOK, "ok")
		})
		require.NoError(t, err)
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			order = append(order, "post")
			return nil, nil
		})))

		req, err := NewRequest(t.Context(), http.MethodGet, "/x", nil, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, r.Dispatch(req).Status)
		assert.Equal(t, []string{"post", "finish"}, order)

		req.runFinish()
		assert.Equal(t, []string{"post", "finish"}, order)
	})

	t.Run("not found keeps headers set by pre middleware", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			resp.Header.Set("Access-Control-Allow-Origin", "*")
			return nil, nil
		})))

		w := serve(r, http.MethodGet, "/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "404 page not found\n", w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("post runs on not found", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			resp.Header.Set("X-Post", "ran")
			return nil, nil
		})))

		w := serve(r, http.MethodGet, "/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "ran", w.Header().Get("X-Post"))
	})

	t.Run("pre headers reach the handler response", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			resp.Header.Set("X-Pre", "1")
			return nil, nil
		})))
		_, _ = r.Get("/", func(_ *Request, _ *Response) *Response { return nil })

		assert.Equal(t, "1", serve(r, http.MethodGet, "/", "").Header().Get("X-Pre"))
	})

	t.Run("pre can rewrite method before routing", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(req *Request, _ *Response) (*Request, *Response) {
			req.Method = http.MethodDelete
			return req, nil
		})))
		_, _ = r.Delete("/item", func(_ *Request, _ *Response) *Response {
			return Text(http.StatusOK, "deleted")
		})

		assert.Equal(t, "deleted", serve(r, http.MethodPost, "/item", "").Body.String())
	})

	t.Run("side channel flows downstream", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(req *Request, _ *Response) (*Request, *Response) {
			req.Set("user", "alice")
			return nil, nil
		})))
		_, _ = r.Get("/", func(req *Request, _ *Response) *Response {
			return Text(http.StatusOK, req.Value("user").(string))
		})

		assert.Equal(t, "alice", serve(r, http.MethodGet, "/", "").Body.String())
	})

	t.Run("scoped middleware", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string
		require.NoError(t, r.UsePre("/api", recordingMiddleware(&order, "api")))
		_, _ = r.Any("/*path", func(_ *Request, _ *Response) *Response { return nil })

		serve(r, http.MethodGet, "/web/index", "")
		serve(r, http.MethodGet, "/api/users", "")
		serve(r, http.MethodGet, "/apiville", "")
		assert.Equal(t, []string{"api", "api"}, order)
	})
}

func TestRouterRecovery(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Router)
	}{
		{"handler", func(r *Router) {
			_, _ = r.Get("/", func(_ *Request, _ *Response) *Response { panic("boom") })
		}},
		{"pre middleware", func(r *Router) {
			_ = r.UsePre("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) { panic("boom") }))
			_, _ = r.Get("/", func(_ *Request, _ *Response) *Response { return nil })
		}},
		{"post middleware", func(r *Router) {
			_ = r.UsePost("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) { panic("boom") }))
			_, _ = r.Get("/", func(_ *Request, _ *Response) *Response { return nil })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, hook := quietRouter()
			tt.setup(r)

			w := serve(r, http.MethodGet, "/", "")
			assert.Equal(t, http.StatusInternalServerError, w.Code)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
			assert.Contains(t, entry.Message, "boom")
		})
	}

	t.Run("other requests are unaffected", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/panic", func(_ *Request, _ *Response) *Response { panic("boom") })
		_, _ = r.Get("/ok", func(_ *Request, _ *Response) *Response { return Text(http.StatusOK, "ok") })

		assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/panic", "").Code)
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ok", "").Code)
	})
}

func TestRouterFreeze(t *testing.T) {
	t.Run("collects registration errors", func(t *testing.T) {
		r, _ := quietRouter()

		_, err := r.Get("/a/*x/b", func(_ *Request, _ *Response) *Response { return nil })
		assert.ErrorIs(t, err, ErrInvalidPattern)

		_, err = r.Handle("BAD METHOD", "/", HandlerFunc(func(_ *Request, _ *Response) *Response { return nil }))
		assert.ErrorIs(t, err, ErrInvalidMethod)

		assert.ErrorIs(t, r.Use(Phase(9), "/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			return nil, nil
		})), ErrInvalidPhase)

		err = r.Freeze()
		assert.ErrorIs(t, err, ErrInvalidPattern)
		assert.ErrorIs(t, err, ErrInvalidMethod)
		assert.ErrorIs(t, err, ErrInvalidPhase)
		assert.Equal(t, err, r.Freeze())
	})

	t.Run("router with errors answers 500", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Get("/{}", func(_ *Request, _ *Response) *Response { return nil })
		_, _ = r.Get("/ok", func(_ *Request, _ *Response) *Response { return nil })

		assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/ok", "").Code)
	})

	t.Run("registration after freeze", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.Freeze())

		_, err := r.Get("/late", func(_ *Request, _ *Response) *Response { return nil })
		assert.ErrorIs(t, err, ErrFrozen)
		assert.ErrorIs(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			return nil, nil
		})), ErrFrozen)
		assert.NoError(t, r.Freeze())
	})

	t.Run("serving freezes implicitly", func(t *testing.T) {
		r, _ := quietRouter()
		serve(r, http.MethodGet, "/", "")

		_, err := r.Get("/late", func(_ *Request, _ *Response) *Response { return nil })
		assert.ErrorIs(t, err, ErrFrozen)
	})

	t.Run("nil handler func", func(t *testing.T) {
		r, _ := quietRouter()
		_, err := r.Get("/", nil)
		assert.ErrorIs(t, err, ErrNilHandler)
	})
}

func TestRouterDispatch(t *testing.T) {
	t.Run("transport agnostic", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Post("/items/{id:int}", func(req *Request, _ *Response) *Response {
			return JSON(http.StatusCreated, map[string]any{
				"id":   req.Param("id"),
				"name": req.Form.Get("name"),
			})
		})

		header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
		req, err := NewRequest(t.Context(), http.MethodPost, "/items/5", header, []byte("name=box"))
		require.NoError(t, err)

		resp := r.Dispatch(req)
		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, JSONBody{Value: map[string]any{"id": "5", "name": "box"}}, resp.Body)
		assert.NotNil(t, req.Route)
	})

	t.Run("decode error is handed to the handler", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Post("/", func(req *Request, _ *Response) *Response {
			if req.DecodeErr != nil {
				return Text(http.StatusUnprocessableEntity, req.DecodeErr.Error())
			}
			return nil
		})

		header := http.Header{"Content-Type": {"application/json"}}
		req, err := NewRequest(t.Context(), http.MethodPost, "/", header, []byte("{bad"))
		require.NoError(t, err)

		resp := r.Dispatch(req)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
		assert.ErrorIs(t, req.DecodeErr, reqbody.ErrMalformedBody)
	})

	t.Run("cancelled context stops dispatch", func(t *testing.T) {
		r, _ := quietRouter()
		called := false
		_, _ = r.Get("/", func(_ *Request, _ *Response) *Response {
			called = true
			return nil
		})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		req, err := NewRequest(ctx, http.MethodGet, "/", nil, nil)
		require.NoError(t, err)

		resp := r.Dispatch(req)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
		assert.False(t, called)
	})

	t.Run("cancellation during handler skips post", func(t *testing.T) {
		r, _ := quietRouter()
		postRan := false
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) {
			postRan = true
			return nil, nil
		})))

		ctx, cancel := context.WithCancel(t.Context())
		_, _ = r.Get("/", func(_ *Request, _ *Response) *Response {
			cancel()
			return nil
		})

		req, err := NewRequest(ctx, http.MethodGet, "/", nil, nil)
		require.NoError(t, err)

		resp := r.Dispatch(req)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
		assert.False(t, postRan)
	})
}

func TestRouterMatch(t *testing.T) {
	r, _ := quietRouter()
	_, _ = r.Get("/a/{id}", func(_ *Request, _ *Response) *Response { return nil })

	route, params, err := r.Match(http.MethodGet, "/a/1")
	require.NoError(t, err)
	assert.Equal(t, "/a/{id}", route.GetPathTemplate())
	assert.Equal(t, "1", params.Get("id"))

	_, _, err = r.Match(http.MethodPost, "/a/1")
	assert.ErrorIs(t, err, ErrMethodMismatch)

	_, _, err = r.Match(http.MethodGet, "/b")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{http.MethodGet}, r.Allowed("/a/1"))
	assert.Len(t, r.Routes(), 1)
}

// --- Benchmarks ---

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter(WithLogger(logrus.New()))
	_ = r.UsePre("/", MiddlewareFunc(func(_ *Request, _ *Response) (*Request, *Response) { return nil, nil }))
	_, _ = r.Get("/users/{id}", func(req *Request, _ *Response) *Response {
		return Text(http.StatusOK, req.Param("id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)

	for b.Loop() {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
}
