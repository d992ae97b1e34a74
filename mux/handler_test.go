package mux

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHandler(t *testing.T) {
	t.Run("buffers net/http output", func(t *testing.T) {
		r, _ := quietRouter()
		_, err := r.Handle(http.MethodGet, "/legacy/{id}", HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Legacy", "1")
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, "path=%s query=%s", req.URL.Path, req.URL.Query().Get("q"))
		})))
		require.NoError(t, err)

		w := serve(r, http.MethodGet, "/legacy/9?q=x", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-Legacy"))
		assert.Equal(t, "path=/legacy/9 query=x", w.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("post middleware sees buffered response", func(t *testing.T) {
		r, _ := quietRouter()
		_, _ = r.Handle(http.MethodGet, "/", HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("x")) //nolint:errcheck
		})))
		require.NoError(t, r.UsePost("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			data, err := resp.BodyBytes()
			require.NoError(t, err)
			resp.Header.Set("X-Len", fmt.Sprint(len(data)))
			return nil, nil
		})))

		w := serve(r, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-Len"))
	})

	t.Run("keeps pre middleware headers", func(t *testing.T) {
		r, _ := quietRouter()
		require.NoError(t, r.UsePre("/", MiddlewareFunc(func(_ *Request, resp *Response) (*Request, *Response) {
			resp.Header.Set("X-Request-Id", "abc")
			return nil, nil
		})))
		_, _ = r.Handle(http.MethodGet, "/", HTTPHandler(http.NotFoundHandler()))

		w := serve(r, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
	})

	t.Run("empty output", func(t *testing.T) {
		h := HTTPHandler(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		resp := h.ServeRequest(newTestRequest(t, http.MethodGet, "/"), NewResponse())

		require.NotNil(t, resp)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Nil(t, resp.Body)
	})
}

func TestDefaultHandlers(t *testing.T) {
	resp := NewResponse()
	resp.Header.Set("X-Request-Id", "abc")
	assert.Nil(t, NotFound(nil, resp))

	w := httptest.NewRecorder()
	require.NoError(t, resp.Write(w))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404 page not found\n", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	resp = NewResponse()
	assert.Nil(t, MethodNotAllowed(nil, resp))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
}
