package mux

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup(t *testing.T) {
	t.Run("routes under prefix", func(t *testing.T) {
		r, _ := quietRouter()
		api := r.Group("/api/")
		assert.Equal(t, "/api", api.Prefix())

		_, err := api.Get("/users/{id}", func(req *Request, _ *Response) *Response {
			return Text(http.StatusOK, req.Param("id"))
		})
		require.NoError(t, err)

		_, err = api.Get("/", func(_ *Request, _ *Response) *Response {
			return Text(http.StatusOK, "index")
		})
		require.NoError(t, err)

		assert.Equal(t, "3", serve(r, http.MethodGet, "/api/users/3", "").Body.String())
		assert.Equal(t, "index", serve(r, http.MethodGet, "/api", "").Body.String())
		assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/users/3", "").Code)
	})

	t.Run("nested groups", func(t *testing.T) {
		r, _ := quietRouter()
		v1 := r.Group("api").Group("/v1/")
		assert.Equal(t, "/api/v1", v1.Prefix())

		route, err := v1.Post("items", func(_ *Request, _ *Response) *Response { return nil })
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/items", route.GetPathTemplate())
	})

	t.Run("middleware scoped to group", func(t *testing.T) {
		r, _ := quietRouter()
		var order []string

		admin := r.Group("/admin")
		require.NoError(t, admin.UsePre("", recordingMiddleware(&order, "admin")))
		require.NoError(t, admin.UsePost("/reports", recordingMiddleware(&order, "reports")))
		_, _ = admin.Any("/*rest", func(_ *Request, _ *Response) *Response { return nil })
		_, _ = r.Get("/public", func(_ *Request, _ *Response) *Response { return nil })

		serve(r, http.MethodGet, "/public", "")
		serve(r, http.MethodGet, "/admin/users", "")
		serve(r, http.MethodGet, "/admin/reports/1", "")
		assert.Equal(t, []string{"admin", "admin", "reports"}, order)
	})

	t.Run("parameterized prefix is rejected", func(t *testing.T) {
		r, _ := quietRouter()
		g := r.Group("/t/{tenant}")

		_, err := g.Get("/x", func(_ *Request, _ *Response) *Response { return nil })
		assert.ErrorIs(t, err, ErrInvalidPattern)
		assert.ErrorIs(t, g.UsePre("", recordingMiddleware(new([]string), "x")), ErrInvalidPattern)
		assert.ErrorIs(t, r.Freeze(), ErrInvalidPattern)
	})

	t.Run("all method helpers", func(t *testing.T) {
		r, _ := quietRouter()
		g := r.Group("/g")
		h := func(req *Request, _ *Response) *Response { return Text(http.StatusOK, req.Method) }

		_, _ = g.Put("/", h)
		_, _ = g.Patch("/", h)
		_, _ = g.Delete("/", h)

		for _, m := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
			assert.Equal(t, m, serve(r, m, "/g", "").Body.String())
		}
	})
}
