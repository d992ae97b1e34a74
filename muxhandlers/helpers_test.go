package muxhandlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/harbor/mux"
)

// newRouter returns a router with a discarding logger and an "ok" GET
// route for every path given.
func newRouter(t testing.TB, paths ...string) *mux.Router {
	t.Helper()

	logger, _ := test.NewNullLogger()
	r := mux.NewRouter(mux.WithLogger(logger))

	for _, p := range paths {
		_, err := r.Get(p, okHandler)
		require.NoError(t, err)
	}

	return r
}

func okHandler(_ *mux.Request, _ *mux.Response) *mux.Response {
	return mux.Text(http.StatusOK, "ok")
}

// serve dispatches hr through r and returns the recorded response.
func serve(r http.Handler, hr *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, hr)

	return w
}

// newRequest builds a transport-agnostic request for calling Process
// directly.
func newRequest(t testing.TB, method, target string) *mux.Request {
	t.Helper()

	req, err := mux.NewRequest(context.Background(), method, target, nil, nil)
	require.NoError(t, err)

	return req
}
