package mux

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestResponseWrite(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Text(http.StatusCreated, "hello").Write(w))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "5", w.Header().Get("Content-Length"))
		assert.Equal(t, "hello", w.Body.String())
	})

	t.Run("json", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, JSON(http.StatusOK, map[string]string{"key": "value"}).Write(w))

		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"key":"value"}`, w.Body.String())
	})

	t.Run("json encoding failure", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := JSON(http.StatusOK, make(chan int)).Write(w)

		assert.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("xml", func(t *testing.T) {
		type item struct {
			Name string `xml:"name"`
		}

		w := httptest.NewRecorder()
		require.NoError(t, XML(http.StatusOK, item{Name: "x"}).Write(w))

		assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
		assert.Equal(t, "<item><name>x</name></item>", w.Body.String())
	})

	t.Run("binary keeps explicit content type", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Binary(http.StatusOK, "image/png", []byte{1, 2}).Write(w))

		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, []byte{1, 2}, w.Body.Bytes())
	})

	t.Run("binary default content type", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Binary(http.StatusOK, "", []byte{1}).Write(w))
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	})

	t.Run("stream is copied and closed", func(t *testing.T) {
		src := &closeTracker{Reader: strings.NewReader("streamed")}
		w := httptest.NewRecorder()
		require.NoError(t, Stream(http.StatusOK, "text/csv", src).Write(w))

		assert.Equal(t, "streamed", w.Body.String())
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Empty(t, w.Header().Get("Content-Length"))
		assert.True(t, src.closed)
	})

	t.Run("no body statuses", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Text(http.StatusNoContent, "ignored").Write(w))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("zero status is 200", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, (&Response{}).Write(w))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("cookies", func(t *testing.T) {
		resp := NewResponse()
		resp.SetCookie(&http.Cookie{Name: "session", Value: "abc"})
		resp.SetCookie(&http.Cookie{Name: "bad name", Value: "x"})

		w := httptest.NewRecorder()
		require.NoError(t, resp.Write(w))
		assert.Equal(t, []string{"session=abc"}, w.Header().Values("Set-Cookie"))
	})

	t.Run("redirect", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Redirect(http.StatusFound, "/next").Write(w))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/next", w.Header().Get("Location"))
	})

	t.Run("error", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, Error(http.StatusBadGateway).Write(w))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "Bad Gateway", w.Body.String())
	})
}

func TestResponseBodyBytes(t *testing.T) {
	data, err := NewResponse().BodyBytes()
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = Stream(http.StatusOK, "", strings.NewReader("abc")).BodyBytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = JSON(http.StatusOK, func() {}).BodyBytes()
	assert.Error(t, err)
}

func TestResponseBodyContentTypes(t *testing.T) {
	tests := []struct {
		body ResponseBody
		want string
	}{
		{TextBody(""), "text/plain; charset=utf-8"},
		{BinaryBody(nil), "application/octet-stream"},
		{JSONBody{}, "application/json"},
		{XMLBody{}, "application/xml"},
		{StreamBody{}, "application/octet-stream"},
		{StreamBody{Type: "video/mp4"}, "video/mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.body.ContentType())
		})
	}
}
