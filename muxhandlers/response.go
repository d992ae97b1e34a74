package muxhandlers

import (
	"net/http"

	"github.com/vitalvas/harbor/mux"
)

// contentType returns the Content-Type the response will be written with:
// the explicit header, or else the body's own type.
func contentType(resp *mux.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}

	if resp.Body != nil {
		return resp.Body.ContentType()
	}

	return ""
}

// renderable reports whether the body can be rendered to bytes without
// consuming a stream.
func renderable(resp *mux.Response) bool {
	if resp.Body == nil {
		return false
	}

	_, stream := resp.Body.(mux.StreamBody)

	return !stream
}

// header returns the response header, allocating it when a response was
// built without one.
func header(resp *mux.Response) http.Header {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	return resp.Header
}
