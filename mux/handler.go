package mux

import (
	"bytes"
	"net/http"
)

// Handler serves a matched route.
//
// resp is the response prepared for the request, already carrying any
// headers set by pre middleware. The handler either modifies it and
// returns nil, or returns a replacement.
type Handler interface {
	ServeRequest(req *Request, resp *Response) *Response
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(req *Request, resp *Response) *Response

// ServeRequest calls f(req, resp).
func (f HandlerFunc) ServeRequest(req *Request, resp *Response) *Response {
	return f(req, resp)
}

// NotFound replies with 404 Not Found (RFC 9110 Section 15.5.5).
func NotFound(_ *Request, resp *Response) *Response {
	resp.Status = http.StatusNotFound
	resp.Body = TextBody("404 page not found\n")

	return nil
}

// MethodNotAllowed replies with 405 Method Not Allowed (RFC 9110
// Section 15.5.6). The router sets the Allow header before calling it.
func MethodNotAllowed(_ *Request, resp *Response) *Response {
	resp.Status = http.StatusMethodNotAllowed
	resp.Body = TextBody(http.StatusText(http.StatusMethodNotAllowed) + "\n")

	return nil
}

// HTTPHandler adapts a net/http handler. Its output is buffered into a
// Response so that post middleware can still transform it.
func HTTPHandler(h http.Handler) Handler {
	return HandlerFunc(func(req *Request, resp *Response) *Response {
		w := &bufferedWriter{header: resp.Header.Clone()}
		if w.header == nil {
			w.header = make(http.Header)
		}

		h.ServeHTTP(w, req.HTTPRequest())

		return w.response(resp.Cookies)
	})
}

// bufferedWriter is an http.ResponseWriter that records into memory.
type bufferedWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (w *bufferedWriter) Header() http.Header {
	return w.header
}

func (w *bufferedWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	return w.buf.Write(p)
}

func (w *bufferedWriter) response(cookies []*http.Cookie) *Response {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	resp := &Response{Status: status, Header: w.header, Cookies: cookies}

	if w.buf.Len() > 0 {
		if w.header.Get("Content-Type") == "" {
			w.header.Set("Content-Type", http.DetectContentType(w.buf.Bytes()))
		}

		resp.Body = BinaryBody(w.buf.Bytes())
	}

	return resp
}
