package mux

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// ResponseBody is the payload of a Response.
type ResponseBody interface {
	// ContentType is used when the response has no Content-Type header.
	ContentType() string

	// Bytes renders the payload. Streams are consumed.
	Bytes() ([]byte, error)
}

// TextBody is a UTF-8 plain text payload.
type TextBody string

func (TextBody) ContentType() string { return "text/plain; charset=utf-8" }

func (b TextBody) Bytes() ([]byte, error) { return []byte(b), nil }

// BinaryBody is an opaque payload.
type BinaryBody []byte

func (BinaryBody) ContentType() string { return "application/octet-stream" }

func (b BinaryBody) Bytes() ([]byte, error) { return b, nil }

// JSONBody is encoded as JSON when the response is written.
type JSONBody struct {
	Value any
}

func (JSONBody) ContentType() string { return "application/json" }

func (b JSONBody) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(b.Value); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// XMLBody is encoded as XML when the response is written.
type XMLBody struct {
	Value any
}

func (XMLBody) ContentType() string { return "application/xml" }

func (b XMLBody) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(b.Value); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// StreamBody copies Reader to the client without buffering it. Reader is
// closed after writing if it implements io.Closer.
type StreamBody struct {
	Reader io.Reader
	Type   string
}

func (b StreamBody) ContentType() string {
	if b.Type == "" {
		return "application/octet-stream"
	}

	return b.Type
}

func (b StreamBody) Bytes() ([]byte, error) {
	if c, ok := b.Reader.(io.Closer); ok {
		defer c.Close()
	}

	return io.ReadAll(b.Reader)
}

// Response is the response under construction for one request. Middleware
// and handlers may modify it in place or replace it wholesale.
type Response struct {
	Status  int
	Header  http.Header
	Cookies []*http.Cookie
	Body    ResponseBody
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK, Header: make(http.Header)}
}

// Text returns a plain text response.
func Text(status int, s string) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: TextBody(s)}
}

// JSON returns a response whose body is v encoded as JSON.
func JSON(status int, v any) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: JSONBody{Value: v}}
}

// XML returns a response whose body is v encoded as XML.
func XML(status int, v any) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: XMLBody{Value: v}}
}

// Binary returns a response with a raw payload and content type.
func Binary(status int, contentType string, data []byte) *Response {
	resp := &Response{Status: status, Header: make(http.Header), Body: BinaryBody(data)}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}

	return resp
}

// Stream returns a response that copies r to the client.
func Stream(status int, contentType string, r io.Reader) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: StreamBody{Reader: r, Type: contentType}}
}

// Error returns a plain text response carrying the status text.
func Error(status int) *Response {
	return Text(status, http.StatusText(status))
}

// Redirect returns a redirect to location with the given 3xx status.
func Redirect(status int, location string) *Response {
	resp := &Response{Status: status, Header: make(http.Header)}
	resp.Header.Set("Location", location)

	return resp
}

// SetCookie adds a Set-Cookie header to the response.
func (r *Response) SetCookie(c *http.Cookie) {
	r.Cookies = append(r.Cookies, c)
}

// BodyBytes renders the body. A nil body renders as nil.
func (r *Response) BodyBytes() ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	return r.Body.Bytes()
}

// bodyAllowed reports whether a response with the given status may carry
// content per RFC 9110 Section 6.4.1.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}

	return true
}

// Write sends the response to w. Header fields with invalid names or
// values (RFC 9110 Section 5) are dropped. If the body cannot be rendered
// a 500 is written instead and the render error is returned.
func (r *Response) Write(w http.ResponseWriter) error {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	dst := w.Header()

	for name, values := range r.Header {
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}

		for _, v := range values {
			if httpguts.ValidHeaderFieldValue(v) {
				dst.Add(name, v)
			}
		}
	}

	for _, c := range r.Cookies {
		http.SetCookie(w, c)
	}

	if r.Body == nil || !bodyAllowed(status) {
		w.WriteHeader(status)
		return nil
	}

	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", r.Body.ContentType())
	}

	if stream, ok := r.Body.(StreamBody); ok {
		if c, ok := stream.Reader.(io.Closer); ok {
			defer c.Close()
		}

		w.WriteHeader(status)
		_, err := io.Copy(w, stream.Reader)

		return err
	}

	data, err := r.Body.Bytes()
	if err != nil {
		dst.Del("Content-Type")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return err
	}

	if dst.Get("Content-Length") == "" {
		dst.Set("Content-Length", strconv.Itoa(len(data)))
	}

	w.WriteHeader(status)
	_, err = w.Write(data)

	return err
}
