package reqbody

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Kind identifies which variant of Body is populated.
type Kind uint8

const (
	// KindEmpty is a request without a body.
	KindEmpty Kind = iota
	// KindText is a textual body; Data holds the raw bytes and Charset the
	// declared character set.
	KindText
	// KindJSON is a JSON document decoded into the JSON field.
	KindJSON
	// KindForm is an application/x-www-form-urlencoded body.
	KindForm
	// KindBinary is an opaque byte payload.
	KindBinary
	// KindMultipart is a multipart/form-data body split into Fields and Files.
	KindMultipart
)

var kindNames = [...]string{
	KindEmpty:     "empty",
	KindText:      "text",
	KindJSON:      "json",
	KindForm:      "form",
	KindBinary:    "binary",
	KindMultipart: "multipart",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", k)
}

// FilePart is one uploaded file extracted from a multipart body. The field
// name and original filename travel with the bytes so that nothing needs to
// be reconstructed later.
type FilePart struct {
	// Data is the file content with the delimiter line break removed.
	Data []byte

	// FieldName is the form field the file was submitted under.
	FieldName string

	// Filename is the client-supplied filename. It may be empty.
	Filename string

	// ContentType is the part's declared Content-Type, if any.
	ContentType string
}

// Body is the decoded form of a request body. Exactly one variant is
// meaningful, selected by Kind. A Body is built once per request and is not
// modified afterwards.
type Body struct {
	Kind Kind

	// Data holds the raw bytes for KindText and KindBinary.
	Data []byte

	// Charset is the declared character set of a KindText body.
	Charset string

	// JSON is the decoded document of a KindJSON body.
	JSON any

	// Fields holds form values for KindForm and the text fields of a
	// KindMultipart body.
	Fields url.Values

	// Files holds the file parts of a KindMultipart body in body order.
	Files []FilePart

	// Skipped counts multipart parts that were malformed and dropped.
	Skipped int

	// Truncated reports that the multipart part limit was reached and the
	// remaining parts were not decoded.
	Truncated bool
}

// IsEmpty reports whether the body carries no data at all.
func (b Body) IsEmpty() bool {
	return b.Kind == KindEmpty
}

// String returns a KindText body converted to UTF-8 according to its
// charset. Unknown charsets and other kinds return the raw bytes as a
// string with invalid UTF-8 sequences replaced.
func (b Body) String() string {
	if b.Kind == KindText {
		if s, err := decodeCharset(b.Data, b.Charset); err == nil {
			return s
		}
	}

	return strings.ToValidUTF8(string(b.Data), "\uFFFD")
}

// File returns the first file part submitted under the given field name.
func (b Body) File(field string) (FilePart, bool) {
	for _, f := range b.Files {
		if f.FieldName == field {
			return f, true
		}
	}

	return FilePart{}, false
}

// decodeCharset converts data in the named charset to a UTF-8 string using
// the WHATWG encoding index.
func decodeCharset(data []byte, charset string) (string, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "utf8" || charset == "us-ascii" {
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", err
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// ErrMalformedBody is the error wrapped by every DecodeError.
var ErrMalformedBody = errors.New("reqbody: malformed body")

// DecodeError reports a JSON or urlencoded body that could not be parsed.
// It is returned next to a usable fallback Body so that the handler decides
// how to respond.
type DecodeError struct {
	// Format is the body format that failed, "json" or "form".
	Format string

	// Err is the underlying parser error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("reqbody: invalid %s body: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformedBody, e.Err}
}
