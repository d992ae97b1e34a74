package reqbody

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultMaxParts is the multipart part limit used when Options.MaxParts is
// zero.
const DefaultMaxParts = 1000

// CompatFieldName is the field name given to the single file part produced
// when a multipart body has no usable boundary.
const CompatFieldName = "file"

// Options tunes Decode.
type Options struct {
	// MaxParts caps the number of multipart parts decoded from one body.
	// Parts beyond the cap are dropped and Body.Truncated is set.
	// Defaults to DefaultMaxParts when zero; negative disables the cap.
	MaxParts int

	// Logger receives diagnostics about malformed multipart parts.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

func (o Options) maxParts() int {
	if o.MaxParts == 0 {
		return DefaultMaxParts
	}

	return o.MaxParts
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}

	return o.Logger
}

// Decode turns a raw request body into a Body according to its Content-Type
// header value.
//
// Multipart bodies never produce an error: malformed parts are skipped and
// counted, and a body without a usable boundary is returned as a single file
// part named CompatFieldName. JSON and urlencoded bodies that fail to parse
// return a *DecodeError next to a fallback Body (Binary for JSON, the pairs
// parsed so far for forms).
func Decode(raw []byte, contentType string, opts Options) (Body, error) {
	mediaType, params := parseContentType(contentType)

	if mediaType == "multipart/form-data" {
		return decodeMultipart(raw, params["boundary"], opts), nil
	}

	if len(raw) == 0 {
		return Body{Kind: KindEmpty}, nil
	}

	switch {
	case isJSON(mediaType):
		return decodeJSON(raw)

	case mediaType == "application/x-www-form-urlencoded":
		return decodeForm(raw)

	case isText(mediaType):
		charset := params["charset"]
		if charset == "" {
			charset = "utf-8"
		}

		return Body{Kind: KindText, Data: raw, Charset: charset}, nil
	}

	return Body{Kind: KindBinary, Data: raw}, nil
}

// parseContentType returns the lowercased media type and its parameters.
// A header that fails strict parsing still yields its media type so that a
// sloppy client parameter does not downgrade the whole body to binary.
func parseContentType(contentType string) (string, map[string]string) {
	if contentType == "" {
		return "", nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		return mediaType, params
	}

	mediaType, _, _ = strings.Cut(contentType, ";")

	return strings.ToLower(strings.TrimSpace(mediaType)), looseParams(contentType)
}

// looseParams extracts key=value parameters from a Content-Type header
// without the quoting rules enforced by mime.ParseMediaType.
func looseParams(contentType string) map[string]string {
	params := make(map[string]string)

	_, rest, ok := strings.Cut(contentType, ";")
	if !ok {
		return params
	}

	for part := range strings.SplitSeq(rest, ";") {
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `"`)

		if key != "" {
			params[key] = val
		}
	}

	return params
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xml" ||
		strings.HasSuffix(mediaType, "+xml")
}

func decodeJSON(raw []byte) (Body, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Body{Kind: KindBinary, Data: raw}, &DecodeError{Format: "json", Err: err}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Body{Kind: KindBinary, Data: raw}, &DecodeError{
			Format: "json",
			Err:    errors.New("unexpected trailing data after JSON value"),
		}
	}

	return Body{Kind: KindJSON, JSON: v}, nil
}

func decodeForm(raw []byte) (Body, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return Body{Kind: KindForm, Fields: values}, &DecodeError{Format: "form", Err: err}
	}

	return Body{Kind: KindForm, Fields: values}, nil
}
