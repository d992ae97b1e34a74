package reqbody

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/textproto"
	"net/url"
	"strings"
)

// ErrMalformedPart is wrapped by the diagnostics logged for skipped
// multipart parts.
var ErrMalformedPart = errors.New("reqbody: malformed multipart part")

var dashes = []byte("--")

// decodeMultipart walks a multipart/form-data body (RFC 7578). It never
// fails: unusable input falls back to compatibility mode and malformed
// parts are skipped.
func decodeMultipart(raw []byte, boundary string, opts Options) Body {
	body := Body{Kind: KindMultipart, Fields: url.Values{}}
	if len(raw) == 0 {
		return body
	}

	log := opts.logger()

	if boundary == "" {
		log.Debug("reqbody: multipart body without boundary, decoding as a single file")
		return compatBody(raw)
	}

	delim := append([]byte("--"), boundary...)

	pos := findDelimiter(raw, delim, 0)
	if pos < 0 {
		log.WithField("boundary", boundary).Debug("reqbody: boundary not found in body, decoding as a single file")
		return compatBody(raw)
	}

	limit := opts.maxParts()
	index := 0

	for {
		after := pos + len(delim)
		if bytes.HasPrefix(raw[after:], dashes) {
			// close delimiter; the rest is epilogue
			break
		}

		// Skip transport padding up to the end of the delimiter line.
		eol := bytes.IndexByte(raw[after:], '\n')
		if eol < 0 {
			break
		}

		start := after + eol + 1
		next := findDelimiter(raw, delim, start)

		end := len(raw)
		if next >= 0 {
			end = next
		}

		if limit > 0 && index >= limit {
			body.Truncated = true
			log.WithField("limit", limit).Warn("reqbody: multipart part limit reached, dropping remaining parts")

			break
		}

		index++

		if err := body.addPart(trimLineBreak(raw[start:end])); err != nil {
			body.Skipped++
			log.WithField("part", index).WithError(err).Warn("reqbody: skipping multipart part")
		}

		if next < 0 {
			break
		}

		pos = next
	}

	return body
}

// compatBody wraps a whole body as one unnamed file part.
func compatBody(raw []byte) Body {
	return Body{
		Kind:   KindMultipart,
		Fields: url.Values{},
		Files:  []FilePart{{Data: raw, FieldName: CompatFieldName}},
	}
}

// findDelimiter returns the index of the first delimiter at or after from
// that starts a line and is followed by "--", whitespace, a line break or the
// end of the body. It returns -1 when there is none.
func findDelimiter(raw, delim []byte, from int) int {
	for from <= len(raw) {
		i := bytes.Index(raw[from:], delim)
		if i < 0 {
			return -1
		}

		i += from
		if (i == 0 || raw[i-1] == '\n') && delimiterEnds(raw[i+len(delim):]) {
			return i
		}

		from = i + 1
	}

	return -1
}

func delimiterEnds(rest []byte) bool {
	if len(rest) == 0 || bytes.HasPrefix(rest, dashes) {
		return true
	}

	switch rest[0] {
	case '\r', '\n', ' ', '\t':
		return true
	}

	return false
}

// trimLineBreak removes the single CRLF (or bare LF) that precedes the next
// delimiter and therefore belongs to it rather than to the part content.
func trimLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}

	if bytes.HasSuffix(b, []byte("\n")) {
		return b[:len(b)-1]
	}

	return b
}

// addPart parses one part and records it as a text field or a file.
func (b *Body) addPart(part []byte) error {
	header, content, err := splitPart(part)
	if err != nil {
		return err
	}

	cd := header.Get("Content-Disposition")
	if cd == "" {
		return fmt.Errorf("%w: missing Content-Disposition", ErrMalformedPart)
	}

	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return fmt.Errorf("%w: Content-Disposition %q: %w", ErrMalformedPart, cd, err)
	}

	name := params["name"]
	if name == "" {
		return fmt.Errorf("%w: missing field name", ErrMalformedPart)
	}

	if filename, isFile := params["filename"]; isFile {
		b.Files = append(b.Files, FilePart{
			Data:        content,
			FieldName:   name,
			Filename:    filename,
			ContentType: header.Get("Content-Type"),
		})

		return nil
	}

	b.Fields.Add(name, strings.ToValidUTF8(string(content), "\uFFFD"))

	return nil
}

// splitPart separates the header block of a part from its content. The
// header block ends at the first empty line; CRLF and bare LF line endings
// are both accepted.
func splitPart(part []byte) (textproto.MIMEHeader, []byte, error) {
	header := make(textproto.MIMEHeader)

	var lastKey string

	for pos := 0; pos < len(part); {
		eol := bytes.IndexByte(part[pos:], '\n')
		if eol < 0 {
			break
		}

		line := bytes.TrimSuffix(part[pos:pos+eol], []byte("\r"))
		pos += eol + 1

		if len(line) == 0 {
			return header, part[pos:], nil
		}

		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			values := header[lastKey]
			values[len(values)-1] += " " + string(bytes.TrimSpace(line))

			continue
		}

		key, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}

		lastKey = textproto.CanonicalMIMEHeaderKey(string(bytes.TrimSpace(key)))
		header.Add(lastKey, string(bytes.TrimSpace(value)))
	}

	return nil, nil, fmt.Errorf("%w: missing header terminator", ErrMalformedPart)
}
