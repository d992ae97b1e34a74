package muxhandlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/vitalvas/harbor/mux"
)

// ErrInvalidCompressionLevel is returned when CompressionConfig.Level or
// BrotliLevel is outside the valid compression level range.
var ErrInvalidCompressionLevel = errors.New("compression: invalid compression level")

const (
	encodingBrotli  = "br"
	encodingGzip    = "gzip"
	encodingDeflate = "deflate"
)

// CompressionConfig configures the Compression middleware behaviour.
type CompressionConfig struct {
	// Level is the compression level for both gzip and deflate. When zero,
	// flate.DefaultCompression is used. Must be in
	// [flate.HuffmanOnly, flate.BestCompression] or zero.
	Level int

	// BrotliLevel is the brotli quality. When zero,
	// brotli.DefaultCompression is used. Must be in
	// [brotli.BestSpeed, brotli.BestCompression].
	BrotliLevel int

	// DisableBrotli restricts the middleware to gzip and deflate.
	DisableBrotli bool

	// MinLength is the minimum response body size in bytes before compression
	// is applied. When zero, all responses are compressed.
	MinLength int
}

// compressor is the common interface implemented by the gzip, flate and
// brotli writers.
type compressor interface {
	io.WriteCloser
	Reset(w io.Writer)
}

// CompressionMiddleware returns a post middleware that compresses response
// bodies with brotli, gzip or deflate when the client advertises support
// via the Accept-Encoding header. At equal quality brotli is preferred over
// gzip and gzip over deflate. Writers are pooled per encoding.
//
// Compression is skipped when:
//   - The request accepts none of the supported encodings
//   - The response has no body, is streamed, or is shorter than MinLength
//   - The response already has a Content-Encoding header
//   - The response Content-Type is an inherently compressed format
//     (image/*, video/*, audio/*, or common archive types)
//
// It returns ErrInvalidCompressionLevel if a level is outside the valid range.
func CompressionMiddleware(cfg CompressionConfig) (mux.Middleware, error) {
	level := cfg.Level
	if level == 0 {
		level = flate.DefaultCompression
	}

	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, ErrInvalidCompressionLevel
	}

	brotliLevel := cfg.BrotliLevel
	if brotliLevel == 0 {
		brotliLevel = brotli.DefaultCompression
	}

	if brotliLevel < brotli.BestSpeed || brotliLevel > brotli.BestCompression {
		return nil, ErrInvalidCompressionLevel
	}

	minLength := cfg.MinLength
	allowBrotli := !cfg.DisableBrotli

	pools := map[string]*sync.Pool{
		encodingGzip: {
			New: func() any {
				w, _ := gzip.NewWriterLevel(io.Discard, level)
				return w
			},
		},
		encodingDeflate: {
			New: func() any {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
		encodingBrotli: {
			New: func() any {
				return brotli.NewWriterLevel(io.Discard, brotliLevel)
			},
		},
	}

	return mux.MiddlewareFunc(func(req *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		if req.Method == http.MethodHead || !renderable(resp) {
			return nil, nil
		}

		if resp.Status == http.StatusNoContent || resp.Status == http.StatusNotModified {
			return nil, nil
		}

		h := header(resp)
		if h.Get("Content-Encoding") != "" {
			return nil, nil
		}

		ct := contentType(resp)
		if isCompressedContentType(ct) {
			return nil, nil
		}

		encoding := selectEncoding(req.Header.Get("Accept-Encoding"), allowBrotli)
		if encoding == "" {
			return nil, nil
		}

		data, err := resp.BodyBytes()
		if err != nil || len(data) < minLength {
			return nil, nil
		}

		compressed, err := compress(pools[encoding], data)
		if err != nil {
			return nil, nil
		}

		// The body variant changes to binary; keep the original type.
		h.Set("Content-Type", ct)
		h.Set("Content-Encoding", encoding)
		h.Del("Content-Length")
		addVary(h, "Accept-Encoding")

		resp.Body = mux.BinaryBody(compressed)

		return nil, nil
	}), nil
}

func compress(pool *sync.Pool, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := pool.Get().(compressor)
	defer pool.Put(w)

	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// addVary adds value to the Vary header unless it is already listed.
func addVary(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for token := range strings.SplitSeq(v, ",") {
			token = strings.TrimSpace(token)
			if token == "*" || strings.EqualFold(token, value) {
				return
			}
		}
	}

	h.Add("Vary", value)
}

// selectEncoding returns the best supported encoding from an
// Accept-Encoding header value, or "" if none is accepted. Ties are broken
// in favour of br, then gzip, then deflate.
func selectEncoding(acceptEncoding string, allowBrotli bool) string {
	quality := map[string]float64{}
	wildQ := -1.0

	for part := range strings.SplitSeq(acceptEncoding, ",") {
		name, q := parseEncoding(strings.TrimSpace(part))
		name = strings.ToLower(name)

		switch name {
		case encodingBrotli, encodingGzip, encodingDeflate:
			quality[name] = parseQuality(q)
		case "*":
			wildQ = parseQuality(q)
		}
	}

	candidates := []string{encodingGzip, encodingDeflate}
	if allowBrotli {
		candidates = slices.Insert(candidates, 0, encodingBrotli)
	}

	best, bestQ := "", 0.0

	for _, name := range candidates {
		q, ok := quality[name]
		if !ok {
			// Apply wildcard to unspecified encodings.
			q = wildQ
		}

		if q > bestQ {
			best, bestQ = name, q
		}
	}

	return best
}

// parseQuality converts a quality string to a float64.
// An empty string defaults to 1.0 (RFC 9110 Section 12.4.2).
func parseQuality(s string) float64 {
	if s == "" {
		return 1.0
	}

	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return q
}

// parseEncoding splits an encoding token into the encoding name and quality
// value. For "gzip;q=0.8" it returns ("gzip", "0.8"). When no quality value
// is present it returns the encoding and an empty string.
func parseEncoding(s string) (encoding, quality string) {
	encoding, params, ok := strings.Cut(s, ";")
	if !ok {
		return strings.TrimSpace(encoding), ""
	}

	params = strings.TrimSpace(params)
	if key, val, found := strings.Cut(params, "="); found && strings.TrimSpace(key) == "q" {
		return strings.TrimSpace(encoding), strings.TrimSpace(val)
	}

	return strings.TrimSpace(encoding), ""
}

// compressedContentTypes contains content type prefixes and exact types that
// are already compressed and should not be double-compressed.
var compressedContentTypes = []string{
	"image/",
	"video/",
	"audio/",
	"application/zip",
	"application/gzip",
	"application/x-gzip",
	"application/x-bzip2",
	"application/x-xz",
	"application/zstd",
	"application/x-7z-compressed",
	"application/x-rar-compressed",
}

// isCompressedContentType reports whether the content type is an inherently
// compressed format.
func isCompressedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))

	for _, prefix := range compressedContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}

	return false
}
