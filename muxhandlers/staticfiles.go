package muxhandlers

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vitalvas/harbor/mux"
)

// ErrStaticFilesNoFS is returned when StaticFilesConfig.FS is nil.
var ErrStaticFilesNoFS = errors.New("static files: file system must not be nil")

// ErrStaticFilesNoIndexHTML is returned when SPAFallback is enabled
// but the file system does not contain an index.html at the root.
var ErrStaticFilesNoIndexHTML = errors.New("static files: index.html is required when SPA fallback is enabled")

// sniffLen is the number of leading bytes inspected when a file name has
// no registered extension.
const sniffLen = 3072

// StaticFilesConfig configures the static file handler.
type StaticFilesConfig struct {
	// FS is the file system to serve files from. Required.
	// Works with os.DirFS, embed.FS, and any fs.FS implementation.
	FS fs.FS

	// Param names the wildcard route parameter holding the file path,
	// e.g. "filepath" for a route registered as "/static/*filepath".
	// When empty the full request path is used.
	Param string

	// EnableDirectoryListing allows directory contents to be listed
	// when no index.html is present. Disabled by default.
	EnableDirectoryListing bool

	// SPAFallback serves the root index.html for any path that does
	// not match an existing file. Requires index.html at the root of FS.
	SPAFallback bool
}

type staticFiles struct {
	fsys    fs.FS
	param   string
	listing bool
	spa     bool
}

// StaticFilesHandler returns a handler that serves files from cfg.FS.
// It answers GET and HEAD; other methods get 405.
func StaticFilesHandler(cfg StaticFilesConfig) (mux.Handler, error) {
	if cfg.FS == nil {
		return nil, ErrStaticFilesNoFS
	}

	if cfg.SPAFallback {
		if info, err := fs.Stat(cfg.FS, "index.html"); err != nil || info.IsDir() {
			return nil, ErrStaticFilesNoIndexHTML
		}
	}

	s := &staticFiles{
		fsys:    cfg.FS,
		param:   cfg.Param,
		listing: cfg.EnableDirectoryListing,
		spa:     cfg.SPAFallback,
	}

	return mux.HandlerFunc(s.serve), nil
}

func (s *staticFiles) serve(req *mux.Request, _ *mux.Response) *mux.Response {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		resp := mux.Error(http.StatusMethodNotAllowed)
		resp.Header.Set("Allow", "GET, HEAD")

		return resp
	}

	name, ok := s.name(req)
	if !ok {
		return s.missing(req)
	}

	info, err := fs.Stat(s.fsys, name)
	if err != nil {
		return s.missing(req)
	}

	if !info.IsDir() {
		return s.file(req, name, info)
	}

	index := path.Join(name, "index.html")
	if info, err := fs.Stat(s.fsys, index); err == nil && !info.IsDir() {
		return s.file(req, index, info)
	}

	if s.listing {
		return s.list(req, name)
	}

	return s.missing(req)
}

// name maps the request to a clean, unrooted fs.FS path.
func (s *staticFiles) name(req *mux.Request) (string, bool) {
	raw := req.Path
	if s.param != "" {
		raw = req.Param(s.param)
	}

	if strings.Contains(raw, "\x00") {
		return "", false
	}

	name := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if name == "" {
		name = "."
	}

	return name, fs.ValidPath(name)
}

func (s *staticFiles) missing(req *mux.Request) *mux.Response {
	if !s.spa {
		return mux.Error(http.StatusNotFound)
	}

	info, err := fs.Stat(s.fsys, "index.html")
	if err != nil {
		return mux.Error(http.StatusNotFound)
	}

	return s.file(req, "index.html", info)
}

func (s *staticFiles) file(req *mux.Request, name string, info fs.FileInfo) *mux.Response {
	modTime := info.ModTime()

	if notModified(req, modTime) {
		resp := mux.NewResponse()
		resp.Status = http.StatusNotModified
		resp.Header.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))

		return resp
	}

	f, err := s.fsys.Open(name)
	if err != nil {
		return mux.Error(http.StatusNotFound)
	}

	var body io.Reader = f

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			f.Close()
			return mux.Error(http.StatusInternalServerError)
		}

		head = head[:n]
		ctype = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), f)
	}

	resp := mux.NewResponse()
	resp.Header.Set("Content-Type", ctype)
	resp.Header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	if !modTime.IsZero() {
		resp.Header.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	}

	if req.Method == http.MethodHead {
		f.Close()
		return resp
	}

	resp.Body = mux.StreamBody{
		Reader: struct {
			io.Reader
			io.Closer
		}{body, f},
		Type: ctype,
	}

	return resp
}

func (s *staticFiles) list(req *mux.Request, dir string) *mux.Response {
	entries, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return mux.Error(http.StatusInternalServerError)
	}

	var buf bytes.Buffer

	buf.WriteString("<!doctype html>\n<meta name=\"viewport\" content=\"width=device-width\">\n<pre>\n")

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}

		ref := url.URL{Path: name}
		fmt.Fprintf(&buf, "<a href=\"%s\">%s</a>\n", ref.String(), html.EscapeString(name))
	}

	buf.WriteString("</pre>\n")

	resp := mux.Binary(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	if req.Method == http.MethodHead {
		resp.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
		resp.Body = nil
	}

	return resp
}

// notModified reports whether If-Modified-Since covers modTime. Times are
// compared at second precision.
func notModified(req *mux.Request, modTime time.Time) bool {
	if modTime.IsZero() || req.Header.Get("If-None-Match") != "" {
		return false
	}

	ims := req.Header.Get("If-Modified-Since")
	if ims == "" {
		return false
	}

	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}

	return !modTime.Truncate(time.Second).After(t)
}
