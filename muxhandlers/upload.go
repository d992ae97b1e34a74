package muxhandlers

import (
	"errors"
	"io/fs"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/harbor/mux"
	"github.com/vitalvas/harbor/reqbody"
	"github.com/vitalvas/harbor/upload"
)

// ErrInvalidConcurrency is returned when UploadConfig.Concurrency is negative.
var ErrInvalidConcurrency = errors.New("concurrency must not be negative")

// UploadConfig configures the upload middleware.
type UploadConfig struct {
	// Dir is the directory files are written to. Defaults to
	// upload.DefaultDir.
	Dir string

	// Concurrency bounds the files written at once per request. Zero
	// selects upload.DefaultConcurrency.
	Concurrency int

	DirMode  fs.FileMode
	FileMode fs.FileMode

	// Logger receives a warning for every file that could not be written.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger

	// NameFunc overrides the generated file name. See upload.Materializer.
	NameFunc func(ext string) string
}

// UploadMiddleware returns a pre middleware that writes the file parts of
// multipart requests to disk. For every stored file the generated name is
// appended to req.Form under its field name, after any text values of that
// field and in part order. The manifest is stored in the request side
// channel under upload.DataKey.
//
// Files that cannot be written are logged and skipped; the request always
// proceeds to the handler, which can inspect Manifest.Failures.
func UploadMiddleware(cfg UploadConfig) (mux.Middleware, error) {
	if cfg.Concurrency < 0 {
		return nil, ErrInvalidConcurrency
	}

	m := &upload.Materializer{
		Dir:         cfg.Dir,
		Logger:      cfg.Logger,
		Concurrency: cfg.Concurrency,
		DirMode:     cfg.DirMode,
		FileMode:    cfg.FileMode,
		NameFunc:    cfg.NameFunc,
	}

	return mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if req.Decoded.Kind != reqbody.KindMultipart {
			return nil, nil
		}

		manifest := m.Materialize(req.Context(), req.Decoded.Files)

		if req.Form == nil {
			req.Form = make(url.Values)
		}

		for _, rec := range manifest.Records {
			req.Form.Add(rec.FieldName, rec.Name)
		}

		req.Set(upload.DataKey, manifest)

		return nil, nil
	}), nil
}
