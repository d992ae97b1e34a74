package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/harbor/reqbody"
)

const (
	// DefaultDir is the directory used when Materializer.Dir is empty,
	// relative to the working directory.
	DefaultDir = "uploads"

	// DefaultConcurrency bounds the files written at once per request.
	DefaultConcurrency = 4

	DefaultDirMode  fs.FileMode = 0o755
	DefaultFileMode fs.FileMode = 0o644
)

var (
	// ErrDirectoryCreate is returned when the upload directory cannot be created.
	ErrDirectoryCreate = errors.New("upload: cannot create upload directory")

	// ErrFileWrite is returned when a file cannot be created or written.
	ErrFileWrite = errors.New("upload: cannot write file")
)

// Materializer writes uploaded file parts to a directory under generated,
// collision-free names. The zero value writes to DefaultDir.
type Materializer struct {
	// Dir is the target directory. It is created on demand.
	Dir string

	// Logger receives one warning per part that could not be written.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger

	// Concurrency bounds the files written at once. Zero selects
	// DefaultConcurrency.
	Concurrency int

	DirMode  fs.FileMode
	FileMode fs.FileMode

	// NameFunc returns a file name for the sniffed extension, which
	// includes the leading dot or is empty. Defaults to a random UUID
	// followed by the extension.
	NameFunc func(ext string) string
}

// Materialize writes every part and reports the outcome per part. It never
// fails as a whole: a part that cannot be written is logged, skipped and
// listed in Manifest.Failures. Once ctx is done the parts not yet started
// are recorded as failures with the context error.
func (m *Materializer) Materialize(ctx context.Context, parts []reqbody.FilePart) Manifest {
	if len(parts) == 0 {
		return Manifest{Records: []Record{}}
	}

	type outcome struct {
		rec Record
		err error
	}

	outcomes := make([]outcome, len(parts))

	var g errgroup.Group
	g.SetLimit(m.concurrency())

	for i := range parts {
		if err := ctx.Err(); err != nil {
			outcomes[i].err = err
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return nil
			}

			outcomes[i].rec, outcomes[i].err = m.write(parts[i])

			return nil
		})
	}

	g.Wait() //nolint:errcheck

	manifest := Manifest{Records: make([]Record, 0, len(parts))}
	log := m.logger()

	for i, out := range outcomes {
		if out.err == nil {
			manifest.Records = append(manifest.Records, out.rec)
			continue
		}

		part := parts[i]

		log.WithFields(logrus.Fields{
			"part":  i,
			"field": part.FieldName,
			"file":  part.Filename,
		}).WithError(out.err).Warn("upload: skipping file part")

		manifest.Failures = append(manifest.Failures, Failure{
			FieldName:    part.FieldName,
			OriginalName: part.Filename,
			Reason:       out.err.Error(),
			Err:          out.err,
		})
	}

	return manifest
}

func (m *Materializer) write(part reqbody.FilePart) (Record, error) {
	mt := mimetype.Detect(part.Data)

	name := m.name(mt.Extension())
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return Record{}, fmt.Errorf("%w: invalid generated name %q", ErrFileWrite, name)
	}

	dir := m.dir()

	if err := os.MkdirAll(dir, m.dirMode()); err != nil {
		return Record{}, fmt.Errorf("%w %q: %w", ErrDirectoryCreate, dir, err)
	}

	path := filepath.Join(dir, name)

	if err := writeExclusive(path, part.Data, m.fileMode()); err != nil {
		return Record{}, fmt.Errorf("%w %q: %w", ErrFileWrite, path, err)
	}

	contentType := part.ContentType
	if contentType == "" {
		contentType = mt.String()
	}

	return Record{
		Name:         name,
		Path:         path,
		OriginalName: part.Filename,
		FieldName:    part.FieldName,
		Size:         int64(len(part.Data)),
		ContentType:  contentType,
	}, nil
}

// writeExclusive creates path, failing if it exists, and removes it again
// when the write does not complete.
func writeExclusive(path string, data []byte, mode fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(path) //nolint:errcheck
		return err
	}

	return nil
}

func (m *Materializer) dir() string {
	if m.Dir == "" {
		return DefaultDir
	}

	return m.Dir
}

func (m *Materializer) name(ext string) string {
	if m.NameFunc != nil {
		return m.NameFunc(ext)
	}

	return uuid.New().String() + ext
}

func (m *Materializer) concurrency() int {
	if m.Concurrency <= 0 {
		return DefaultConcurrency
	}

	return m.Concurrency
}

func (m *Materializer) dirMode() fs.FileMode {
	if m.DirMode == 0 {
		return DefaultDirMode
	}

	return m.DirMode
}

func (m *Materializer) fileMode() fs.FileMode {
	if m.FileMode == 0 {
		return DefaultFileMode
	}

	return m.FileMode
}

func (m *Materializer) logger() logrus.FieldLogger {
	if m.Logger == nil {
		return logrus.StandardLogger()
	}

	return m.Logger
}
