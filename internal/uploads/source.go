package uploads

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is one file handed to the upload service.
type Source struct {
	Name string
	Size int64
	// PreviewRef is a caller-side reference (e.g. an object URL) kept on the
	// temporary record until the upload is confirmed.
	PreviewRef string

	open func() (io.ReadCloser, error)
}

// FileSource reads from a local path.
func FileSource(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", path)
	}
	return Source{
		Name: filepath.Base(path),
		Size: fi.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// BytesSource serves an in-memory file, e.g. a multipart part already read.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name: name,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Open returns a fresh reader over the file contents.
func (s Source) Open() (io.ReadCloser, error) {
	if s.open == nil {
		return nil, fmt.Errorf("source %q has no content", s.Name)
	}
	return s.open()
}

// Extension is the lower-cased extension of the source name.
func (s Source) Extension() string { return Extension(s.Name) }

// Pending describes the temporary record to create for s.
func (s Source) Pending() Pending {
	return Pending{FileName: s.Name, FileSize: s.Size, PreviewRef: s.PreviewRef}
}
