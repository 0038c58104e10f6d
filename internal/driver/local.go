package driver

import (
	"context"
	"os"

	"github.com/h5coro-go/h5coro/internal/herrors"
)

// Local is a Driver backed by an *os.File on the local filesystem.
type Local struct {
	file *os.File
}

// OpenLocal opens path and returns a Driver reading from it.
func OpenLocal(path string) (*Local, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, err, "opening local file").WithPath(path)
	}
	return &Local{file: f}, nil
}

// NewLocal wraps an already-open file as a Driver. The caller retains
// ownership of closing f if it was opened elsewhere; Close on the
// returned Driver closes it regardless.
func NewLocal(f *os.File) *Local {
	return &Local{file: f}
}

func (l *Local) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	n, err := l.file.ReadAt(buf, offset)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, err, "reading local file range").
			WithDetail("offset", offset).WithDetail("length", length)
	}
	if n != length {
		return nil, herrors.New(herrors.FormatError, "short read from local file").
			WithDetail("offset", offset).WithDetail("wanted", length).WithDetail("got", n)
	}
	return buf, nil
}

func (l *Local) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := l.file.Stat()
	if err != nil {
		return 0, herrors.Wrap(herrors.IOError, err, "stat local file")
	}
	return info.Size(), nil
}

func (l *Local) Close() error {
	return l.file.Close()
}
