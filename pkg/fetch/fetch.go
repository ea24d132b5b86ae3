package fetch

import (
	"context"
	"io"

	"github.com/matzehuels/gemmirror/pkg/errors"
)

// Sentinels carry error codes, so callers can match either the sentinel
// with the standard errors.Is or the code with [errors.Is].
var (
	// ErrNotFound is returned when the remote resource does not exist.
	ErrNotFound = errors.New(errors.ErrCodeNotFound, "resource not found")

	// ErrStatus is returned for unexpected non-200 responses.
	ErrStatus = errors.New(errors.ErrCodeUpstreamStatus, "unexpected status")

	// ErrNetwork is returned for transport failures and 5xx responses.
	ErrNetwork = errors.New(errors.ErrCodeNetwork, "network error")
)

// Writer stores a byte stream at a relative path.
// [storage.Store] implements it with atomic temp-file-and-rename writes.
type Writer interface {
	Write(path string, r io.Reader) error
}

// Fetcher retrieves the resource at remote and writes it to dst at path.
type Fetcher interface {
	Fetch(ctx context.Context, remote string, dst Writer, path string) error
}

// Func adapts an ordinary function to the [Fetcher] interface.
type Func func(ctx context.Context, remote string, dst Writer, path string) error

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, remote string, dst Writer, path string) error {
	return f(ctx, remote, dst, path)
}
