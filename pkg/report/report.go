// Package report delivers cycle reports to their destinations.
//
// A [Sink] receives every finished [mirror.Report]. The CLI always logs the
// report ([Log]); it can also keep the latest report as a JSON file
// ([JSONFile], read back by the status endpoint of `serve`) and append a
// history of cycles to MongoDB ([Mongo]). [Multi] fans out to several sinks.
package report

import (
	"context"
	"errors"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// Sink receives cycle reports.
type Sink interface {
	Write(ctx context.Context, rep *mirror.Report) error
	Close(ctx context.Context) error
}

// Multi writes to every sink and joins their errors.
type Multi []Sink

// Write implements [Sink].
func (m Multi) Write(ctx context.Context, rep *mirror.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements [Sink].
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
