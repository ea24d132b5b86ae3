package report

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// Log writes reports to a logger.
type Log struct {
	logger *log.Logger
}

// NewLog returns a sink logging to l.
func NewLog(l *log.Logger) *Log {
	return &Log{logger: l}
}

// Write implements [Sink].
func (s *Log) Write(_ context.Context, rep *mirror.Report) error {
	kv := []any{
		"cycle", rep.ID,
		"remote", rep.Remote,
		"local", rep.Local,
		"fetched", rep.Fetch.Succeeded,
		"deleted", rep.Delete.Succeeded,
		"duration", rep.Duration().Round(time.Millisecond),
	}
	if n := rep.Failures(); n > 0 {
		s.logger.Warn(rep.Summary(), append(kv, "failures", n)...)
		for _, f := range append(rep.Fetch.Failed, rep.Delete.Failed...) {
			s.logger.Warn("failed", "phase", f.Phase, "name", f.Name, "err", f.Err)
		}
		return nil
	}
	s.logger.Info(rep.Summary(), kv...)
	return nil
}

// Close implements [Sink].
func (s *Log) Close(context.Context) error { return nil }
