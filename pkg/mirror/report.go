package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matzehuels/gemmirror/pkg/errors"
)

// Phase names a stage of the cycle that runs work items.
type Phase string

const (
	PhaseFetch  Phase = "fetch"
	PhaseDelete Phase = "delete"
)

// Item is one unit of reconciliation work.
type Item struct {
	Phase Phase
	Name  string
}

// ItemError records a fetch or delete that failed.
type ItemError struct {
	Phase Phase
	Name  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Name, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// MarshalJSON renders the error as a string so reports stay readable.
func (e *ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Phase Phase  `json:"phase"`
		Name  string `json:"name"`
		Error string `json:"error"`
	}{e.Phase, e.Name, e.Err.Error()})
}

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Phase     Phase         `json:"phase"`
	Planned   int           `json:"planned"`
	Succeeded int           `json:"succeeded"`
	Failed    []*ItemError  `json:"failed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report is the outcome of one cycle.
type Report struct {
	ID         string      `json:"id"`
	Upstream   string      `json:"upstream"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Remote     int         `json:"remote"`
	Local      int         `json:"local"`
	Fetch      PhaseResult `json:"fetch"`
	Delete     PhaseResult `json:"delete"`
	Published  bool        `json:"published"`
}

// Failures returns the number of failed items.
func (r *Report) Failures() int {
	return len(r.Fetch.Failed) + len(r.Delete.Failed)
}

// Duration returns the wall time of the cycle.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns the item failures as one error, or nil if there were none.
func (r *Report) Err() error {
	n := r.Failures()
	if n == 0 {
		return nil
	}
	errs := make([]error, 0, n)
	for _, e := range r.Fetch.Failed {
		errs = append(errs, e)
	}
	for _, e := range r.Delete.Failed {
		errs = append(errs, e)
	}
	return errors.Wrap(errors.ErrCodeItemFailed, errors.Join(errs...), "%d items failed", n)
}

// Summary returns a one-line description of the cycle.
func (r *Report) Summary() string {
	counts := fmt.Sprintf("%d/%d fetched, %d/%d deleted",
		r.Fetch.Succeeded, r.Fetch.Planned, r.Delete.Succeeded, r.Delete.Planned)
	if n := r.Failures(); n > 0 {
		return fmt.Sprintf("completed with %d failures (%s)", n, counts)
	}
	return "completed (" + counts + ")"
}
