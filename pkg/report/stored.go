package report

import (
	"time"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// Stored is the persisted form of a report, used for JSON files and
// MongoDB documents.
type Stored struct {
	ID         string      `json:"id" bson:"_id"`
	Upstream   string      `json:"upstream" bson:"upstream"`
	StartedAt  time.Time   `json:"started_at" bson:"started_at"`
	FinishedAt time.Time   `json:"finished_at" bson:"finished_at"`
	Remote     int         `json:"remote" bson:"remote"`
	Local      int         `json:"local" bson:"local"`
	Fetch      StoredPhase `json:"fetch" bson:"fetch"`
	Delete     StoredPhase `json:"delete" bson:"delete"`
	Published  bool        `json:"published" bson:"published"`
	Failures   int         `json:"failures" bson:"failures"`
	DurationMS int64       `json:"duration_ms" bson:"duration_ms"`
}

// StoredPhase is the persisted form of a phase result.
type StoredPhase struct {
	Planned    int          `json:"planned" bson:"planned"`
	Succeeded  int          `json:"succeeded" bson:"succeeded"`
	Failed     []StoredItem `json:"failed,omitempty" bson:"failed,omitempty"`
	Skipped    []string     `json:"skipped,omitempty" bson:"skipped,omitempty"`
	DurationMS int64        `json:"duration_ms" bson:"duration_ms"`
}

// StoredItem is a failed work item.
type StoredItem struct {
	Phase string `json:"phase" bson:"phase"`
	Name  string `json:"name" bson:"name"`
	Error string `json:"error" bson:"error"`
}

// Summary mirrors [mirror.Report.Summary].
func (s *Stored) Summary() string {
	return s.report().Summary()
}

// report rebuilds enough of a mirror.Report for its summary helpers.
func (s *Stored) report() *mirror.Report {
	rep := &mirror.Report{
		Fetch:  mirror.PhaseResult{Planned: s.Fetch.Planned, Succeeded: s.Fetch.Succeeded},
		Delete: mirror.PhaseResult{Planned: s.Delete.Planned, Succeeded: s.Delete.Succeeded},
	}
	for _, f := range s.Fetch.Failed {
		rep.Fetch.Failed = append(rep.Fetch.Failed, &mirror.ItemError{Phase: mirror.Phase(f.Phase), Name: f.Name, Err: storedError(f.Error)})
	}
	for _, f := range s.Delete.Failed {
		rep.Delete.Failed = append(rep.Delete.Failed, &mirror.ItemError{Phase: mirror.Phase(f.Phase), Name: f.Name, Err: storedError(f.Error)})
	}
	return rep
}

type storedError string

func (e storedError) Error() string { return string(e) }

// ToStored converts a report into its persisted form.
func ToStored(rep *mirror.Report) *Stored {
	return &Stored{
		ID:         rep.ID,
		Upstream:   rep.Upstream,
		StartedAt:  rep.StartedAt.UTC(),
		FinishedAt: rep.FinishedAt.UTC(),
		Remote:     rep.Remote,
		Local:      rep.Local,
		Fetch:      toStoredPhase(rep.Fetch),
		Delete:     toStoredPhase(rep.Delete),
		Published:  rep.Published,
		Failures:   rep.Failures(),
		DurationMS: rep.Duration().Milliseconds(),
	}
}

func toStoredPhase(p mirror.PhaseResult) StoredPhase {
	sp := StoredPhase{
		Planned:    p.Planned,
		Succeeded:  p.Succeeded,
		Skipped:    p.Skipped,
		DurationMS: p.Duration.Milliseconds(),
	}
	for _, f := range p.Failed {
		sp.Failed = append(sp.Failed, StoredItem{Phase: string(f.Phase), Name: f.Name, Error: f.Err.Error()})
	}
	return sp
}
