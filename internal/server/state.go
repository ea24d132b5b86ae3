package server

import (
	"sync"
	"time"

	"github.com/matzehuels/gemmirror/pkg/mirror"
	"github.com/matzehuels/gemmirror/pkg/report"
)

// State tracks cycles run by the scheduler, for /status.
type State struct {
	mu      sync.RWMutex
	running bool
	cycles  int
	last    *report.Stored
	lastErr string
	nextRun time.Time
}

// Snapshot is a copy of the state at one instant.
type Snapshot struct {
	Running    bool           `json:"running"`
	Cycles     int            `json:"cycles"`
	LastReport *report.Stored `json:"last_report,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	NextRun    *time.Time     `json:"next_run,omitempty"`
}

// NewState returns an empty state.
func NewState() *State { return &State{} }

// Begin marks a cycle as running. It returns false if one already is.
func (s *State) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// End records the outcome of the running cycle.
func (s *State) End(rep *mirror.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.cycles++
	if rep != nil {
		s.last = report.ToStored(rep)
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

// SetLast installs a report loaded from disk, e.g. at startup.
func (s *State) SetLast(st *report.Stored) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = st
}

// SetNextRun records when the scheduler will start the next cycle.
func (s *State) SetNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = t
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Running:    s.running,
		Cycles:     s.cycles,
		LastReport: s.last,
		LastError:  s.lastErr,
	}
	if !s.nextRun.IsZero() {
		t := s.nextRun
		snap.NextRun = &t
	}
	return snap
}
