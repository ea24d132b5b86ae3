package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// JSONFile keeps the latest report in a file.
type JSONFile struct {
	path string
}

// NewJSONFile returns a sink writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the report file.
func (s *JSONFile) Path() string { return s.path }

// Write replaces the file atomically with rep.
func (s *JSONFile) Write(_ context.Context, rep *mirror.Report) error {
	data, err := json.MarshalIndent(ToStored(rep), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Close implements [Sink].
func (s *JSONFile) Close(context.Context) error { return nil }

// ReadJSONFile loads a report written by [JSONFile].
func ReadJSONFile(path string) (*Stored, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st Stored
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &st, nil
}
