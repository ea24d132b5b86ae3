package mirror

import (
	"slices"
	"testing"

	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		remote     []string
		local      []string
		wantFetch  []string
		wantDelete []string
	}{
		{"empty", nil, nil, nil, nil},
		{"fresh mirror", []string{"b.gem", "a.gem"}, nil, []string{"a.gem", "b.gem"}, nil},
		{"in sync", []string{"a.gem"}, []string{"a.gem"}, nil, nil},
		{"missing", []string{"a-1.0.gem", "b-2.0.gem"}, []string{"a-1.0.gem"}, []string{"b-2.0.gem"}, nil},
		{"stale", []string{"a-1.0.gem"}, []string{"a-1.0.gem", "stale-9.9.gem"}, nil, []string{"stale-9.9.gem"}},
		{"both", []string{"a.gem", "b.gem"}, []string{"b.gem", "c.gem"}, []string{"a.gem"}, []string{"c.gem"}},
		{"empty remote", nil, []string{"x.gem"}, nil, []string{"x.gem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemory()
			for _, n := range tt.local {
				if err := store.WriteFile(storage.GemPath(n), nil); err != nil {
					t.Fatal(err)
				}
			}
			e, err := New(Config{}, WithStore(store), WithTempStore(storage.NewMemory()))
			if err != nil {
				t.Fatal(err)
			}

			plan, err := e.Diff(index.NewSet(tt.remote...))
			if err != nil {
				t.Fatalf("Diff() error: %v", err)
			}
			if !slices.Equal(plan.ToFetch, tt.wantFetch) {
				t.Errorf("ToFetch = %v, want %v", plan.ToFetch, tt.wantFetch)
			}
			if !slices.Equal(plan.ToDelete, tt.wantDelete) {
				t.Errorf("ToDelete = %v, want %v", plan.ToDelete, tt.wantDelete)
			}
			for _, n := range plan.ToFetch {
				if slices.Contains(plan.ToDelete, n) {
					t.Errorf("%s is both fetched and deleted", n)
				}
			}
			if plan.Remote != len(tt.remote) || plan.Local != len(tt.local) {
				t.Errorf("counts = %d/%d", plan.Remote, plan.Local)
			}
		})
	}
}
