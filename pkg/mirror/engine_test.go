package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"

	"github.com/matzehuels/gemmirror/pkg/cache"
	gmerrors "github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/fetch"
	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/observability"
	"github.com/matzehuels/gemmirror/pkg/pool"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

func TestRunFetchesMissing(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("b", "2.0")})
	f := newFixture(t, up, []string{"a-1.0.gem"})

	plan, err := f.engine.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !slices.Equal(plan.ToFetch, []string{"b-2.0.gem"}) || len(plan.ToDelete) != 0 {
		t.Fatalf("Plan() = fetch %v delete %v; want [b-2.0.gem], []", plan.ToFetch, plan.ToDelete)
	}

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got, want := f.inventory(t), []string{"a-1.0.gem", "b-2.0.gem"}; !slices.Equal(got, want) {
		t.Errorf("inventory = %v, want %v", got, want)
	}
	if rep.Fetch.Planned != 1 || rep.Fetch.Succeeded != 1 || rep.Delete.Planned != 0 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Remote != 2 || rep.Local != 1 {
		t.Errorf("report remote/local = %d/%d, want 2/1", rep.Remote, rep.Local)
	}

	data, err := util.ReadFile(f.store.FS(), storage.GemPath("b-2.0.gem"))
	if err != nil || string(data) != "gem:b-2.0.gem" {
		t.Errorf("fetched content = %q, %v", data, err)
	}
	// a-1.0 was not re-downloaded
	if up.hitCount("gems/a-1.0.gem") != 0 {
		t.Error("present artifact was fetched again")
	}
}

func TestRunDeletesStale(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0")})
	f := newFixture(t, up, []string{"a-1.0.gem", "stale-9.9.gem"})

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if rep.Fetch.Planned != 0 || rep.Delete.Planned != 1 || rep.Delete.Succeeded != 1 {
		t.Errorf("report fetch=%+v delete=%+v", rep.Fetch, rep.Delete)
	}
	if got, want := f.inventory(t), []string{"a-1.0.gem"}; !slices.Equal(got, want) {
		t.Errorf("inventory = %v, want %v", got, want)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("b", "2.0"), {Name: "c", Version: "3.0", Platform: "java"}})
	f := newFixture(t, up, []string{"old-0.1.gem"})

	if _, err := f.engine.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	hits := up.gemHits()

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if rep.Fetch.Planned != 0 || rep.Delete.Planned != 0 {
		t.Errorf("second run planned fetch=%d delete=%d, want 0/0", rep.Fetch.Planned, rep.Delete.Planned)
	}
	if up.gemHits() != hits {
		t.Errorf("second run fetched %d artifacts", up.gemHits()-hits)
	}
	if got, want := f.inventory(t), []string{"a-1.0.gem", "b-2.0.gem", "c-3.0-java.gem"}; !slices.Equal(got, want) {
		t.Errorf("inventory = %v, want %v", got, want)
	}
}

func TestRunIndexRefreshFailureIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(u *upstream)
		cause gmerrors.Code
	}{
		{"server error", func(u *upstream) { u.status["latest_specs.4.8.gz"] = http.StatusInternalServerError }, gmerrors.ErrCodeNetwork},
		{"missing", func(u *upstream) { u.status["prerelease_specs.4.8.gz"] = http.StatusNotFound }, gmerrors.ErrCodeNotFound},
		{"not gzip", func(u *upstream) { u.raw["specs.4.8.gz"] = []byte("<html>") }, gmerrors.ErrCodeInvalidIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("b", "2.0")})
			tt.setup(up)
			f := newFixture(t, up, []string{"a-1.0.gem", "stale-9.9.gem"})

			rep, err := f.engine.Run(context.Background())
			if !gmerrors.Is(err, gmerrors.ErrCodeIndexRefresh) {
				t.Fatalf("Run() error = %v, want INDEX_REFRESH", err)
			}
			if !gmerrors.Is(err, tt.cause) {
				t.Errorf("Run() error = %v, want cause %s", err, tt.cause)
			}
			if rep == nil || rep.Fetch.Planned != 0 || rep.Delete.Planned != 0 {
				t.Errorf("aborted cycle planned work: %+v", rep)
			}
			if got, want := f.inventory(t), []string{"a-1.0.gem", "stale-9.9.gem"}; !slices.Equal(got, want) {
				t.Errorf("inventory = %v, want untouched %v", got, want)
			}
			if up.gemHits() != 0 {
				t.Error("artifacts fetched despite refresh failure")
			}
		})
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("b", "2.0"), gem("c", "3.0")})
	up.status["gems/b-2.0.gem"] = http.StatusNotFound
	f := newFixture(t, up, []string{"stale-9.9.gem"})

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for item failures", err)
	}
	if rep.Fetch.Succeeded != 2 || len(rep.Fetch.Failed) != 1 {
		t.Fatalf("fetch result = %+v", rep.Fetch)
	}
	failed := rep.Fetch.Failed[0]
	if failed.Name != "b-2.0.gem" || failed.Phase != PhaseFetch || !errors.Is(failed, fetch.ErrNotFound) {
		t.Errorf("failure = %v", failed)
	}
	if rep.Delete.Succeeded != 1 {
		t.Error("delete phase should run despite fetch failures")
	}
	if got, want := f.inventory(t), []string{"a-1.0.gem", "c-3.0.gem"}; !slices.Equal(got, want) {
		t.Errorf("inventory = %v, want %v", got, want)
	}

	if rep.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", rep.Failures())
	}
	if !gmerrors.Is(rep.Err(), gmerrors.ErrCodeItemFailed) {
		t.Errorf("Err() = %v, want ITEM_FAILED", rep.Err())
	}
	if !strings.HasPrefix(rep.Summary(), "completed with 1 failures") {
		t.Errorf("Summary() = %q", rep.Summary())
	}

	// The next cycle retries exactly the missing artifact.
	up.setStatus("gems/b-2.0.gem", 0)
	rep, err = f.engine.Run(context.Background())
	if err != nil || rep.Fetch.Planned != 1 || rep.Fetch.Succeeded != 1 {
		t.Errorf("retry cycle = %+v, %v", rep.Fetch, err)
	}
}

func TestRunRejectsUnsafeArtifactNames(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("../../etc/passwd", "1")})
	f := newFixture(t, up, nil)

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(rep.Fetch.Failed) != 1 || !gmerrors.Is(rep.Fetch.Failed[0], gmerrors.ErrCodeInvalidArtifact) {
		t.Errorf("failures = %v, want one INVALID_ARTIFACT", rep.Fetch.Failed)
	}
	if got := f.inventory(t); !slices.Equal(got, []string{"a-1.0.gem"}) {
		t.Errorf("inventory = %v", got)
	}
}

func TestRunRespectsParallelism(t *testing.T) {
	var release []index.Entry
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		release = append(release, gem(n, "1.0"))
	}

	var active, peak atomic.Int32
	fetcher := memFetcher(t, release, func(ctx context.Context, name string, dst fetch.Writer, p string) error {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return dst.Write(p, strings.NewReader(name))
	})

	store := storage.NewMemory()
	e, err := New(Config{Upstream: "https://gems.test/", Parallelism: 3},
		WithFetcher(fetcher), WithStore(store), WithTempStore(storage.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if rep.Fetch.Succeeded != len(release) {
		t.Errorf("fetched %d, want %d", rep.Fetch.Succeeded, len(release))
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestRunCancellationSkipsRemainingWork(t *testing.T) {
	release := []index.Entry{gem("a", "1.0"), gem("b", "1.0"), gem("c", "1.0"), gem("d", "1.0")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fetcher := memFetcher(t, release, func(ctx context.Context, name string, dst fetch.Writer, p string) error {
		calls.Add(1)
		cancel()
		return ctx.Err()
	})

	store := storage.NewMemory()
	_ = store.WriteFile(storage.GemPath("stale-9.9.gem"), []byte("x"))
	e, err := New(Config{Upstream: "https://gems.test/", Parallelism: 1},
		WithFetcher(fetcher), WithStore(store), WithTempStore(storage.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}

	rep, err := e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetcher called %d times after cancellation, want 1", calls.Load())
	}
	if len(rep.Fetch.Skipped) != 3 {
		t.Errorf("skipped = %v, want 3 items", rep.Fetch.Skipped)
	}
	if !slices.Equal(rep.Delete.Skipped, []string{"stale-9.9.gem"}) || rep.Delete.Succeeded != 0 {
		t.Errorf("delete phase ran after cancellation: %+v", rep.Delete)
	}
	if ok, _ := store.Exists(storage.GemPath("stale-9.9.gem")); !ok {
		t.Error("stale artifact deleted after cancellation")
	}
}

func TestRunPanickingFetcherIsContained(t *testing.T) {
	release := []index.Entry{gem("a", "1.0"), gem("boom", "1.0")}
	fetcher := memFetcher(t, release, func(ctx context.Context, name string, dst fetch.Writer, p string) error {
		if strings.HasPrefix(name, "boom") {
			panic("fetcher bug")
		}
		return dst.Write(p, strings.NewReader(name))
	})

	e, err := New(Config{Upstream: "https://gems.test/"},
		WithFetcher(fetcher), WithStore(storage.NewMemory()), WithTempStore(storage.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if rep.Fetch.Succeeded != 1 || len(rep.Fetch.Failed) != 1 || rep.Fetch.Failed[0].Name != "boom-1.0.gem" {
		t.Fatalf("fetch result = %+v", rep.Fetch)
	}
	failed := rep.Fetch.Failed[0]
	if !gmerrors.Is(failed.Err, gmerrors.ErrCodeInternal) {
		t.Errorf("panic error = %v, want %s", failed.Err, gmerrors.ErrCodeInternal)
	}
	var pe *pool.PanicError
	if !errors.As(failed.Err, &pe) || pe.Value != "fetcher bug" {
		t.Errorf("panic value not preserved: %v", failed.Err)
	}
}

func TestRunReportsProgress(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0"), gem("b", "2.0")})

	var mu sync.Mutex
	var events []Progress
	f := newFixture(t, up, []string{"x-1.gem"}, WithProgress(func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}))

	if _, err := f.engine.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d progress events, want 3", len(events))
	}
	last := events[len(events)-1]
	if last.Phase != PhaseDelete || last.Done != 1 || last.Total != 1 {
		t.Errorf("last event = %+v", last)
	}
	for _, ev := range events[:2] {
		if ev.Phase != PhaseFetch || ev.Total != 2 {
			t.Errorf("fetch event = %+v", ev)
		}
	}
}

func TestRunPublishesIndex(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0")})
	srvEntries := up.listings[index.Release]
	f := newFixture(t, up, nil)
	f.engine.cfg.PublishIndex = true

	rep, err := f.engine.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Published {
		t.Error("report should mark the index as published")
	}

	r, err := f.store.Open(index.Release.CompressedFilename())
	if err != nil {
		t.Fatalf("published index missing: %v", err)
	}
	defer r.Close()
	entries, err := index.DecodeGzip(r)
	if err != nil || !slices.Equal(entries, srvEntries) {
		t.Errorf("published entries = %v, %v", entries, err)
	}
	for _, kind := range index.Kinds() {
		if ok, _ := f.store.Exists(kind.CompressedFilename()); !ok {
			t.Errorf("%s not published", kind.CompressedFilename())
		}
	}
	// Index files are not artifacts.
	if got := f.inventory(t); !slices.Equal(got, []string{"a-1.0.gem"}) {
		t.Errorf("inventory = %v", got)
	}
}

func TestRefreshIndexMergesAndCleansUp(t *testing.T) {
	up := newUpstream(t, []index.Entry{gem("a", "1.0")})
	up.listings[index.Prerelease] = []index.Entry{gem("a", "2.0.pre")}
	up.listings[index.Latest] = []index.Entry{gem("a", "1.0")}
	f := newFixture(t, up, nil)

	r, err := f.engine.RefreshIndex(context.Background())
	if err != nil {
		t.Fatalf("RefreshIndex() error: %v", err)
	}
	if got, want := r.Names.Sorted(), []string{"a-1.0.gem", "a-2.0.pre.gem"}; !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if len(r.Digests) != 3 || len(r.Listings[index.Prerelease]) != 1 {
		t.Errorf("RemoteIndex = %+v", r)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.temp.Exists(r.dir); ok {
		t.Errorf("temp payloads not cleaned up: %s", r.dir)
	}
}

type countingCache struct {
	cache.Cache
	hits atomic.Int32
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.Cache.Get(ctx, key)
	if ok {
		c.hits.Add(1)
	}
	return data, ok, err
}

func TestRefreshIndexUsesCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := &countingCache{Cache: fc}
	up := newUpstream(t, []index.Entry{gem("a", "1.0")})
	f := newFixture(t, up, nil, WithCache(c), WithKeyer(cache.NewScopedKeyer(nil, "test:")))

	for i := range 2 {
		r, err := f.engine.RefreshIndex(context.Background())
		if err != nil {
			t.Fatalf("RefreshIndex() #%d error: %v", i, err)
		}
		if !r.Names.Has("a-1.0.gem") {
			t.Errorf("RefreshIndex() #%d lost entries: %v", i, r.Names.Sorted())
		}
		r.Close()
	}
	if c.hits.Load() != 3 {
		t.Errorf("cache hits = %d, want 3 on the second refresh", c.hits.Load())
	}

	// A changed payload misses.
	up.mu.Lock()
	up.listings[index.Release] = []index.Entry{gem("a", "1.1")}
	up.mu.Unlock()
	r, err := f.engine.RefreshIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if !r.Names.Has("a-1.1.gem") {
		t.Errorf("stale cache entry used: %v", r.Names.Sorted())
	}
}

type recordingMirrorHooks struct {
	observability.NoopMirrorHooks
	mu       sync.Mutex
	started  int
	refresh  int
	items    int
	phases   []string
	complete error
}

func (h *recordingMirrorHooks) OnCycleStart(context.Context, string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started++
}

func (h *recordingMirrorHooks) OnIndexRefresh(context.Context, string, int, time.Duration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refresh++
}

func (h *recordingMirrorHooks) OnItemComplete(context.Context, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items++
}

func (h *recordingMirrorHooks) OnPhaseComplete(_ context.Context, phase string, _, _ int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, phase)
}

func (h *recordingMirrorHooks) OnCycleComplete(_ context.Context, _ string, _ int, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.complete = err
}

func TestRunEmitsMirrorHooks(t *testing.T) {
	hooks := &recordingMirrorHooks{}
	observability.SetMirrorHooks(hooks)
	defer observability.Reset()

	up := newUpstream(t, []index.Entry{gem("a", "1.0")})
	f := newFixture(t, up, []string{"z-1.gem"})
	if _, err := f.engine.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if hooks.started != 1 || hooks.refresh != 3 || hooks.items != 2 {
		t.Errorf("hooks: started=%d refresh=%d items=%d", hooks.started, hooks.refresh, hooks.items)
	}
	if !slices.Equal(hooks.phases, []string{"fetch", "delete"}) {
		t.Errorf("phase order = %v, want [fetch delete]", hooks.phases)
	}
}

func TestFetchCompletesBeforeDelete(t *testing.T) {
	release := []index.Entry{gem("a", "1.0"), gem("b", "1.0")}

	var mu sync.Mutex
	var order []string
	fetcher := memFetcher(t, release, func(ctx context.Context, name string, dst fetch.Writer, p string) error {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		order = append(order, "fetch")
		mu.Unlock()
		return dst.Write(p, strings.NewReader(name))
	})

	store := storage.NewMemory()
	for _, n := range []string{"x-1.gem", "y-1.gem"} {
		_ = store.WriteFile(storage.GemPath(n), []byte(n))
	}
	e, err := New(Config{Upstream: "https://gems.test/", Parallelism: 4},
		WithFetcher(fetcher), WithStore(store), WithTempStore(storage.NewMemory()),
		WithProgress(func(p Progress) {
			if p.Phase == PhaseDelete {
				mu.Lock()
				order = append(order, "delete")
				mu.Unlock()
			}
		}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"fetch", "fetch", "delete", "delete"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestWriterSeesFullBodyOnly(t *testing.T) {
	// A fetcher that fails midway must not leave a listed artifact.
	release := []index.Entry{gem("a", "1.0")}
	fetcher := memFetcher(t, release, func(ctx context.Context, name string, dst fetch.Writer, p string) error {
		return dst.Write(p, io.MultiReader(strings.NewReader("half"), errReader{}))
	})
	store := storage.NewMemory()
	e, _ := New(Config{Upstream: "https://gems.test/"},
		WithFetcher(fetcher), WithStore(store), WithTempStore(storage.NewMemory()))

	rep, err := e.Run(context.Background())
	if err != nil || len(rep.Fetch.Failed) != 1 {
		t.Fatalf("Run() = %+v, %v", rep.Fetch, err)
	}
	if set, _ := store.List(); set.Len() != 0 {
		t.Errorf("partial artifact listed: %v", set.Sorted())
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
