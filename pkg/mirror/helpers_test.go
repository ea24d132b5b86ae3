package mirror

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/gemmirror/pkg/fetch"
	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

func gem(name, version string) index.Entry {
	return index.Entry{Name: name, Version: version, Platform: index.RubyPlatform}
}

// upstream is a fake gem repository.
type upstream struct {
	t *testing.T

	mu       sync.Mutex
	listings map[index.Kind][]index.Entry
	gems     map[string]string
	status   map[string]int // path -> forced status
	raw      map[string][]byte
	hits     map[string]int
}

func newUpstream(t *testing.T, release []index.Entry) *upstream {
	t.Helper()
	u := &upstream{
		t:        t,
		listings: map[index.Kind][]index.Entry{index.Release: release},
		gems:     map[string]string{},
		status:   map[string]int{},
		raw:      map[string][]byte{},
		hits:     map[string]int{},
	}
	for _, e := range release {
		u.gems[e.ArtifactName()] = "gem:" + e.ArtifactName()
	}
	return u
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/")
	u.hits[p]++
	if code, ok := u.status[p]; ok {
		w.WriteHeader(code)
		return
	}
	if data, ok := u.raw[p]; ok {
		w.Write(data)
		return
	}
	for _, kind := range index.Kinds() {
		if p == kind.CompressedFilename() {
			data, err := index.EncodeGzip(u.listings[kind])
			if err != nil {
				u.t.Errorf("encode %s: %v", kind, err)
			}
			w.Write(data)
			return
		}
	}
	if name, ok := strings.CutPrefix(p, "gems/"); ok {
		if body, ok := u.gems[name]; ok {
			w.Write([]byte(body))
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (u *upstream) hitCount(p string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[p]
}

func (u *upstream) setStatus(p string, code int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if code == 0 {
		delete(u.status, p)
		return
	}
	u.status[p] = code
}

func (u *upstream) gemHits() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for p, c := range u.hits {
		if strings.HasPrefix(p, "gems/") {
			n += c
		}
	}
	return n
}

type fixture struct {
	up     *upstream
	srv    *httptest.Server
	store  *storage.Store
	temp   *storage.Store
	engine *Engine
}

func newFixture(t *testing.T, up *upstream, local []string, opts ...Option) *fixture {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	f := &fixture{up: up, srv: srv, store: storage.NewMemory(), temp: storage.NewMemory()}
	for _, name := range local {
		if err := f.store.WriteFile(storage.GemPath(name), []byte("local:"+name)); err != nil {
			t.Fatal(err)
		}
	}

	base := []Option{
		WithFetcher(fetch.NewHTTP(fetch.WithClient(srv.Client()), fetch.WithRetry(1, time.Millisecond))),
		WithStore(f.store),
		WithTempStore(f.temp),
	}
	e, err := New(Config{Upstream: srv.URL, Parallelism: 4}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	f.engine = e
	return f
}

func (f *fixture) inventory(t *testing.T) []string {
	t.Helper()
	set, err := f.store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	return set.Sorted()
}

// memFetcher serves index payloads from memory and delegates gem fetches.
func memFetcher(t *testing.T, release []index.Entry, gemFn func(ctx context.Context, name string, dst fetch.Writer, p string) error) fetch.Fetcher {
	t.Helper()
	payloads := map[string][]byte{}
	for _, kind := range index.Kinds() {
		var entries []index.Entry
		if kind == index.Release {
			entries = release
		}
		data, err := index.EncodeGzip(entries)
		if err != nil {
			t.Fatal(err)
		}
		payloads[kind.CompressedFilename()] = data
	}
	return fetch.Func(func(ctx context.Context, remote string, dst fetch.Writer, p string) error {
		i := strings.LastIndex(remote, "/")
		base := remote[i+1:]
		if strings.Contains(remote, "/gems/") {
			return gemFn(ctx, base, dst, p)
		}
		return dst.Write(p, bytes.NewReader(payloads[base]))
	})
}
