package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matzehuels/gemmirror/pkg/observability"
)

func TestPrometheusRecordsCycle(t *testing.T) {
	ctx := context.Background()
	p := New(prom.NewRegistry())

	p.OnCycleStart(ctx, "id", "https://rubygems.org/")
	p.OnIndexRefresh(ctx, "specs", 170000, time.Second, nil)
	p.OnItemComplete(ctx, "fetch", nil)
	p.OnItemComplete(ctx, "fetch", errors.New("404"))
	p.OnItemComplete(ctx, "delete", nil)
	p.OnPhaseComplete(ctx, "fetch", 2, 1, time.Second)
	p.OnCycleComplete(ctx, "id", 1, time.Minute, nil)

	if got := testutil.ToFloat64(p.items.WithLabelValues("fetch", "success")); got != 1 {
		t.Errorf("fetch success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.items.WithLabelValues("fetch", "failed")); got != 1 {
		t.Errorf("fetch failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.cycles.WithLabelValues("partial")); got != 1 {
		t.Errorf("partial cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.indexEntries.WithLabelValues("specs")); got != 170000 {
		t.Errorf("index entries = %v", got)
	}
	if got := testutil.ToFloat64(p.lastFailures); got != 1 {
		t.Errorf("last failures = %v", got)
	}
}

func TestPrometheusAbortedCycleKeepsLastSuccess(t *testing.T) {
	ctx := context.Background()
	p := New(nil)

	p.OnCycleComplete(ctx, "id", 0, time.Second, errors.New("refresh failed"))
	if got := testutil.ToFloat64(p.cycles.WithLabelValues("aborted")); got != 1 {
		t.Errorf("aborted = %v", got)
	}
	if got := testutil.ToFloat64(p.lastSuccess); got != 0 {
		t.Errorf("last success set by aborted cycle: %v", got)
	}
}

func TestPrometheusHTTPAndCache(t *testing.T) {
	ctx := context.Background()
	p := New(nil)

	p.OnResponse(ctx, "GET", "rubygems.org", "/gems/a.gem", 200, 10*time.Millisecond)
	p.OnResponse(ctx, "GET", "rubygems.org", "/gems/b.gem", 404, 10*time.Millisecond)
	p.OnError(ctx, "GET", "rubygems.org", "/gems/c.gem", errors.New("reset"))
	p.OnCacheHit(ctx, "index")
	p.OnCacheMiss(ctx, "index")
	p.OnCacheSet(ctx, "index", 2048)

	if got := testutil.ToFloat64(p.requests.WithLabelValues("rubygems.org", "404")); got != 1 {
		t.Errorf("404 responses = %v", got)
	}
	if got := testutil.ToFloat64(p.requestErrors.WithLabelValues("rubygems.org")); got != 1 {
		t.Errorf("errors = %v", got)
	}
	if got := testutil.ToFloat64(p.cacheSize.WithLabelValues("index")); got != 2048 {
		t.Errorf("cache bytes = %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	p := New(nil)
	p.OnItemComplete(context.Background(), "fetch", nil)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "gemmirror_items_total") {
		t.Errorf("metrics output missing items counter:\n%s", body)
	}
}

func TestRegister(t *testing.T) {
	defer observability.Reset()
	p := New(nil)
	p.Register()
	if observability.Mirror() != p || observability.HTTP() != p || observability.Cache() != p {
		t.Error("Register() should install all hooks")
	}
}
