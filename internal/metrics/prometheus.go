// Package metrics implements the observability hooks with Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/gemmirror/pkg/observability"
)

const namespace = "gemmirror"

// Prometheus records mirror, HTTP and cache events.
type Prometheus struct {
	reg *prom.Registry

	cycles        *prom.CounterVec
	cycleDuration prom.Histogram
	lastSuccess   prom.Gauge
	lastFailures  prom.Gauge

	indexDuration *prom.HistogramVec
	indexEntries  *prom.GaugeVec

	items         *prom.CounterVec
	phaseDuration *prom.HistogramVec
	phasePlanned  *prom.GaugeVec

	requests        *prom.CounterVec
	requestDuration *prom.HistogramVec
	requestErrors   *prom.CounterVec

	cacheOps  *prom.CounterVec
	cacheSize *prom.CounterVec
}

// New constructs and registers the metrics on reg. A nil reg gets a fresh
// registry.
func New(reg *prom.Registry) *Prometheus {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	p := &Prometheus{
		reg: reg,
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed",
		}),
		lastFailures: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_failures",
			Help:      "Item failures of the last completed cycle",
		}),
		indexDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "index_refresh_duration_seconds",
			Help:      "Duration of index downloads and decoding",
			Buckets:   prom.DefBuckets,
		}, []string{"kind", "result"}),
		indexEntries: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the last decoded listing",
		}, []string{"kind"}),
		items: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Work items by phase and result",
		}, []string{"phase", "result"}),
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of fetch and delete phases",
			Buckets:   prom.ExponentialBuckets(0.1, 2, 16),
		}, []string{"phase"}),
		phasePlanned: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_planned_items",
			Help:      "Items planned in the last run of each phase",
		}, []string{"phase"}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Upstream HTTP responses by host and status",
		}, []string{"host", "code"}),
		requestDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Upstream HTTP time to response headers",
			Buckets:   prom.DefBuckets,
		}, []string{"host"}),
		requestErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Upstream HTTP transport errors",
		}, []string{"host"}),
		cacheOps: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache lookups and writes",
		}, []string{"type", "op"}),
		cacheSize: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the cache",
		}, []string{"type"}),
	}
	reg.MustRegister(
		p.cycles, p.cycleDuration, p.lastSuccess, p.lastFailures,
		p.indexDuration, p.indexEntries,
		p.items, p.phaseDuration, p.phasePlanned,
		p.requests, p.requestDuration, p.requestErrors,
		p.cacheOps, p.cacheSize,
	)
	return p
}

// Register installs p as the mirror, HTTP and cache hooks.
func (p *Prometheus) Register() {
	observability.SetMirrorHooks(p)
	observability.SetHTTPHooks(p)
	observability.SetCacheHooks(p)
}

// Registry returns the registry the metrics are registered on.
func (p *Prometheus) Registry() *prom.Registry { return p.reg }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// MirrorHooks

func (p *Prometheus) OnCycleStart(context.Context, string, string) {}

func (p *Prometheus) OnCycleComplete(_ context.Context, _ string, failures int, d time.Duration, err error) {
	p.cycleDuration.Observe(d.Seconds())
	switch {
	case err != nil:
		p.cycles.WithLabelValues("aborted").Inc()
		return
	case failures > 0:
		p.cycles.WithLabelValues("partial").Inc()
	default:
		p.cycles.WithLabelValues("success").Inc()
	}
	p.lastSuccess.SetToCurrentTime()
	p.lastFailures.Set(float64(failures))
}

func (p *Prometheus) OnIndexRefresh(_ context.Context, kind string, entries int, d time.Duration, err error) {
	p.indexDuration.WithLabelValues(kind, result(err)).Observe(d.Seconds())
	if err == nil {
		p.indexEntries.WithLabelValues(kind).Set(float64(entries))
	}
}

func (p *Prometheus) OnItemComplete(_ context.Context, phase string, err error) {
	p.items.WithLabelValues(phase, result(err)).Inc()
}

func (p *Prometheus) OnPhaseComplete(_ context.Context, phase string, planned, _ int, d time.Duration) {
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	p.phasePlanned.WithLabelValues(phase).Set(float64(planned))
}

// HTTPHooks

func (p *Prometheus) OnRequest(context.Context, string, string, string) {}

func (p *Prometheus) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	p.requests.WithLabelValues(host, strconv.Itoa(code)).Inc()
	p.requestDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, _, host, _ string, _ error) {
	p.requestErrors.WithLabelValues(host).Inc()
}

// CacheHooks

func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheOps.WithLabelValues(keyType, "set").Inc()
	p.cacheSize.WithLabelValues(keyType).Add(float64(size))
}

var (
	_ observability.MirrorHooks = (*Prometheus)(nil)
	_ observability.HTTPHooks   = (*Prometheus)(nil)
	_ observability.CacheHooks  = (*Prometheus)(nil)
)
