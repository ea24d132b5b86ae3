package mirror

import (
	"context"
	"io"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/gemmirror/pkg/cache"
	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/fetch"
	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/observability"
	"github.com/matzehuels/gemmirror/pkg/pool"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

// Progress is reported after every finished work item.
type Progress struct {
	Phase Phase
	Done  int
	Total int
	Name  string
	Err   error
}

// ProgressFunc observes item completion. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(Progress)

// Engine runs reconciliation cycles for one mirror.
type Engine struct {
	cfg      Config
	fetcher  fetch.Fetcher
	store    *storage.Store
	temp     *storage.Store
	cache    cache.Cache
	keyer    cache.Keyer
	logger   *log.Logger
	progress ProgressFunc
}

// Option configures an [Engine].
type Option func(*Engine)

// WithFetcher sets the transfer implementation (default: [fetch.NewHTTP]).
func WithFetcher(f fetch.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithStore sets the mirror storage (default: the local disk at Config.Root).
func WithStore(s *storage.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithTempStore sets where index payloads are downloaded
// (default: the local disk at Config.TempDir).
func WithTempStore(s *storage.Store) Option {
	return func(e *Engine) { e.temp = s }
}

// WithCache enables caching of decoded listings.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithKeyer sets how cache keys are built.
func WithKeyer(k cache.Keyer) Option {
	return func(e *Engine) { e.keyer = k }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New validates cfg and returns an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = fetch.NewHTTP()
	}
	if e.store == nil {
		e.store = storage.NewOS(cfg.Root)
	}
	if e.temp == nil {
		e.temp = storage.NewOS(cfg.TempDir)
	}
	if e.cache == nil {
		e.cache = cache.NewNullCache()
	}
	if e.keyer == nil {
		e.keyer = cache.NewDefaultKeyer()
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	return e, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.cfg }

// Store returns the mirror storage.
func (e *Engine) Store() *storage.Store { return e.store }

// Plan is the work a cycle would perform.
type Plan struct {
	ToFetch  []string `json:"to_fetch"`
	ToDelete []string `json:"to_delete"`
	Remote   int      `json:"remote"`
	Local    int      `json:"local"`
}

// Items returns the planned work, fetches first.
func (p *Plan) Items() []Item {
	items := make([]Item, 0, len(p.ToFetch)+len(p.ToDelete))
	for _, n := range p.ToFetch {
		items = append(items, Item{Phase: PhaseFetch, Name: n})
	}
	for _, n := range p.ToDelete {
		items = append(items, Item{Phase: PhaseDelete, Name: n})
	}
	return items
}

// Diff lists the local inventory and compares it with remote.
// Both lists are sorted and never share a name.
func (e *Engine) Diff(remote index.Set) (*Plan, error) {
	local, err := e.store.List()
	if err != nil {
		return nil, err
	}
	return &Plan{
		ToFetch:  remote.Diff(local),
		ToDelete: local.Diff(remote),
		Remote:   remote.Len(),
		Local:    local.Len(),
	}, nil
}

// Plan refreshes the index and computes the diff without changing the
// mirror.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	remote, err := e.RefreshIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer remote.Close()
	return e.Diff(remote.Names)
}

// Run performs one full cycle. The report is returned even when err is
// non-nil. Item failures do not make err non-nil; see [Report.Err].
func (e *Engine) Run(ctx context.Context) (rep *Report, err error) {
	rep = &Report{
		ID:        uuid.NewString(),
		Upstream:  e.cfg.Upstream,
		StartedAt: time.Now(),
		Fetch:     PhaseResult{Phase: PhaseFetch},
		Delete:    PhaseResult{Phase: PhaseDelete},
	}
	logger := e.logger.With("cycle", rep.ID[:8])
	hooks := observability.Mirror()
	hooks.OnCycleStart(ctx, rep.ID, e.cfg.Upstream)
	logger.Info("cycle started", "upstream", e.cfg.Upstream, "root", e.store.Root())

	defer func() {
		rep.FinishedAt = time.Now()
		hooks.OnCycleComplete(ctx, rep.ID, rep.Failures(), rep.Duration(), err)
		if err != nil {
			logger.Error("cycle aborted", "err", err, "duration", rep.Duration().Round(time.Millisecond))
			return
		}
		logger.Info("cycle "+rep.Summary(), "duration", rep.Duration().Round(time.Millisecond))
	}()

	remote, err := e.RefreshIndex(ctx)
	if err != nil {
		return rep, err
	}
	defer remote.Close()

	plan, err := e.Diff(remote.Names)
	if err != nil {
		return rep, err
	}
	rep.Remote, rep.Local = plan.Remote, plan.Local
	logger.Info("diff computed", "remote", plan.Remote, "local", plan.Local,
		"fetch", len(plan.ToFetch), "delete", len(plan.ToDelete))

	if err := e.store.Init(); err != nil {
		return rep, err
	}

	t := &tracker{}
	p := pool.New(ctx, e.cfg.Parallelism, pool.WithOnDone(func(name string, err error) {
		e.itemDone(ctx, t, name, err)
	}))
	defer p.Close()

	rep.Fetch, err = e.runPhase(ctx, p, t, PhaseFetch, plan.ToFetch, e.fetchItem)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		rep.Delete.Planned = len(plan.ToDelete)
		rep.Delete.Skipped = plan.ToDelete
		return rep, err
	}

	rep.Delete, err = e.runPhase(ctx, p, t, PhaseDelete, plan.ToDelete, e.deleteItem)
	if err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if e.cfg.PublishIndex {
		if err := e.publish(remote); err != nil {
			return rep, err
		}
		rep.Published = true
	}
	return rep, nil
}

type itemFunc func(ctx context.Context, name string) error

// runPhase submits one job per name and waits for all of them.
func (e *Engine) runPhase(ctx context.Context, p *pool.Pool, t *tracker, phase Phase, names []string, do itemFunc) (PhaseResult, error) {
	res := PhaseResult{Phase: phase, Planned: len(names)}
	if len(names) == 0 {
		return res, nil
	}

	start := time.Now()
	t.reset(phase, len(names))
	e.logger.Info("phase started", "phase", phase, "items", len(names), "parallelism", p.Limit())

	for _, name := range names {
		if err := p.Submit(name, func(ctx context.Context) error {
			return do(ctx, name)
		}); err != nil {
			p.Wait()
			return res, errors.Wrap(errors.ErrCodePool, err, "%s phase", phase)
		}
	}
	sum := p.Wait()

	res.Succeeded = sum.Succeeded
	res.Skipped = slices.Sorted(slices.Values(sum.Skipped))
	for _, f := range sum.Failures {
		err := f.Err
		if _, ok := err.(*pool.PanicError); ok {
			err = errors.Wrap(errors.ErrCodeInternal, err, "job panicked")
		}
		res.Failed = append(res.Failed, &ItemError{Phase: phase, Name: f.Name, Err: err})
	}
	slices.SortFunc(res.Failed, func(a, b *ItemError) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	res.Duration = time.Since(start)

	for _, f := range res.Failed {
		e.logger.Warn("item failed", "phase", phase, "name", f.Name, "err", f.Err)
	}
	e.logger.Info("phase complete", "phase", phase, "ok", res.Succeeded,
		"failed", len(res.Failed), "skipped", len(res.Skipped), "duration", res.Duration.Round(time.Millisecond))
	observability.Mirror().OnPhaseComplete(ctx, string(phase), res.Planned, len(res.Failed), res.Duration)
	return res, nil
}

func (e *Engine) fetchItem(ctx context.Context, name string) error {
	if err := errors.ValidateArtifactName(name); err != nil {
		return err
	}
	remote := index.JoinPath(e.cfg.Upstream, storage.GemsDir, name)
	return e.fetcher.Fetch(ctx, remote, e.store, storage.GemPath(name))
}

func (e *Engine) deleteItem(_ context.Context, name string) error {
	return e.store.Delete(name)
}

// tracker counts finished items of the running phase. Its fields are only
// written while the pool is idle.
type tracker struct {
	phase Phase
	total int
	done  atomic.Int64
}

func (t *tracker) reset(phase Phase, total int) {
	t.phase = phase
	t.total = total
	t.done.Store(0)
}

func (e *Engine) itemDone(ctx context.Context, t *tracker, name string, err error) {
	n := t.done.Add(1)
	observability.Mirror().OnItemComplete(ctx, string(t.phase), err)
	e.logger.Debug("item done", "phase", t.phase, "name", name, "err", err)
	if e.progress != nil {
		e.progress(Progress{Phase: t.phase, Done: int(n), Total: t.total, Name: name, Err: err})
	}
}
