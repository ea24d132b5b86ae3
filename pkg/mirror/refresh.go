package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/gemmirror/pkg/cache"
	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/index"
	"github.com/matzehuels/gemmirror/pkg/observability"
	"github.com/matzehuels/gemmirror/pkg/storage"
)

const indexKeyType = "index"

// RemoteIndex is the freshly downloaded upstream index of one cycle.
type RemoteIndex struct {
	// Listings holds the decoded entries per kind.
	Listings map[index.Kind][]index.Entry

	// Digests holds the SHA-256 of each compressed payload.
	Digests map[index.Kind]string

	// Names is the merged set of artifact names.
	Names index.Set

	FetchedAt time.Time

	temp *storage.Store
	dir  string
}

// Close removes the downloaded payloads.
func (r *RemoteIndex) Close() error {
	if r.temp == nil {
		return nil
	}
	return r.temp.RemoveAll(r.dir)
}

// RefreshIndex downloads and decodes all three listings. Any failure is
// fatal and reported with [errors.ErrCodeIndexRefresh].
func (e *Engine) RefreshIndex(ctx context.Context) (*RemoteIndex, error) {
	r := &RemoteIndex{
		Listings: make(map[index.Kind][]index.Entry, 3),
		Digests:  make(map[index.Kind]string, 3),
		temp:     e.temp,
		dir:      "gemmirror-" + uuid.NewString(),
	}

	for _, kind := range index.Kinds() {
		if err := ctx.Err(); err != nil {
			r.Close()
			return nil, err
		}
		start := time.Now()
		entries, digest, err := e.refreshKind(ctx, r.dir, kind)
		observability.Mirror().OnIndexRefresh(ctx, kind.String(), len(entries), time.Since(start), err)
		if err != nil {
			r.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(errors.ErrCodeIndexRefresh, err, "refresh %s", kind.CompressedFilename())
		}
		r.Listings[kind] = entries
		r.Digests[kind] = digest
		e.logger.Debug("index refreshed", "kind", kind, "entries", len(entries), "duration", time.Since(start).Round(time.Millisecond))
	}

	r.Names = index.Build(r.Listings[index.Release], r.Listings[index.Prerelease], r.Listings[index.Latest])
	r.FetchedAt = time.Now()
	return r, nil
}

func (e *Engine) refreshKind(ctx context.Context, dir string, kind index.Kind) ([]index.Entry, string, error) {
	name := kind.CompressedFilename()
	p := index.JoinPath(dir, name)
	if err := e.fetcher.Fetch(ctx, index.JoinPath(e.cfg.Upstream, name), e.temp, p); err != nil {
		return nil, "", err
	}

	digest, err := e.digest(p)
	if err != nil {
		return nil, "", err
	}

	key := e.keyer.IndexKey(kind.String(), digest)
	var entries []index.Entry
	if hit, err := cache.GetJSON(ctx, e.cache, indexKeyType, key, &entries); err != nil {
		e.logger.Warn("index cache read failed", "kind", kind, "err", err)
	} else if hit {
		e.logger.Debug("index cache hit", "kind", kind)
		return entries, digest, nil
	}

	f, err := e.temp.Open(p)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	entries, err = index.DecodeGzip(f)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidIndex, err, "decode %s", name)
	}

	if err := cache.SetJSON(ctx, e.cache, indexKeyType, key, entries, e.cfg.IndexCacheTTL); err != nil {
		e.logger.Warn("index cache write failed", "kind", kind, "err", err)
	}
	return entries, digest, nil
}

func (e *Engine) digest(p string) (string, error) {
	f, err := e.temp.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return cache.HashReader(f)
}

// publish copies the index payloads into the mirror root.
func (e *Engine) publish(r *RemoteIndex) error {
	for _, kind := range index.Kinds() {
		name := kind.CompressedFilename()
		if err := e.temp.Copy(e.store, index.JoinPath(r.dir, name), name); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "publish %s", name)
		}
	}
	e.logger.Debug("index published", "root", e.store.Root())
	return nil
}
