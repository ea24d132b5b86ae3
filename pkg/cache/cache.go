// Package cache stores decoded index listings between cycles.
//
// Decoding a full specs payload is the most expensive local step of a
// cycle, and most cycles see at least one unchanged listing. Entries are
// keyed by the SHA-256 digest of the compressed payload (see [Keyer]), so a
// hit is only possible when the bytes are identical.
//
// Three backends implement [Cache]:
//   - [FileCache]: JSON files under the user cache directory (CLI default)
//   - [RedisCache]: a shared Redis instance for fleets of mirrors
//   - [NullCache]: caching disabled
//
// Values are opaque bytes; [GetJSON] and [SetJSON] add JSON encoding and
// report hits, misses and writes to the cache hooks in pkg/observability.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
