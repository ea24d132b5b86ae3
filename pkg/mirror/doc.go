// Package mirror reconciles a local gem mirror with its upstream.
//
// # Cycle
//
// [Engine.Run] performs one reconciliation cycle:
//
//  1. RefreshIndex: download the three listings (specs, prerelease_specs,
//     latest_specs), decompress and decode them. Any failure aborts the
//     cycle: a partial index would classify good artifacts as stale.
//  2. Diff: merge the listings into the remote set, list the local
//     inventory, and compute toFetch = remote - local and
//     toDelete = local - remote.
//  3. Fetch phase: one pool job per missing artifact, then a barrier.
//  4. Delete phase: one pool job per stale artifact, then a barrier.
//  5. Done: optionally publish the index files next to the artifacts.
//
// Fetching before deleting means an interrupted cycle leaves the mirror a
// superset of what it should hold, never missing artifacts the new index
// needs.
//
// # Failures
//
// A failed fetch or delete is an [ItemError] in the [Report]; it never stops
// sibling work, and the next cycle retries it because the diff is recomputed
// from local state every time. Run returns an error only for index refresh
// failures, storage listing failures, pool failures and cancellation.
//
// # Concurrency
//
// Run owns one [pool.Pool] for the duration of the cycle. Items within a
// phase run concurrently on disjoint paths; the driver itself is
// sequential. The engine assumes it is the only cycle running against its
// root; callers use pkg/lock to guarantee that.
package mirror
