// Package pool runs independent units of work with bounded concurrency.
//
// # Overview
//
// A [Pool] accepts jobs through [Pool.Submit] and runs at most limit of them
// at a time. Submit never blocks: jobs beyond the limit wait in an unbounded
// FIFO queue. [Pool.Wait] is the completion barrier; it returns once every
// submitted job has finished, successfully or not, and hands back a
// [Summary] of that batch.
//
//	p := pool.New(ctx, 10)
//	for _, name := range names {
//	    p.Submit(name, func(ctx context.Context) error {
//	        return fetch(ctx, name)
//	    })
//	}
//	summary := p.Wait()
//	log.Info("batch done", "ok", summary.Succeeded, "failed", len(summary.Failures))
//
// # Failure isolation
//
// A job that returns an error, or panics, is recorded as a [Failure] and
// does not affect any other job. Wait never hangs on a failed job.
//
// # Cancellation
//
// Jobs receive the pool's context. Once it is cancelled, jobs that have not
// started are dropped and listed in [Summary.Skipped]; jobs already running
// are left to observe the context themselves.
//
// # Reuse
//
// Wait may be called again after more work is submitted; each call returns
// the summary of the jobs finished since the previous call. Submit is safe
// from inside a running job. Submitting from another goroutine while Wait
// is returning is not supported; finish one batch before starting the next.
package pool
