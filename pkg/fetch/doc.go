// Package fetch transfers remote resources into local storage.
//
// A [Fetcher] retrieves the resource at a remote locator and hands the bytes
// to a [Writer] under a relative path. The mirror only needs a pass/fail
// result per call; how the transfer is performed is up to the
// implementation.
//
// [HTTP] is the production fetcher. It retries transient failures (network
// errors and 5xx responses) with exponential backoff via [Retry], maps 404 to
// [ErrNotFound] and any other non-200 status to [ErrStatus], and reports
// every request through the HTTP hooks in pkg/observability.
//
//	f := fetch.NewHTTP(fetch.WithRetry(5, 500*time.Millisecond))
//	err := f.Fetch(ctx, "https://rubygems.org/gems/rake-13.0.6.gem", store, "gems/rake-13.0.6.gem")
package fetch
