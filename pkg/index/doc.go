// Package index models the authoritative listing of artifacts published by a
// RubyGems-compatible repository.
//
// # Overview
//
// A repository publishes three listings, each a gzip-compressed Ruby Marshal
// 4.8 array of [name, version, platform] triples:
//
//   - [Release]: specs.4.8.gz, every released version
//   - [Prerelease]: prerelease_specs.4.8.gz, every prerelease version
//   - [Latest]: latest_specs.4.8.gz, the newest version of each gem
//
// [DecodeGzip] turns a payload into [Entry] values, [Build] merges the three
// listings into a [Set] of artifact filenames, and [Set.Diff] computes the
// work a mirror must do:
//
//	remote := index.Build(release, prerelease, latest)
//	toFetch := remote.Diff(local)
//	toDelete := local.Diff(remote)
//
// # Artifact names
//
// An entry maps to a filename with [Entry.ArtifactName]:
//
//	{rake 13.0.6 ruby}          -> rake-13.0.6.gem
//	{nokogiri 1.15.4 java}      -> nokogiri-1.15.4-java.gem
//
// The "ruby" platform ([RubyPlatform]) means "no platform suffix"; every
// other platform string is appended verbatim. Distinct
// entries that derive the same name collapse into a single member; when
// that happens the entry merged last wins in [Merge].
package index
