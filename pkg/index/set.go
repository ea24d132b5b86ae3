package index

import (
	"slices"
)

// Set is a set of artifact filenames.
type Set map[string]struct{}

// NewSet returns a set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is a member.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Diff returns the members of s that are not in other, sorted.
func (s Set) Diff(other Set) []string {
	var out []string
	for n := range s {
		if !other.Has(n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// Merge maps every entry of every listing to its artifact name. Listings are
// applied in order, so an entry in a later listing replaces an earlier entry
// that derives the same name.
func Merge(listings ...[]Entry) map[string]Entry {
	n := 0
	for _, l := range listings {
		n += len(l)
	}
	out := make(map[string]Entry, n)
	for _, l := range listings {
		for _, e := range l {
			out[e.ArtifactName()] = e
		}
	}
	return out
}

// Build merges the release, prerelease and latest listings into the set of
// artifact names that should exist. No entry is filtered out.
func Build(release, prerelease, latest []Entry) Set {
	merged := Merge(release, prerelease, latest)
	s := make(Set, len(merged))
	for name := range merged {
		s.Add(name)
	}
	return s
}
