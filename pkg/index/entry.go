package index

import (
	"fmt"
	"strings"
)

const (
	// RubyPlatform is the platform of pure-Ruby gems. It is omitted from
	// artifact filenames.
	RubyPlatform = "ruby"

	// Extension is the filename extension of every artifact.
	Extension = ".gem"

	// MarshalVersion is the Ruby Marshal format version of the index files.
	MarshalVersion = "4.8"
)

// Entry is one published artifact: a gem name, its version and its platform.
type Entry struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// ArtifactName returns the canonical filename of the entry.
func (e Entry) ArtifactName() string {
	return ArtifactName(e)
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s, %s)", e.Name, e.Version, e.Platform)
}

// ArtifactName derives name-version[-platform].gem from an entry. Only
// [RubyPlatform] drops the suffix; any other value, including "", is
// appended. [Decode] never yields an empty platform for a nil one.
func ArtifactName(e Entry) string {
	if e.Platform == RubyPlatform {
		return e.Name + "-" + e.Version + Extension
	}
	return e.Name + "-" + e.Version + "-" + e.Platform + Extension
}

// JoinPath joins a base location and path elements with single slashes.
// It works for URLs and slash-separated storage paths alike; empty elements
// are skipped.
func JoinPath(base string, elems ...string) string {
	root := strings.TrimRight(base, "/")
	if root == "" && strings.HasPrefix(base, "/") {
		root = "/"
	}
	var b strings.Builder
	b.WriteString(root)
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "/") {
			b.WriteByte('/')
		}
		b.WriteString(e)
	}
	return b.String()
}

// Kind identifies one of the three listings a repository publishes.
type Kind string

const (
	Release    Kind = "specs"
	Prerelease Kind = "prerelease_specs"
	Latest     Kind = "latest_specs"
)

// Kinds returns the listings in merge order.
func Kinds() []Kind {
	return []Kind{Release, Prerelease, Latest}
}

// Filename returns the uncompressed filename, e.g. "specs.4.8".
func (k Kind) Filename() string {
	return string(k) + "." + MarshalVersion
}

// CompressedFilename returns the published filename, e.g. "specs.4.8.gz".
func (k Kind) CompressedFilename() string {
	return k.Filename() + ".gz"
}

// ParseKind parses a listing name as returned by [Kind.String].
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown index kind: %q", s)
}

func (k Kind) String() string { return string(k) }
