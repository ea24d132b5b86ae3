package cache

// Keyer builds cache keys.
type Keyer interface {
	// IndexKey is the key of a decoded listing of the given kind whose
	// compressed payload has the given digest.
	IndexKey(kind, digest string) string
}

// DefaultKeyer produces keys of the form "index:<kind>:<digest>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// IndexKey implements [Keyer].
func (DefaultKeyer) IndexKey(kind, digest string) string {
	return "index:" + kind + ":" + digest
}

// ScopedKeyer wraps a Keyer with a prefix, so several mirrors with
// different upstreams can share one Redis instance.
//
//	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "mirror:internal:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// IndexKey implements [Keyer].
func (k *ScopedKeyer) IndexKey(kind, digest string) string {
	return k.prefix + k.inner.IndexKey(kind, digest)
}
