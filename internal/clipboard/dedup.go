package clipboard

import (
	"github.com/cespare/xxhash"
)

// deduplicator remembers the last content seen on a channel. It lives on
// the main context.
type deduplicator struct {
	lastHash uint64
	seen     bool
}

// Check reports whether data differs from the last content and records it.
func (d *deduplicator) Check(data []byte) (uint64, bool) {
	h := xxhash.Sum64(data)
	if d.seen && h == d.lastHash {
		return h, false
	}
	d.lastHash, d.seen = h, true
	return h, true
}

// Mark records locally published content so its echo is not reported.
func (d *deduplicator) Mark(data []byte) {
	d.lastHash, d.seen = xxhash.Sum64(data), true
}
