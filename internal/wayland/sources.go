//go:build linux || freebsd

package wayland

import "github.com/labi-le/clipseat/internal/clipboard"

// sourceTracker counts the published sources of every channel across all
// bindings of a connection.
type sourceTracker struct {
	live   map[clipboard.Channel]int
	onGone func(ch clipboard.Channel)
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{live: make(map[clipboard.Channel]int)}
}

func (t *sourceTracker) add(ch clipboard.Channel) {
	t.live[ch]++
}

// remove reports the channel once its last source is gone.
func (t *sourceTracker) remove(ch clipboard.Channel) {
	if t.live[ch] == 0 {
		return
	}

	t.live[ch]--
	if t.live[ch] > 0 {
		return
	}

	delete(t.live, ch)
	if t.onGone != nil {
		t.onGone(ch)
	}
}

func (t *sourceTracker) serving(ch clipboard.Channel) bool {
	return t.live[ch] > 0
}
