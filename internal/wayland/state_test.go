//go:build linux || freebsd

package wayland

import (
	"deedles.dev/wl/wire"
)

// recordingState stands in for a client connection and keeps every request
// that would have been sent.
type recordingState struct {
	nextID uint32
	sent   []*wire.MessageBuilder
}

func (s *recordingState) Add(obj wire.Object) {
	if obj.ID() == 0 {
		s.nextID++
		obj.SetID(s.nextID)
	}
}

func (s *recordingState) Get(uint32) wire.Object { return nil }

func (s *recordingState) Enqueue(mb *wire.MessageBuilder) {
	s.sent = append(s.sent, mb)
}

// requests lists the requests sent by obj, by name.
func (s *recordingState) requests(obj wire.Object) []string {
	var out []string
	for _, mb := range s.sent {
		if mb.Sender() == obj {
			out = append(out, mb.Method)
		}
	}
	return out
}
