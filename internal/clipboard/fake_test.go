//go:build linux || freebsd

package clipboard_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labi-le/clipseat/internal/clipboard"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/labi-le/clipseat/pkg/mime"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const testTimeout = 100 * time.Millisecond

// fakePeer plays the client that announced an offer.
type fakePeer struct {
	content  []byte
	password bool
	delay    time.Duration
	silent   bool

	receives  atomic.Int32
	destroyed atomic.Bool

	mu   sync.Mutex
	held []*os.File
}

func (p *fakePeer) Receive(mimeType string, f *os.File) {
	p.receives.Add(1)

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return
	}
	w := os.NewFile(uintptr(fd), "peer")

	if p.silent {
		p.mu.Lock()
		p.held = append(p.held, w)
		p.mu.Unlock()
		return
	}

	data := p.content
	if mimeType == mime.PasswordHint {
		data = nil
		if p.password {
			data = []byte(mime.SecretValue)
		}
	}

	go func() {
		time.Sleep(p.delay)
		_, _ = w.Write(data)
		_ = w.Close()
	}()
}

func (p *fakePeer) Destroy() {
	p.destroyed.Store(true)
}

func (p *fakePeer) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.held {
		_ = f.Close()
	}
	p.held = nil
}

// recordingPeer remembers every requested mime type. Receive runs on the
// main context, so requested is only read from there.
type recordingPeer struct {
	fakePeer
	requested *[]string
}

func (p *recordingPeer) Receive(mimeType string, f *os.File) {
	*p.requested = append(*p.requested, mimeType)
	p.fakePeer.Receive(mimeType, f)
}

type fakeBinding struct {
	proto  *fakeProtocol
	seat   clipboard.SeatID
	dev    *clipboard.Device
	closed bool
}

// Publish echoes the selection back the way a compositor does.
func (b *fakeBinding) Publish(ch clipboard.Channel, content []byte, password bool) {
	peer := &fakePeer{content: content, password: password}
	b.proto.t.Cleanup(peer.release)
	announce(b.dev, ch, peer, publishedTypes(password)...)
}

func (b *fakeBinding) Close() {
	b.closed = true
}

func publishedTypes(password bool) []string {
	types := mime.TextTypes()
	if password {
		types = append(types, mime.PasswordHint)
	}
	return types
}

// fakeProtocol is only touched from the main context.
type fakeProtocol struct {
	t        *testing.T
	seats    []clipboard.SeatID
	bindings map[clipboard.SeatID]*fakeBinding
	flushErr error
	flushes  int
}

func newFakeProtocol(t *testing.T, seats ...clipboard.SeatID) *fakeProtocol {
	return &fakeProtocol{
		t:        t,
		seats:    seats,
		bindings: make(map[clipboard.SeatID]*fakeBinding),
	}
}

func (p *fakeProtocol) Seats() []clipboard.SeatID {
	out := make([]clipboard.SeatID, len(p.seats))
	copy(out, p.seats)
	return out
}

func (p *fakeProtocol) Bind(seat clipboard.SeatID, dev *clipboard.Device) (clipboard.Binding, error) {
	b := &fakeBinding{proto: p, seat: seat, dev: dev}
	p.bindings[seat] = b
	return b, nil
}

func (p *fakeProtocol) Flush() error {
	p.flushes++
	return p.flushErr
}

func announce(dev *clipboard.Device, ch clipboard.Channel, peer clipboard.OfferPeer, types ...string) *clipboard.Offer {
	o := dev.NewOffer(peer)
	for _, m := range types {
		o.AddMimeType(m)
	}
	dev.SetSelection(ch, o)
	return o
}

type mainContext struct {
	t    *testing.T
	ctx  context.Context
	loop *dispatch.Loop
}

func newMainContext(t *testing.T) *mainContext {
	t.Helper()

	// t.Context is cancelled before cleanups run, the loop must outlive it
	ctx, cancel := context.WithCancel(context.Background())
	loop := dispatch.NewLoop(zerolog.Nop())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx, nil)
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &mainContext{t: t, ctx: ctx, loop: loop}
}

func (m *mainContext) do(fn func()) {
	m.t.Helper()

	ctx, cancel := context.WithTimeout(m.ctx, 3*time.Second)
	defer cancel()

	if err := m.loop.Call(ctx, fn); err != nil {
		m.t.Fatalf("main context call failed: %v", err)
	}
}

type content struct {
	data     []byte
	password bool
}

func collector() (clipboard.Callback, <-chan content) {
	out := make(chan content, 8)
	return func(data []byte, password bool) {
		out <- content{data: data, password: password}
	}, out
}

func expectContent(t *testing.T, ch <-chan content) content {
	t.Helper()

	select {
	case c := <-ch:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for content")
	}

	return content{}
}

func expectNoContent(t *testing.T, ch <-chan content, wait time.Duration) {
	t.Helper()

	select {
	case c := <-ch:
		t.Fatalf("callback must not fire, got %q", c.data)
	case <-time.After(wait):
	}
}
