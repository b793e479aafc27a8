//go:build linux || freebsd

package wayland

import (
	"testing"

	wl "deedles.dev/wl/client"
	"github.com/google/go-cmp/cmp"
	"github.com/labi-le/clipseat/internal/clipboard"
	"github.com/labi-le/clipseat/internal/wayland/datacontrol"
	"github.com/rs/zerolog"
)

func newTestConn(state *recordingState) *Conn {
	return &Conn{
		logger:  zerolog.Nop(),
		seats:   make(map[uint32]boundSeat),
		manager: datacontrol.NewManager(state),
		sources: newSourceTracker(),
	}
}

func TestConn_GlobalRemoveReleasesSeat(t *testing.T) {
	testCases := []struct {
		name    string
		version uint32
		want    []string
	}{
		{name: "seat with destructor", version: 7, want: []string{"release"}},
		{name: "oldest seat with destructor", version: seatReleaseSince, want: []string{"release"}},
		{name: "seat without destructor", version: 4, want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			state := &recordingState{}
			c := newTestConn(state)

			seat := wl.NewSeat(state)
			state.Add(seat)
			c.seats[42] = boundSeat{seat: seat, version: tc.version}

			changes := 0
			c.OnSeatsChanged(func() { changes++ })

			c.GlobalRemove(42)

			if diff := cmp.Diff(tc.want, state.requests(seat)); diff != "" {
				t.Fatalf("unexpected seat requests (-want +got):\n%s", diff)
			}
			if _, ok := c.seats[42]; ok {
				t.Fatal("removed seat is still tracked")
			}
			if changes != 1 {
				t.Fatalf("expected one change notification, got %d", changes)
			}
			if got := c.Seats(); len(got) != 0 {
				t.Fatalf("expected no seats, got %v", got)
			}
		})
	}
}

func TestConn_GlobalRemoveUnknownName(t *testing.T) {
	state := &recordingState{}
	c := newTestConn(state)

	seat := wl.NewSeat(state)
	state.Add(seat)
	c.seats[1] = boundSeat{seat: seat, version: wl.SeatVersion}

	changes := 0
	c.OnSeatsChanged(func() { changes++ })

	c.GlobalRemove(99)

	if changes != 0 {
		t.Fatalf("unknown globals must not notify, got %d", changes)
	}
	if len(state.requests(seat)) != 0 {
		t.Fatal("unrelated seat must not be released")
	}
	if diff := cmp.Diff([]clipboard.SeatID{1}, c.Seats()); diff != "" {
		t.Fatalf("unexpected seats (-want +got):\n%s", diff)
	}
}
