//go:build linux || freebsd

// Package wayland connects the clipboard registry to a compositor through
// the wlr-data-control protocol.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	wl "deedles.dev/wl/client"
	"github.com/labi-le/clipseat/internal/clipboard"
	"github.com/labi-le/clipseat/internal/wayland/datacontrol"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/rs/zerolog"
)

var (
	ErrNoManager = errors.New("compositor does not support " + datacontrol.ManagerInterface)
	ErrNoSeat    = errors.New("seat is gone")
)

// Supported reports whether a Wayland session is reachable from the
// environment.
var Supported = (func() bool {
	_, display := os.LookupEnv("WAYLAND_DISPLAY")
	_, socket := os.LookupEnv("WAYLAND_SOCKET")
	return display || socket
})()

// wl_seat.release exists since this version.
const seatReleaseSince = 5

type boundSeat struct {
	seat    *wl.Seat
	version uint32
}

// release tells the compositor the proxy is no longer used. Older seats
// have no destructor and are just forgotten.
func (s boundSeat) release() bool {
	if s.version < seatReleaseSince {
		return false
	}
	s.seat.Release()
	return true
}

// Conn implements clipboard.Protocol. Every method, and every listener it
// installs, runs on the main context.
type Conn struct {
	client   *wl.Client
	registry *wl.Registry
	logger   zerolog.Logger

	seats       map[uint32]boundSeat
	manager     *datacontrol.Manager
	managerName uint32

	sources  *sourceTracker
	onChange func()
}

func Dial(logger zerolog.Logger) (*Conn, error) {
	client, err := wl.Dial()
	if err != nil {
		return nil, fmt.Errorf("wayland dial: %w", err)
	}

	return New(client, logger), nil
}

func New(client *wl.Client, logger zerolog.Logger) *Conn {
	return &Conn{
		client:  client,
		logger:  logger.With().Str("component", "wayland").Logger(),
		seats:   make(map[uint32]boundSeat),
		sources: newSourceTracker(),
	}
}

// OnSeatsChanged installs fn, called whenever a seat or the data control
// manager appears or disappears.
func (c *Conn) OnSeatsChanged(fn func()) {
	c.onChange = fn
}

// OnSourceCancelled installs fn, called when the last source published on a
// channel is cancelled, e.g. because another client took the selection.
func (c *Conn) OnSourceCancelled(fn func(ch clipboard.Channel)) {
	c.sources.onGone = fn
}

// Serving reports whether a source published on ch is still live.
func (c *Conn) Serving(ch clipboard.Channel) bool {
	return c.sources.serving(ch)
}

// Setup fetches the globals and fails when data control is unavailable.
func (c *Conn) Setup() error {
	c.registry = c.client.Display().GetRegistry()
	c.registry.Listener = c

	if err := c.client.RoundTrip(); err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	if c.manager == nil {
		return ErrNoManager
	}

	c.logger.Debug().
		Int("seats", len(c.seats)).
		Msg("wayland globals bound")

	return nil
}

func (c *Conn) Global(name uint32, inter string, version uint32) {
	switch inter {
	case wl.SeatInterface:
		version = min(version, wl.SeatVersion)
		c.seats[name] = boundSeat{
			seat:    wl.BindSeat(c.client, c.registry, name, version),
			version: version,
		}
		c.logger.Trace().
			Uint32("name", name).
			Uint32("version", version).
			Msg("bound seat")
	case datacontrol.ManagerInterface:
		if c.manager != nil {
			return
		}
		c.manager = datacontrol.BindManager(c.client, c.registry, name, min(version, datacontrol.ManagerVersion))
		c.managerName = name
		c.logger.Trace().Uint32("name", name).Msg("bound data control manager")
	default:
		return
	}

	c.changed()
}

func (c *Conn) GlobalRemove(name uint32) {
	switch {
	case c.manager != nil && name == c.managerName:
		c.manager = nil
		c.logger.Warn().Msg("data control manager removed")
	case c.hasSeat(name):
		released := c.seats[name].release()
		delete(c.seats, name)
		c.logger.Debug().
			Uint32("name", name).
			Bool("released", released).
			Msg("seat removed")
	default:
		return
	}

	c.changed()
}

func (c *Conn) hasSeat(name uint32) bool {
	_, ok := c.seats[name]
	return ok
}

func (c *Conn) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Conn) Seats() []clipboard.SeatID {
	if c.manager == nil {
		return nil
	}

	seats := make([]clipboard.SeatID, 0, len(c.seats))
	for _, name := range slices.Sorted(maps.Keys(c.seats)) {
		seats = append(seats, clipboard.SeatID(name))
	}

	return seats
}

func (c *Conn) Bind(seat clipboard.SeatID, dev *clipboard.Device) (clipboard.Binding, error) {
	if c.manager == nil {
		return nil, ErrNoManager
	}

	bound, ok := c.seats[uint32(seat)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSeat, seat)
	}

	b := newBinding(c.manager, dev, c.sources, c.logger)
	b.device = c.manager.GetDataDevice(bound.seat)
	b.device.Listener = b

	return b, nil
}

func (c *Conn) Flush() error {
	return c.client.RoundTrip()
}

// Run dispatches compositor events and scheduled closures on loop until
// ctx is done or the connection drops.
func (c *Conn) Run(ctx context.Context, loop *dispatch.Loop) error {
	return loop.Run(ctx, c.client.Events())
}

func (c *Conn) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("wayland close: %w", err)
	}
	return nil
}
