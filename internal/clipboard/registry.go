//go:build linux || freebsd

package clipboard

import (
	"bytes"
	"maps"
	"slices"

	"github.com/labi-le/clipseat/pkg/ctxlog"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/labi-le/clipseat/pkg/id"
	"github.com/rs/zerolog"
)

type seatDevice struct {
	device  *Device
	binding Binding
}

// Registry owns one Device per seat. All methods run on the main context.
type Registry struct {
	proto  Protocol
	main   dispatch.Scheduler
	opts   Options
	logger zerolog.Logger

	devices map[SeatID]seatDevice
	dedup   [channelCount]deduplicator
	closed  bool
}

func NewRegistry(proto Protocol, main dispatch.Scheduler, opts ...Option) *Registry {
	options := NewOptions(opts...)

	return &Registry{
		proto:   proto,
		main:    main,
		opts:    options,
		logger:  options.Logger.With().Str("component", "registry").Logger(),
		devices: make(map[SeatID]seatDevice),
	}
}

// RefreshSeat reconciles the devices with the seats the protocol reports.
func (r *Registry) RefreshSeat() {
	if r.closed {
		return
	}

	current := make(map[SeatID]struct{})
	for _, seat := range r.proto.Seats() {
		current[seat] = struct{}{}
	}

	changed := false
	for seat, sd := range r.devices {
		if _, ok := current[seat]; !ok {
			r.removeDevice(seat, sd)
			changed = true
		}
	}

	for _, seat := range slices.Sorted(maps.Keys(current)) {
		if _, ok := r.devices[seat]; !ok {
			r.addDevice(seat)
			changed = true
		}
	}

	// new devices receive their initial selections during the flush
	if changed {
		if err := r.proto.Flush(); err != nil {
			r.logger.Error().Err(err).Msg("failed to flush seat changes")
		}
	}
}

func (r *Registry) addDevice(seat SeatID) {
	log := ctxlog.Op(r.logger, "registry.addDevice")

	dev := NewDevice(seat, r.main, r.proto.Flush, r.opts)
	if r.opts.OnSelection != nil {
		dev.onSelection = func(ch Channel, data []byte, password bool) {
			r.report(seat, ch, data, password)
		}
	}

	binding, err := r.proto.Bind(seat, dev)
	if err != nil {
		log.Error().
			Uint32("seat", uint32(seat)).
			Err(err).
			Msg("failed to bind data device")
		dev.Close()
		return
	}

	r.devices[seat] = seatDevice{device: dev, binding: binding}
	log.Debug().Uint32("seat", uint32(seat)).Msg("device added")
}

func (r *Registry) removeDevice(seat SeatID, sd seatDevice) {
	delete(r.devices, seat)

	sd.device.Close()
	sd.binding.Close()

	r.logger.Debug().Uint32("seat", uint32(seat)).Msg("device removed")
}

func (r *Registry) SetClipboard(content []byte, password bool) {
	r.publish(Clipboard, content, password)
}

func (r *Registry) SetPrimary(content []byte, password bool) {
	r.publish(Primary, content, password)
}

func (r *Registry) publish(ch Channel, content []byte, password bool) {
	if r.closed {
		return
	}

	log := ctxlog.Op(r.logger, "registry.publish")

	data := bytes.Clone(content)
	r.dedup[ch].Mark(data)

	for _, seat := range r.Devices() {
		r.devices[seat].binding.Publish(ch, data, password)
	}

	if err := r.proto.Flush(); err != nil {
		log.Error().
			Stringer("channel", ch).
			Err(err).
			Msg("failed to flush selection")
	}
}

func (r *Registry) report(seat SeatID, ch Channel, data []byte, password bool) {
	if len(data) == 0 {
		return
	}

	hash, fresh := r.dedup[ch].Check(data)
	if !fresh {
		r.logger.Trace().
			Stringer("channel", ch).
			Uint64("hash", hash).
			Msg("duplicate selection skipped")
		return
	}

	r.opts.OnSelection(Update{
		ID:       id.New(),
		Seat:     seat,
		Channel:  ch,
		Data:     data,
		Password: password,
		Hash:     hash,
	})
}

// Get retrieves ch from the first seat. Without any seat cb runs
// immediately with no content.
func (r *Registry) Get(ch Channel, cb Callback) {
	seats := r.Devices()
	if len(seats) == 0 {
		if cb != nil {
			cb(nil, false)
		}
		return
	}

	r.devices[seats[0]].device.Get(ch, cb)
}

func (r *Registry) Devices() []SeatID {
	return slices.Sorted(maps.Keys(r.devices))
}

func (r *Registry) Device(seat SeatID) (*Device, bool) {
	sd, ok := r.devices[seat]
	return sd.device, ok
}

// Close tears every device down, joining their readers.
func (r *Registry) Close() {
	if r.closed {
		return
	}
	r.closed = true

	for seat, sd := range r.devices {
		r.removeDevice(seat, sd)
	}
}
