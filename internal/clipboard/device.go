//go:build linux || freebsd

package clipboard

import (
	"github.com/labi-le/clipseat/internal/reader"
	"github.com/labi-le/clipseat/pkg/dispatch"
	"github.com/rs/zerolog"
)

// Device tracks the selections of one seat. It owns a single reader thread
// for its whole lifetime and at most one live offer per channel.
type Device struct {
	seat   SeatID
	thread *reader.Thread
	flush  func() error
	opts   Options
	logger zerolog.Logger

	offers  [channelCount]*Offer
	pending map[*Offer]struct{}
	closed  bool

	onSelection func(ch Channel, data []byte, password bool)
}

func NewDevice(seat SeatID, main dispatch.Scheduler, flush func() error, opts Options) *Device {
	logger := opts.Logger.With().
		Str("component", "device").
		Uint32("seat", uint32(seat)).
		Logger()

	d := &Device{
		seat:    seat,
		thread:  reader.New(main, opts.readerOptions(logger)...),
		flush:   flush,
		opts:    opts,
		logger:  logger,
		pending: make(map[*Offer]struct{}),
	}

	if err := d.thread.Start(); err != nil {
		d.logger.Error().Err(err).Msg("reader did not start, selections will be empty")
	}

	return d
}

func (d *Device) Seat() SeatID { return d.seat }

// NewOffer registers an offer the compositor has just introduced. It is
// adopted by a later SetSelection.
func (d *Device) NewOffer(peer OfferPeer) *Offer {
	o := newOffer(peer, d.flush, d.opts.IgnorePassword, d.logger)
	if d.closed {
		o.Destroy()
		return o
	}

	d.pending[o] = struct{}{}
	return o
}

// SetSelection makes o the live offer of ch and destroys the previous one.
// A nil offer means the selection was cleared.
func (d *Device) SetSelection(ch Channel, o *Offer) {
	if !ch.valid() {
		return
	}
	if d.closed {
		if o != nil {
			o.Destroy()
		}
		return
	}

	if o != nil {
		delete(d.pending, o)
	}

	prev := d.offers[ch]
	d.offers[ch] = o
	if prev != nil && prev != o {
		prev.Destroy()
	}

	if o == nil {
		d.logger.Trace().Stringer("channel", ch).Msg("selection cleared")
		return
	}

	d.logger.Trace().
		Stringer("channel", ch).
		Strs("available_mimes", o.MimeTypes()).
		Msg("selection received")

	if d.onSelection != nil {
		o.ReceiveData(d.thread, func(data []byte, password bool) {
			d.onSelection(ch, data, password)
		})
	}
}

// Offer returns the live offer of ch, if any.
func (d *Device) Offer(ch Channel) *Offer {
	if !ch.valid() {
		return nil
	}
	return d.offers[ch]
}

// Get retrieves the current content of ch. Without a live offer cb runs
// immediately with no content.
func (d *Device) Get(ch Channel, cb Callback) {
	if cb == nil {
		return
	}

	o := d.Offer(ch)
	if o == nil || d.closed {
		cb(nil, false)
		return
	}

	o.ReceiveData(d.thread, cb)
}

// Close destroys every offer and joins the reader thread.
func (d *Device) Close() {
	if d.closed {
		return
	}
	d.closed = true

	for o := range d.pending {
		o.Destroy()
	}
	clear(d.pending)

	for ch, o := range d.offers {
		if o != nil {
			o.Destroy()
			d.offers[ch] = nil
		}
	}

	d.thread.Stop()

	d.logger.Trace().Msg("device closed")
}
