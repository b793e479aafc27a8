//go:build linux || freebsd

package clipboard

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/labi-le/clipseat/internal/reader"
	"github.com/labi-le/clipseat/pkg/ctxlog"
	"github.com/labi-le/clipseat/pkg/mime"
	"github.com/labi-le/clipseat/pkg/pipe"
	"github.com/labi-le/clipseat/pkg/trackable"
	"github.com/rs/zerolog"
)

var ErrTransferOpen = errors.New("clipboard: failed to open transfer")

// Offer is one announced selection. It belongs to the main context; the
// reader only ever sees a weak reference to it.
type Offer struct {
	handle *trackable.Handle[Offer]
	peer   OfferPeer
	flush  func() error
	logger zerolog.Logger

	mimeTypes      map[string]struct{}
	ignorePassword bool
	password       bool
	hintChecked    bool

	thread    *reader.Thread
	taskID    uint64
	destroyed bool
}

func newOffer(peer OfferPeer, flush func() error, ignorePassword bool, logger zerolog.Logger) *Offer {
	o := &Offer{
		peer:           peer,
		flush:          flush,
		logger:         logger.With().Str("component", "offer").Logger(),
		mimeTypes:      make(map[string]struct{}),
		ignorePassword: ignorePassword,
	}
	o.handle = trackable.New(o)

	return o
}

func (o *Offer) AddMimeType(mimeType string) {
	if o.destroyed || mimeType == "" {
		return
	}
	o.mimeTypes[mimeType] = struct{}{}
}

func (o *Offer) HasMimeType(mimeType string) bool {
	_, ok := o.mimeTypes[mimeType]
	return ok
}

func (o *Offer) MimeTypes() []string {
	return slices.Sorted(maps.Keys(o.mimeTypes))
}

func (o *Offer) SetPassword(password bool) { o.password = password }

func (o *Offer) Password() bool { return o.password }

func (o *Offer) Destroyed() bool { return o.destroyed }

// ReceiveData retrieves the offer as text. cb runs at most once on the main
// context; it never runs if nothing text-like is offered, the transfer
// cannot be opened, or the offer is destroyed first. A new call replaces
// the previous request.
func (o *Offer) ReceiveData(thread *reader.Thread, cb Callback) {
	if o.destroyed || thread == nil || cb == nil {
		return
	}

	if !o.hintChecked && o.HasMimeType(mime.PasswordHint) {
		o.receiveDataForMime(thread, mime.PasswordHint, func(data []byte) {
			o.hintChecked = true
			if string(data) == mime.SecretValue {
				o.password = true
			}
			o.receiveRealData(thread, cb)
		})
		return
	}

	o.receiveRealData(thread, cb)
}

func (o *Offer) receiveRealData(thread *reader.Thread, cb Callback) {
	log := ctxlog.Op(o.logger, "offer.receiveRealData")

	if o.password && o.ignorePassword {
		log.Debug().Msg("password content ignored")
		return
	}

	selected := mime.PreferText(o.MimeTypes())
	if selected == "" {
		log.Debug().
			Strs("available_mimes", o.MimeTypes()).
			Msg("no text mime type available")
		return
	}

	o.receiveDataForMime(thread, selected, func(data []byte) {
		cb(data, o.password)
	})
}

func (o *Offer) receiveDataForMime(thread *reader.Thread, mimeType string, fn reader.Callback) {
	o.cancelTask()

	fd, err := o.openTransfer(mimeType)
	if err != nil {
		o.logger.Warn().
			Str("mime", mimeType).
			Err(err).
			Msg("transfer failed")
		return
	}

	o.thread = thread

	ref := o.handle.Ref()

	var id uint64
	id = thread.AddTask(ref, fd, func(data []byte) {
		// a later request superseded this one
		o := ref.Get()
		if o == nil || o.taskID != id {
			return
		}
		o.taskID = 0
		fn(data)
	})
	o.taskID = id
}

func (o *Offer) openTransfer(mimeType string) (*pipe.FD, error) {
	p, err := pipe.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferOpen, err)
	}

	o.peer.Receive(mimeType, p.Fd())

	var flushErr error
	if o.flush != nil {
		flushErr = o.flush()
	}

	// the request carries its own copy of the write end
	_ = p.CloseWrite()

	if flushErr != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %w", ErrTransferOpen, flushErr)
	}

	return p.TakeReader(), nil
}

func (o *Offer) cancelTask() {
	if o.taskID != 0 && o.thread != nil {
		o.thread.RemoveTask(o.taskID)
	}
	o.taskID = 0
}

// Destroy is idempotent.
func (o *Offer) Destroy() {
	if o.destroyed {
		return
	}
	o.destroyed = true

	o.handle.Invalidate()
	o.cancelTask()

	if o.peer != nil {
		o.peer.Destroy()
	}
}
