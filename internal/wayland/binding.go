//go:build linux || freebsd

package wayland

import (
	"github.com/labi-le/clipseat/internal/clipboard"
	"github.com/labi-le/clipseat/internal/wayland/datacontrol"
	"github.com/labi-le/clipseat/pkg/ctxlog"
	"github.com/labi-le/clipseat/pkg/mime"
	"github.com/rs/zerolog"
)

// binding routes the events of one data control device to a
// clipboard.Device and publishes local selections on it.
type binding struct {
	manager *datacontrol.Manager
	device  *datacontrol.Device
	dev     *clipboard.Device
	logger  zerolog.Logger

	// offers introduced by data_offer and not yet selected
	offers map[*datacontrol.Offer]*clipboard.Offer
	// sources published here and not yet cancelled, replaced ones included
	sources map[*datacontrol.Source]clipboard.Channel
	tracker *sourceTracker

	finished bool
	closed   bool
}

func newBinding(manager *datacontrol.Manager, dev *clipboard.Device, tracker *sourceTracker, logger zerolog.Logger) *binding {
	return &binding{
		manager: manager,
		tracker: tracker,
		dev:     dev,
		logger: logger.With().
			Str("component", "binding").
			Uint32("seat", uint32(dev.Seat())).
			Logger(),
		offers:  make(map[*datacontrol.Offer]*clipboard.Offer),
		sources: make(map[*datacontrol.Source]clipboard.Channel),
	}
}

type offerListener struct {
	offer *clipboard.Offer
}

func (l offerListener) Offer(mimeType string) {
	l.offer.AddMimeType(mimeType)
}

func (b *binding) DataOffer(id *datacontrol.Offer) {
	if id == nil {
		return
	}
	if b.closed {
		id.Destroy()
		return
	}

	o := b.dev.NewOffer(id)
	id.Listener = offerListener{offer: o}
	b.offers[id] = o
}

func (b *binding) Selection(id *datacontrol.Offer) {
	b.selection(clipboard.Clipboard, id)
}

func (b *binding) PrimarySelection(id *datacontrol.Offer) {
	b.selection(clipboard.Primary, id)
}

func (b *binding) selection(ch clipboard.Channel, id *datacontrol.Offer) {
	if b.closed {
		return
	}

	if id == nil {
		b.dev.SetSelection(ch, nil)
		return
	}

	o, ok := b.offers[id]
	if !ok {
		b.logger.Debug().
			Stringer("channel", ch).
			Stringer("offer", id).
			Msg("selection of unknown offer ignored")
		return
	}
	delete(b.offers, id)

	b.dev.SetSelection(ch, o)
}

func (b *binding) Finished() {
	b.logger.Warn().Msg("data control device finished by compositor")
	b.finished = true
	b.dropOffers()
	b.device.Destroy()
}

// Publish offers content as text on ch. The source serves transfers until
// the compositor cancels it.
func (b *binding) Publish(ch clipboard.Channel, content []byte, password bool) {
	log := ctxlog.Op(b.logger, "binding.Publish")

	if b.closed || b.finished {
		log.Warn().Stringer("channel", ch).Msg("device is gone, ignoring publish")
		return
	}

	source := b.manager.CreateDataSource()
	source.Listener = &sourceListener{
		data:     content,
		password: password,
		source:   source,
		logger:   b.logger,
		onCancel: func() {
			b.forget(source)
		},
	}

	for _, t := range mime.TextTypes() {
		source.Offer(t)
	}
	if password {
		source.Offer(mime.PasswordHint)
	}

	switch ch {
	case clipboard.Primary:
		b.device.SetPrimarySelection(source)
	default:
		b.device.SetSelection(source)
	}
	b.sources[source] = ch
	b.tracker.add(ch)

	log.Debug().
		Stringer("channel", ch).
		Int("size", len(content)).
		Bool("password", password).
		Msg("selection published")
}

// forget drops a source the compositor cancelled or that we destroyed.
func (b *binding) forget(source *datacontrol.Source) {
	ch, ok := b.sources[source]
	if !ok {
		return
	}
	delete(b.sources, source)

	b.logger.Debug().Stringer("channel", ch).Msg("source cancelled")
	b.tracker.remove(ch)
}

func (b *binding) dropOffers() {
	for id, o := range b.offers {
		o.Destroy()
		delete(b.offers, id)
	}
}

func (b *binding) Close() {
	if b.closed {
		return
	}
	b.closed = true

	b.dropOffers()

	for source := range b.sources {
		source.Destroy()
		b.forget(source)
	}

	if !b.finished {
		b.device.Destroy()
	}
}
