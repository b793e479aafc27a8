package clipboard

import (
	"os"
)

// SeatID identifies a seat; the Wayland adapter uses the registry global name.
type SeatID uint32

type Channel uint8

const (
	Clipboard Channel = iota
	Primary

	channelCount
)

func (c Channel) String() string {
	switch c {
	case Clipboard:
		return "clipboard"
	case Primary:
		return "primary"
	default:
		return "unknown"
	}
}

func (c Channel) valid() bool { return c < channelCount }

// Callback receives retrieved content on the main context.
type Callback func(data []byte, password bool)

// OfferPeer is the protocol object behind an announced offer.
type OfferPeer interface {
	// Receive asks the announcing client to write mimeType into fd.
	Receive(mimeType string, fd *os.File)
	Destroy()
}

// Protocol is the transport side of the registry.
type Protocol interface {
	// Seats lists the seats a device can currently be created for.
	Seats() []SeatID
	// Bind creates the protocol device for seat and routes its events to dev.
	Bind(seat SeatID, dev *Device) (Binding, error)
	// Flush pushes queued requests to the compositor.
	Flush() error
}

// Binding is the protocol device of one seat.
type Binding interface {
	Publish(ch Channel, content []byte, password bool)
	Close()
}

// Update is reported for every retrieved selection when watching.
type Update struct {
	ID       int64
	Seat     SeatID
	Channel  Channel
	Data     []byte
	Password bool
	Hash     uint64
}
