// Package datacontrol holds the client side of the wlr-data-control
// protocol (version 2), which lets a privileged client read and set the
// selections of a seat without holding keyboard focus.
package datacontrol

import (
	"fmt"
	"os"

	wl "deedles.dev/wl/client"
	"deedles.dev/wl/wire"
)

const (
	ManagerInterface = "zwlr_data_control_manager_v1"
	ManagerVersion   = 2

	DeviceInterface = "zwlr_data_control_device_v1"
	DeviceVersion   = 2

	SourceInterface = "zwlr_data_control_source_v1"
	SourceVersion   = 1

	OfferInterface = "zwlr_data_control_offer_v1"
	OfferVersion   = 1
)

// Manager creates per-seat devices and data sources.
type Manager struct {
	OnDelete func()

	state wire.State
	id    uint32
}

func NewManager(state wire.State) *Manager {
	return &Manager{state: state}
}

func BindManager(state wire.State, registry wire.Binder, name, version uint32) *Manager {
	obj := NewManager(state)
	state.Add(obj)
	registry.Bind(name, wire.NewID{Interface: ManagerInterface, Version: version, ID: obj.ID()})
	return obj
}

func (obj *Manager) State() wire.State { return obj.state }

func (obj *Manager) Dispatch(msg *wire.MessageBuffer) error {
	return wire.UnknownOpError{
		Interface: ManagerInterface,
		Type:      "event",
		Op:        msg.Op(),
	}
}

func (obj *Manager) ID() uint32 { return obj.id }

func (obj *Manager) SetID(id uint32) { obj.id = id }

func (obj *Manager) Delete() {
	if obj.OnDelete != nil {
		obj.OnDelete()
	}
}

func (obj *Manager) String() string {
	return fmt.Sprintf("%v(%v)", ManagerInterface, obj.id)
}

func (obj *Manager) MethodName(uint16) string { return "unknown method" }

func (obj *Manager) Interface() string { return ManagerInterface }

func (obj *Manager) Version() uint32 { return ManagerVersion }

func (obj *Manager) CreateDataSource() *Source {
	builder := wire.NewMessage(obj, 0)

	id := NewSource(obj.state)
	obj.state.Add(id)
	builder.WriteObject(id)

	builder.Method = "create_data_source"
	builder.Args = []any{id}
	obj.state.Enqueue(builder)

	return id
}

func (obj *Manager) GetDataDevice(seat *wl.Seat) *Device {
	builder := wire.NewMessage(obj, 1)

	id := NewDevice(obj.state)
	obj.state.Add(id)
	builder.WriteObject(id)
	builder.WriteObject(seat)

	builder.Method = "get_data_device"
	builder.Args = []any{id, seat}
	obj.state.Enqueue(builder)

	return id
}

// Destroy leaves the devices and sources created by the manager intact.
func (obj *Manager) Destroy() {
	builder := wire.NewMessage(obj, 2)

	builder.Method = "destroy"
	builder.Args = []any{}
	obj.state.Enqueue(builder)
}

// DeviceListener receives the selection events of one seat. A nil offer in
// Selection or PrimarySelection means the selection was cleared.
type DeviceListener interface {
	// DataOffer introduces an offer; its mime types follow right after.
	DataOffer(offer *Offer)
	Selection(offer *Offer)
	Finished()
	PrimarySelection(offer *Offer)
}

type Device struct {
	Listener DeviceListener
	OnDelete func()

	state wire.State
	id    uint32
}

func NewDevice(state wire.State) *Device {
	return &Device{state: state}
}

func (obj *Device) State() wire.State { return obj.state }

// offerArg reads a nullable offer argument.
func (obj *Device) offerArg(msg *wire.MessageBuffer) (*Offer, bool) {
	id := msg.ReadUint()
	if id == 0 {
		return nil, true
	}
	offer, ok := obj.state.Get(id).(*Offer)
	return offer, ok
}

func (obj *Device) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		offer := NewOffer(obj.state)
		offer.SetID(msg.ReadUint())
		obj.state.Add(offer)

		if err := msg.Err(); err != nil {
			return err
		}
		if obj.Listener != nil {
			obj.Listener.DataOffer(offer)
		}
		return nil

	case 1, 3:
		offer, ok := obj.offerArg(msg)
		if err := msg.Err(); err != nil {
			return err
		}
		if !ok || obj.Listener == nil {
			return nil
		}

		if msg.Op() == 1 {
			obj.Listener.Selection(offer)
		} else {
			obj.Listener.PrimarySelection(offer)
		}
		return nil

	case 2:
		if err := msg.Err(); err != nil {
			return err
		}
		if obj.Listener != nil {
			obj.Listener.Finished()
		}
		return nil
	}

	return wire.UnknownOpError{
		Interface: DeviceInterface,
		Type:      "event",
		Op:        msg.Op(),
	}
}

func (obj *Device) ID() uint32 { return obj.id }

func (obj *Device) SetID(id uint32) { obj.id = id }

func (obj *Device) Delete() {
	if obj.OnDelete != nil {
		obj.OnDelete()
	}
}

func (obj *Device) String() string {
	return fmt.Sprintf("%v(%v)", DeviceInterface, obj.id)
}

func (obj *Device) MethodName(op uint16) string {
	switch op {
	case 0:
		return "data_offer"
	case 1:
		return "selection"
	case 2:
		return "finished"
	case 3:
		return "primary_selection"
	}

	return "unknown method"
}

func (obj *Device) Interface() string { return DeviceInterface }

func (obj *Device) Version() uint32 { return DeviceVersion }

// SetSelection hands source to the compositor. A source can be used once.
func (obj *Device) SetSelection(source *Source) {
	builder := wire.NewMessage(obj, 0)
	builder.WriteObject(source)

	builder.Method = "set_selection"
	builder.Args = []any{source}
	obj.state.Enqueue(builder)
}

func (obj *Device) Destroy() {
	builder := wire.NewMessage(obj, 1)

	builder.Method = "destroy"
	builder.Args = []any{}
	obj.state.Enqueue(builder)
}

// SetPrimarySelection is ignored by compositors without primary selection.
func (obj *Device) SetPrimarySelection(source *Source) {
	builder := wire.NewMessage(obj, 2)
	builder.WriteObject(source)

	builder.Method = "set_primary_selection"
	builder.Args = []any{source}
	obj.state.Enqueue(builder)
}

type DeviceError int64

const DeviceErrorUsedSource DeviceError = 1

func (e DeviceError) String() string {
	if e == DeviceErrorUsedSource {
		return "DeviceErrorUsedSource"
	}
	return "<invalid DeviceError>"
}

// SourceListener serves transfers of data this client published. Send owns
// fd and must close it.
type SourceListener interface {
	Send(mimeType string, fd *os.File)
	// Cancelled means another source replaced this one.
	Cancelled()
}

type Source struct {
	Listener SourceListener
	OnDelete func()

	state wire.State
	id    uint32
}

func NewSource(state wire.State) *Source {
	return &Source{state: state}
}

func (obj *Source) State() wire.State { return obj.state }

func (obj *Source) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case 0:
		mimeType := msg.ReadString()
		fd := msg.ReadFile()

		if err := msg.Err(); err != nil {
			return err
		}
		if obj.Listener == nil {
			if fd != nil {
				_ = fd.Close()
			}
			return nil
		}
		obj.Listener.Send(mimeType, fd)
		return nil

	case 1:
		if err := msg.Err(); err != nil {
			return err
		}
		if obj.Listener != nil {
			obj.Listener.Cancelled()
		}
		return nil
	}

	return wire.UnknownOpError{
		Interface: SourceInterface,
		Type:      "event",
		Op:        msg.Op(),
	}
}

func (obj *Source) ID() uint32 { return obj.id }

func (obj *Source) SetID(id uint32) { obj.id = id }

func (obj *Source) Delete() {
	if obj.OnDelete != nil {
		obj.OnDelete()
	}
}

func (obj *Source) String() string {
	return fmt.Sprintf("%v(%v)", SourceInterface, obj.id)
}

func (obj *Source) MethodName(op uint16) string {
	switch op {
	case 0:
		return "send"
	case 1:
		return "cancelled"
	}

	return "unknown method"
}

func (obj *Source) Interface() string { return SourceInterface }

func (obj *Source) Version() uint32 { return SourceVersion }

// Offer advertises a mime type. It must precede SetSelection.
func (obj *Source) Offer(mimeType string) {
	builder := wire.NewMessage(obj, 0)
	builder.WriteString(mimeType)

	builder.Method = "offer"
	builder.Args = []any{mimeType}
	obj.state.Enqueue(builder)
}

func (obj *Source) Destroy() {
	builder := wire.NewMessage(obj, 1)

	builder.Method = "destroy"
	builder.Args = []any{}
	obj.state.Enqueue(builder)
}

type SourceError int64

const SourceErrorInvalidOffer SourceError = 1

func (e SourceError) String() string {
	if e == SourceErrorInvalidOffer {
		return "SourceErrorInvalidOffer"
	}
	return "<invalid SourceError>"
}

// OfferListener receives one Offer event per advertised mime type.
type OfferListener interface {
	Offer(mimeType string)
}

// Offer is data another client put on a selection.
type Offer struct {
	Listener OfferListener
	OnDelete func()

	state wire.State
	id    uint32
}

func NewOffer(state wire.State) *Offer {
	return &Offer{state: state}
}

func (obj *Offer) State() wire.State { return obj.state }

func (obj *Offer) Dispatch(msg *wire.MessageBuffer) error {
	if msg.Op() == 0 {
		mimeType := msg.ReadString()
		if err := msg.Err(); err != nil {
			return err
		}
		if obj.Listener != nil {
			obj.Listener.Offer(mimeType)
		}
		return nil
	}

	return wire.UnknownOpError{
		Interface: OfferInterface,
		Type:      "event",
		Op:        msg.Op(),
	}
}

func (obj *Offer) ID() uint32 { return obj.id }

func (obj *Offer) SetID(id uint32) { obj.id = id }

func (obj *Offer) Delete() {
	if obj.OnDelete != nil {
		obj.OnDelete()
	}
}

func (obj *Offer) String() string {
	return fmt.Sprintf("%v(%v)", OfferInterface, obj.id)
}

func (obj *Offer) MethodName(op uint16) string {
	if op == 0 {
		return "offer"
	}
	return "unknown method"
}

func (obj *Offer) Interface() string { return OfferInterface }

func (obj *Offer) Version() uint32 { return OfferVersion }

// Receive asks the source client to write mimeType into fd and close it.
// The request carries its own copy of fd once flushed.
func (obj *Offer) Receive(mimeType string, fd *os.File) {
	builder := wire.NewMessage(obj, 0)
	builder.WriteString(mimeType)
	builder.WriteFile(fd)

	builder.Method = "receive"
	builder.Args = []any{mimeType, fd}
	obj.state.Enqueue(builder)
}

func (obj *Offer) Destroy() {
	builder := wire.NewMessage(obj, 1)

	builder.Method = "destroy"
	builder.Args = []any{}
	obj.state.Enqueue(builder)
}
