// Package coreevent implements the stable core-event bus (C6): a fixed
// id/payload table, per-component enable gating, and fan-out to
// context-wide subscribers, grounded on the fan-out style of
// whitaker-io-machine/vertex.go's channel-based pipe-out handling but
// synchronous and payload-keyed rather than []byte/Packet based, since
// core events are in-process structured notifications, not wire packets.
package coreevent

// ID is one of the fixed event identifiers from the spec's event table.
// The numeric values are part of the wire contract and must not change.
type ID int

const (
	PropertyValueChanged    ID = 0
	PropertyObjectUpdateEnd ID = 10
	PropertyAdded           ID = 20
	PropertyRemoved         ID = 30
	ComponentAdded          ID = 40
	ComponentRemoved        ID = 50
	SignalConnected         ID = 60
	SignalDisconnected      ID = 70
	DataDescriptorChanged   ID = 80
	ComponentUpdateEnd      ID = 90
	AttributeChanged        ID = 100
	TagsChanged             ID = 110
	StatusChanged           ID = 120
	TypeAdded               ID = 130
	TypeRemoved             ID = 140
	DeviceDomainChanged     ID = 150
	ConnectionStatusChanged ID = 170
)

func (id ID) String() string {
	switch id {
	case PropertyValueChanged:
		return "PropertyValueChanged"
	case PropertyObjectUpdateEnd:
		return "PropertyObjectUpdateEnd"
	case PropertyAdded:
		return "PropertyAdded"
	case PropertyRemoved:
		return "PropertyRemoved"
	case ComponentAdded:
		return "ComponentAdded"
	case ComponentRemoved:
		return "ComponentRemoved"
	case SignalConnected:
		return "SignalConnected"
	case SignalDisconnected:
		return "SignalDisconnected"
	case DataDescriptorChanged:
		return "DataDescriptorChanged"
	case ComponentUpdateEnd:
		return "ComponentUpdateEnd"
	case AttributeChanged:
		return "AttributeChanged"
	case TagsChanged:
		return "TagsChanged"
	case StatusChanged:
		return "StatusChanged"
	case TypeAdded:
		return "TypeAdded"
	case TypeRemoved:
		return "TypeRemoved"
	case DeviceDomainChanged:
		return "DeviceDomainChanged"
	case ConnectionStatusChanged:
		return "ConnectionStatusChanged"
	default:
		return "Unknown"
	}
}

// Sender is the narrow view of a component the bus needs: its global path
// (for listener bookkeeping) and whether it currently allows events through.
// component.Component implements this; coreevent does not import component
// to avoid a cycle, the same "single owner direction" used between
// coreobjects and coreobjects/eval.
type Sender interface {
	GlobalID() string
	EventsEnabled() bool
}

// Event is one fixed-shape notification. Sender may be nil for events with
// no owning component (TypeAdded/TypeRemoved use an empty sender per §4.4).
type Event struct {
	ID     ID
	Name   string
	Sender Sender
	Params map[string]interface{}
}

// Listener receives events in causal order per originating sender, with no
// ordering guarantee between senders (§4.6 "Trigger policy").
type Listener func(Event)

// Bus is the context-wide event object components publish to and listeners
// subscribe through (§4.6, §9 "explicit Context carrier").
type Bus struct {
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers l for every event published on the bus. There is no
// unsubscribe-by-handle; callers that need to stop listening should guard
// inside their own callback (mirrors the teacher's unbuffered-fan-out
// simplicity over a registry of cancel tokens).
func (b *Bus) Subscribe(l Listener) {
	b.listeners = append(b.listeners, l)
}

// Publish drops the event if its sender is non-nil and currently disabled,
// then synchronously fans it out to every listener in subscription order.
func (b *Bus) Publish(e Event) {
	if e.Sender != nil && !e.Sender.EventsEnabled() {
		return
	}
	if e.Name == "" {
		e.Name = e.ID.String()
	}
	for _, l := range b.listeners {
		l(e)
	}
}
