package signal

import (
	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// Signal is a component producing a lazy, ordered sequence of packets
// (§3.5). Public controls whether it is advertised to remote mirrors;
// Active gates whether packets are actually emitted (an inactive signal's
// Send is a no-op, mirroring the component active cascade's event gating).
type Signal struct {
	*component.Component

	descriptor   *DataDescriptor
	domainSignal *Signal // weak in spirit; see SPEC_FULL ambient-stack note on cyclic refs
	public       bool

	subscribers []*InputPort // ports currently connected, in subscribe order
	firstSent   map[*InputPort]bool
}

func NewSignal(localID string, tm *coreobjects.TypeManager, bus *coreevent.Bus) *Signal {
	return &Signal{
		Component: component.NewComponent(localID, tm, bus),
		public:    true,
		firstSent: map[*InputPort]bool{},
	}
}

func (s *Signal) Descriptor() *DataDescriptor { return s.descriptor }

// SetDescriptor replaces the descriptor and emits DataDescriptorChanged to
// every subscriber on their next Send, per §4.7 "packet lifecycle": the
// first packet after any descriptor change is an EventPacket.
func (s *Signal) SetDescriptor(d *DataDescriptor) {
	s.descriptor = d
	for p := range s.firstSent {
		s.firstSent[p] = false
	}
	s.publishDescriptorChanged(d)
}

func (s *Signal) publishDescriptorChanged(d *DataDescriptor) {
	bus := s.Bus()
	if bus == nil {
		return
	}
	bus.Publish(coreevent.Event{ID: coreevent.DataDescriptorChanged, Sender: s.Component, Params: map[string]interface{}{"DataDescriptor": d}})
}

func (s *Signal) DomainSignal() *Signal { return s.domainSignal }

func (s *Signal) SetDomainSignal(d *Signal) { s.domainSignal = d }

func (s *Signal) Public() bool      { return s.public }
func (s *Signal) SetPublic(v bool)  { s.public = v }

// IsSubscribed reports whether any input port currently holds this signal
// (§4.7 "Subscription").
func (s *Signal) IsSubscribed() bool { return len(s.subscribers) > 0 }

// subscribe is called by InputPort.Connect; it does not itself invoke the
// listener's Connected callback — that is the input port's responsibility
// so it fires exactly once, before any packet flows (§4.7).
func (s *Signal) subscribe(p *InputPort) {
	s.subscribers = append(s.subscribers, p)
	s.firstSent[p] = false
}

func (s *Signal) unsubscribe(p *InputPort) {
	for i, sub := range s.subscribers {
		if sub == p {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
	delete(s.firstSent, p)
}

// Send enqueues a data packet on every currently-subscribed port's
// connection, first pushing a DataDescriptorChanged EventPacket to any port
// that has not yet seen the current descriptor (§4.7).
func (s *Signal) Send(p *DataPacket) error {
	if !s.Active() {
		return nil
	}
	if s.descriptor == nil {
		return daqerr.New(daqerr.InvalidState, "signal has no descriptor set")
	}
	p.Descriptor = s.descriptor

	for _, port := range s.subscribers {
		if !s.firstSent[port] {
			if err := port.connection.Push(NewDescriptorChangedEvent(s.descriptor, s.domainDescriptor())); err != nil {
				return err
			}
			s.firstSent[port] = true
			port.Notify()
		}
		if err := port.connection.Push(p); err != nil {
			return err
		}
		port.Notify()
	}
	return nil
}

func (s *Signal) domainDescriptor() *DataDescriptor {
	if s.domainSignal == nil {
		return nil
	}
	return s.domainSignal.descriptor
}
