package signal

import (
	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// NotificationMode controls how an InputPort's listener learns that a
// packet is ready (§3.5, §5 "Scheduler interaction").
type NotificationMode int

const (
	NotifySameThread NotificationMode = iota
	NotifyScheduler
	NotifyNone
)

// Listener is implemented by the function block (or reader) that owns an
// input port (§4.7 "Subscription").
type Listener interface {
	Connected(port *InputPort)
	Disconnected(port *InputPort)
	PacketReceived(port *InputPort)
}

// InputPort is a component holding at most one signal and one connection
// (§3.5). GapDetection, when enabled, makes CheckGap track linear-rule
// continuity across the packets the consumer passes to it (§4.7 "optional
// at port creation time"); the port does not notify the listener of gaps.
type InputPort struct {
	*component.Component

	signal       *Signal
	connection   *Connection
	mode         NotificationMode
	listener     Listener
	post         func(func()) // owning function block's scheduler, nil for inline dispatch
	gapDetection bool
	expectedNext int64
	haveExpected bool
}

// NewInputPort builds a port dispatching to listener per mode. post is the
// owning context's scheduler-post function, used only when mode is
// NotifyScheduler; pass nil to fall back to inline delivery.
func NewInputPort(localID string, mode NotificationMode, listener Listener, post func(func()), gapDetection bool, tm *coreobjects.TypeManager, bus *coreevent.Bus) *InputPort {
	return &InputPort{
		Component:    component.NewComponent(localID, tm, bus),
		connection:   NewConnection(DefaultConnectionCapacity),
		mode:         mode,
		listener:     listener,
		post:         post,
		gapDetection: gapDetection,
	}
}

func (p *InputPort) Connection() *Connection { return p.connection }
func (p *InputPort) Signal() *Signal         { return p.signal }

// Connect attaches signal to this port. The listener's Connected callback
// fires before any packet can flow on the new edge (§4.7 "Subscription").
func (p *InputPort) Connect(s *Signal) error {
	if p.signal != nil {
		return daqerr.New(daqerr.InvalidState, "input port already connected, Disconnect first")
	}
	p.signal = s
	p.haveExpected = false
	s.subscribe(p)
	if p.listener != nil {
		p.listener.Connected(p)
	}
	p.publish(coreevent.SignalConnected, map[string]interface{}{"Signal": s})
	return nil
}

// Disconnect releases the signal and closes the connection, draining no
// further packets (§4.5 "releasing connections first").
func (p *InputPort) Disconnect() {
	if p.signal == nil {
		return
	}
	s := p.signal
	s.unsubscribe(p)
	p.signal = nil
	p.connection.Close()
	if p.listener != nil {
		p.listener.Disconnected(p)
	}
	p.publish(coreevent.SignalDisconnected, nil)
}

func (p *InputPort) publish(id coreevent.ID, params map[string]interface{}) {
	bus := p.Component.Bus()
	if bus == nil {
		return
	}
	bus.Publish(coreevent.Event{ID: id, Sender: p.Component, Params: params})
}

// Notify routes a packet-ready notification to the listener per p's mode.
// Signal.Send calls this right after a successful push (§4.8 "On
// packetReceived(port) the framework calls the block's onPacketReceived").
func (p *InputPort) Notify() {
	switch p.mode {
	case NotifyNone:
		return
	case NotifyScheduler:
		if p.post != nil {
			p.post(func() { p.deliver() })
			return
		}
		fallthrough
	default:
		p.deliver()
	}
}

func (p *InputPort) deliver() {
	if p.listener != nil {
		p.listener.PacketReceived(p)
	}
}

// CheckGap inspects a just-dequeued linear-rule data packet against the
// port's expected next offset, resetting the tracked expectation and
// reporting whether a gap was declared (§4.7 "Gap detection", §8 seed S4).
func (p *InputPort) CheckGap(dp *DataPacket) (gap bool) {
	if !p.gapDetection || dp.Descriptor == nil || dp.Descriptor.Rule.Type != RuleLinear {
		return false
	}
	if p.haveExpected && dp.Offset != p.expectedNext {
		gap = true
	}
	next, err := dp.NextLinearOffset()
	if err == nil {
		p.expectedNext = next
		p.haveExpected = true
	}
	return gap
}
