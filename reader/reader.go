// Package reader implements the pull-side adapter layer (C9): stream, block,
// tail, packet, and multi readers over one or more input ports, converting
// packets into typed sample slices for caller code.
package reader

import (
	"sync"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/signal"
)

// Context bundles the services a reader needs to build its own input port
// (§4.9 "each reader owns its input ports").
type Context struct {
	TypeManager *coreobjects.TypeManager
	Bus         *coreevent.Bus
}

func (ctx *Context) newPort(localID string, listener signal.Listener, gapDetection bool) *signal.InputPort {
	return signal.NewInputPort(localID, signal.NotifyNone, listener, nil, gapDetection, ctx.TypeManager, ctx.Bus)
}

// Status reports the outcome of a single Read/ReadWithDomain call (§4.9
// "Cancellation & errors", scenario S5).
type Status struct {
	Valid               bool
	DescriptorChanged   bool
	NewValueDescriptor  *signal.DataDescriptor
	NewDomainDescriptor *signal.DataDescriptor
}

// acceptSampleType is the closed set of numeric sample types this reader
// layer can convert, matching signal.DecodeFloat64/EncodeFloat64's support
// (integer/float widenings per §4.9; complex, struct, string, and binary
// sample types have no numeric common representation to align on and are
// rejected rather than silently truncated).
func acceptSampleType(st signal.SampleType) bool {
	switch st {
	case signal.SampleFloat32, signal.SampleFloat64,
		signal.SampleInt8, signal.SampleUInt8,
		signal.SampleInt16, signal.SampleUInt16,
		signal.SampleInt32, signal.SampleUInt32,
		signal.SampleInt64, signal.SampleUInt64:
		return true
	default:
		return false
	}
}

// core is the plumbing every reader type shares: the owned input port, the
// fixed (or inferred) read types, the descriptors currently in force, and
// the invalid latch (§4.9 "Cancellation & errors"). Every reader embeds it
// by value; its mutex guards all of a reader's own state, so concrete
// readers take no lock of their own.
type core struct {
	mu sync.Mutex

	port *signal.InputPort

	valueType  signal.SampleType
	domainType signal.SampleType

	valueDescriptor  *signal.DataDescriptor
	domainDescriptor *signal.DataDescriptor

	invalid bool
}

func newCore(valueType, domainType signal.SampleType) core {
	return core{valueType: valueType, domainType: domainType}
}

// Connected, Disconnected, and PacketReceived implement signal.Listener with
// no-op bodies: readers pull directly from their connection's FIFO rather
// than reacting to notifications, matching NotifyNone's "pure pull" mode.
func (c *core) Connected(*signal.InputPort)       {}
func (c *core) Disconnected(*signal.InputPort)    {}
func (c *core) PacketReceived(*signal.InputPort)  {}

var _ signal.Listener = (*core)(nil)

func (c *core) InputPort() *signal.InputPort { return c.port }

// MarkAsInvalid is callable at any time; pending reads return what they had
// accumulated, and every later read returns Ignored until the reader is
// rebuilt (§4.9 "Cancellation & errors").
func (c *core) MarkAsInvalid() {
	c.mu.Lock()
	c.invalid = true
	c.mu.Unlock()
}

func (c *core) isInvalid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

// applyValueDescriptor validates d against the reader's fixed read type,
// inferring it on the first call if still Undefined (§4.9 "An Undefined
// read-type means infer from the first descriptor").
func (c *core) applyValueDescriptor(d *signal.DataDescriptor) bool {
	if d == nil {
		return true
	}
	if !acceptSampleType(d.SampleType) {
		return false
	}
	if c.valueType == signal.SampleUndefined {
		c.valueType = d.SampleType
	}
	c.valueDescriptor = d
	return true
}

func (c *core) applyDomainDescriptor(d *signal.DataDescriptor) bool {
	if d == nil {
		return true
	}
	if !acceptSampleType(d.SampleType) {
		return false
	}
	if c.domainType == signal.SampleUndefined {
		c.domainType = d.SampleType
	}
	c.domainDescriptor = d
	return true
}

// handleDescriptorChanged processes a dequeued EventPacket, latching invalid
// if either side is no longer convertible to the reader's fixed read type.
func (c *core) handleDescriptorChanged(ep *signal.EventPacket) {
	if !c.applyValueDescriptor(ep.NewValueDescriptor) {
		c.invalid = true
	}
	if !c.applyDomainDescriptor(ep.NewDomainDescriptor) {
		c.invalid = true
	}
}

// bootstrapDescriptor primes the reader's descriptors from whatever is
// already available: a pending DataDescriptorChanged event at the head of
// the connection, or else the connected signal's current descriptor,
// mirroring readDescriptorFromPort's fallback order.
func bootstrapDescriptor(c *core) {
	if pkt, ok := c.port.Connection().Peek(); ok {
		if ep, ok := pkt.(*signal.EventPacket); ok && ep.EventID == signal.EventDataDescriptorChanged {
			c.port.Connection().TryDequeue()
			c.handleDescriptorChanged(ep)
			return
		}
	}
	if sig := c.port.Signal(); sig != nil && sig.Descriptor() != nil {
		c.handleDescriptorChanged(signal.NewDescriptorChangedEvent(sig.Descriptor(), domainDescriptorOf(sig)))
	}
}

func domainDescriptorOf(sig *signal.Signal) *signal.DataDescriptor {
	if d := sig.DomainSignal(); d != nil {
		return d.Descriptor()
	}
	return nil
}

// decodeRange extracts count float64-valued samples of p starting at sample
// index start, working from whichever payload shape p carries (§3.2): raw
// bytes, a constant-rule start+overrides pair, or (for an implicit-rule
// domain packet) no payload at all, in which case values are computed from
// the linear rule directly.
func decodeRange(p *signal.DataPacket, desc *signal.DataDescriptor, start, count int64) ([]float64, error) {
	if p.RawBytes != nil {
		full, err := signal.DecodeFloat64(p.RawBytes, desc.SampleType)
		if err != nil {
			return nil, err
		}
		if start < 0 || start+count > int64(len(full)) {
			return nil, daqerr.New(daqerr.OutOfRange, "read range exceeds packet sample count")
		}
		return append([]float64(nil), full[start:start+count]...), nil
	}

	switch desc.Rule.Type {
	case signal.RuleLinear:
		out := make([]float64, count)
		for i := int64(0); i < count; i++ {
			out[i] = float64(p.Offset + (start+i)*desc.Rule.LinearDelta)
		}
		return out, nil
	case signal.RuleConstant:
		out := make([]float64, count)
		cv, _ := toFloat64(p.ConstantStart)
		for i := range out {
			out[i] = cv
		}
		for _, ov := range p.ConstantOverrides {
			idx := ov.Position - start
			if idx >= 0 && idx < count {
				if v, ok := toFloat64(ov.Value); ok {
					out[idx] = v
				}
			}
		}
		return out, nil
	default:
		return nil, daqerr.New(daqerr.InvalidState, "packet carries no payload and is not linear/constant rule")
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
