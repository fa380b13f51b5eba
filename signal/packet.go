package signal

import "github.com/daqkit/daqrun/internal/daqerr"

// ConstantOverride is a (position, new-value) pair inside a constant-rule
// DataPacket's sparse override list (§3.2).
type ConstantOverride struct {
	Position int64
	Value    interface{}
}

// Packet is implemented by both DataPacket and EventPacket so a connection
// FIFO can hold either (§3.2, §4.7 "packet lifecycle").
type Packet interface {
	isPacket()
}

// DataPacket carries N samples conforming to a DataDescriptor, an optional
// linked domain packet, and a payload in one of three shapes: raw bytes,
// constant-rule start+overrides, or no payload at all (§3.2).
type DataPacket struct {
	Descriptor  *DataDescriptor
	Domain      *DataPacket // nil for a domain packet itself
	Offset      int64
	SampleCount int64

	RawBytes          []byte
	ConstantStart     interface{}
	ConstantOverrides []ConstantOverride
}

func (*DataPacket) isPacket() {}

// NewRawDataPacket builds a packet carrying a contiguous raw byte buffer.
func NewRawDataPacket(desc *DataDescriptor, domain *DataPacket, offset, sampleCount int64, raw []byte) *DataPacket {
	return &DataPacket{Descriptor: desc, Domain: domain, Offset: offset, SampleCount: sampleCount, RawBytes: raw}
}

// NewConstantDataPacket builds a constant-rule packet: every sample equals
// start except where overridden.
func NewConstantDataPacket(desc *DataDescriptor, domain *DataPacket, offset, sampleCount int64, start interface{}, overrides []ConstantOverride) *DataPacket {
	return &DataPacket{Descriptor: desc, Domain: domain, Offset: offset, SampleCount: sampleCount, ConstantStart: start, ConstantOverrides: overrides}
}

// NextLinearOffset returns the offset the next contiguous packet on this
// signal must carry, valid only when Descriptor.Rule is RuleLinear.
func (p *DataPacket) NextLinearOffset() (int64, error) {
	if p.Descriptor == nil || p.Descriptor.Rule.Type != RuleLinear {
		return 0, daqerr.New(daqerr.InvalidState, "NextLinearOffset requires a linear-rule descriptor")
	}
	return p.Offset + p.SampleCount*p.Descriptor.Rule.LinearDelta, nil
}

// IsContiguousWith reports whether next is the immediate linear-rule
// continuation of p (§3.2 invariant, §8 invariant 7).
func (p *DataPacket) IsContiguousWith(next *DataPacket) bool {
	expected, err := p.NextLinearOffset()
	if err != nil {
		return false
	}
	return next.Offset == expected
}

// EventPacket carries a tagged metadata change, chiefly DataDescriptorChanged
// (§3.2). A nil field means "unchanged".
type EventPacket struct {
	EventID            string
	NewValueDescriptor *DataDescriptor
	NewDomainDescriptor *DataDescriptor
}

func (*EventPacket) isPacket() {}

const EventDataDescriptorChanged = "DataDescriptorChanged"

func NewDescriptorChangedEvent(newValue, newDomain *DataDescriptor) *EventPacket {
	return &EventPacket{EventID: EventDataDescriptorChanged, NewValueDescriptor: newValue, NewDomainDescriptor: newDomain}
}
