// Package signal implements the packetised streaming pipeline (C7):
// data descriptors, data/event packets, signals, input ports, and the
// bounded connection FIFO between them.
package signal

import "github.com/daqkit/daqrun/valuekernel"

// SampleType is the closed set of sample representations a DataDescriptor
// may declare (§3.2).
type SampleType int

const (
	SampleUndefined SampleType = iota
	SampleInt8
	SampleUInt8
	SampleInt16
	SampleUInt16
	SampleInt32
	SampleUInt32
	SampleInt64
	SampleUInt64
	SampleFloat32
	SampleFloat64
	SampleComplexFloat32
	SampleComplexFloat64
	SampleRangeInt64
	SampleStruct
	SampleString
	SampleBinary
)

// byteWidth returns the raw size of one scalar sample of t, or 0 for
// variable-width/undefined types (struct/string/binary), which callers must
// size from the payload itself.
func (t SampleType) byteWidth() int {
	switch t {
	case SampleInt8, SampleUInt8:
		return 1
	case SampleInt16, SampleUInt16:
		return 2
	case SampleInt32, SampleUInt32, SampleFloat32:
		return 4
	case SampleInt64, SampleUInt64, SampleFloat64, SampleComplexFloat32, SampleRangeInt64:
		return 8
	case SampleComplexFloat64:
		return 16
	default:
		return 0
	}
}

// Rule describes how sample domain (or value) positions are generated.
type RuleType int

const (
	RuleExplicit RuleType = iota
	RuleLinear
	RuleConstant
)

// Rule binds a RuleType to the linear parameters when applicable.
type Rule struct {
	Type        RuleType
	LinearStart int64
	LinearDelta int64
}

func ExplicitRule() Rule               { return Rule{Type: RuleExplicit} }
func ConstantRule() Rule               { return Rule{Type: RuleConstant} }
func LinearRule(start, delta int64) Rule { return Rule{Type: RuleLinear, LinearStart: start, LinearDelta: delta} }

// PostScaling describes an optional input-sample-type + scaling function
// applied before samples reach their declared SampleType (§3.2).
type PostScaling struct {
	InputSampleType SampleType
	Scale           float64
	Offset          float64
}

// DataDescriptor is the immutable, freezable metadata describing one
// signal's samples (§3.2). Construct via NewDataDescriptor then Freeze; a
// descriptor is normally shared and must not be mutated after it is handed
// to a packet.
type DataDescriptor struct {
	frozen bool

	SampleType  SampleType
	PostScaling *PostScaling
	Rule        Rule
	Dimensions  []int // empty = scalar; one entry = fixed-size vector
	Unit        string
	ValueRange  [2]float64
	Name        string
	Metadata    *valuekernel.Dict
}

func NewDataDescriptor(sampleType SampleType, rule Rule) *DataDescriptor {
	return &DataDescriptor{SampleType: sampleType, Rule: rule}
}

func (d *DataDescriptor) Freeze()        { d.frozen = true }
func (d *DataDescriptor) IsFrozen() bool { return d.frozen }

// RawSampleSize computes the per-sample byte size from sample type and
// post-scaling, per §3.2 "rawSampleSize is computed from sample type and
// post-scaling".
func (d *DataDescriptor) RawSampleSize() int {
	if d.PostScaling != nil {
		return d.PostScaling.InputSampleType.byteWidth()
	}
	return d.SampleType.byteWidth()
}

// IsScalar reports whether this descriptor has zero dimensions.
func (d *DataDescriptor) IsScalar() bool { return len(d.Dimensions) == 0 }

// Equals compares sample type, rule, unit, name and dimensions; post-scaling,
// value range and metadata are not compared. Used by DataDescriptorChanged
// diffing and reader invalidation checks.
func (d *DataDescriptor) Equals(o *DataDescriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.SampleType != o.SampleType || d.Rule != o.Rule || d.Unit != o.Unit || d.Name != o.Name {
		return false
	}
	if len(d.Dimensions) != len(o.Dimensions) {
		return false
	}
	for i := range d.Dimensions {
		if d.Dimensions[i] != o.Dimensions[i] {
			return false
		}
	}
	return true
}
