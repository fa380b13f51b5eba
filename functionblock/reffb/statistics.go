// Package reffb holds the built-in function block types every runtime
// registers out of the box, starting with Statistics (§4.8).
package reffb

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/functionblock"
	"github.com/daqkit/daqrun/signal"
	"github.com/daqkit/daqrun/valuekernel"
)

// StatisticsTypeID identifies the built-in block registered by Register.
const StatisticsTypeID = "ref_fb_module_statistics"

// DomainSignalType selects how Statistics expresses its output domain
// signal (§4.8): Implicit reuses a linear rule at the decimated rate,
// Explicit stamps one int64 tick per output block, ExplicitRange stamps a
// [start,end] tick pair spanning the samples the block was computed from.
type DomainSignalType int64

const (
	DomainImplicit DomainSignalType = iota
	DomainExplicit
	DomainExplicitRange
)

// Statistics accumulates per-channel samples in blocks of BlockSize and
// emits their average and RMS on one shared domain signal. On an input gap
// the accumulator resets and a new domain anchor is chosen at the next
// packet (§4.8, grounded on the reference statistics/averager blocks).
type Statistics struct {
	*functionblock.FunctionBlock

	input  *signal.InputPort
	avg    *signal.Signal
	rms    *signal.Signal
	domain *signal.Signal

	mu sync.Mutex

	blockSize        int64
	domainSignalType DomainSignalType

	inputValue  *signal.DataDescriptor
	inputDomain *signal.DataDescriptor

	outDomain *signal.DataDescriptor
	outAvg    *signal.DataDescriptor
	outRms    *signal.DataDescriptor

	inputDeltaTicks  int64
	outputDeltaTicks int64
	sampleType       signal.SampleType
	valid            bool

	calcBuf []float64

	haveNextExpected   bool
	nextExpectedDomain int64
}

// NewStatistics builds a detached Statistics block. userConfig (may be nil)
// overlays the BlockSize/DomainSignalType defaults per-instance (§4.8
// "config overlay").
func NewStatistics(ctx *functionblock.Context, localID string, userConfig *coreobjects.PropertyObject) (*Statistics, error) {
	defaults := defaultStatisticsConfig()
	fb, err := functionblock.New(ctx, StatisticsTypeID, localID, defaults, userConfig)
	if err != nil {
		return nil, err
	}

	s := &Statistics{FunctionBlock: fb}

	if s.avg, err = fb.AddSignal("avg"); err != nil {
		return nil, err
	}
	if s.rms, err = fb.AddSignal("rms"); err != nil {
		return nil, err
	}
	if s.domain, err = fb.AddSignal("domain"); err != nil {
		return nil, err
	}
	s.avg.SetDomainSignal(s.domain)
	s.rms.SetDomainSignal(s.domain)

	if s.input, err = fb.AddInputPort("input", signal.NotifyScheduler, false); err != nil {
		return nil, err
	}

	if p, perr := fb.Property("BlockSize"); perr == nil {
		p.OnWrite = func(*coreobjects.PropertyObject, valuekernel.Value) error {
			s.propertyChanged()
			return nil
		}
	}
	if p, perr := fb.Property("DomainSignalType"); perr == nil {
		p.OnWrite = func(*coreobjects.PropertyObject, valuekernel.Value) error {
			s.propertyChanged()
			return nil
		}
	}

	fb.OnPacketReceived(func(*signal.InputPort) { s.drain() })

	s.readProperties()
	return s, nil
}

func defaultStatisticsConfig() *coreobjects.PropertyObject {
	cfg := coreobjects.NewPropertyObject("", nil, nil, nil)
	_ = cfg.AddProperty(&coreobjects.Property{
		Name:      "BlockSize",
		ValueType: valuekernel.CoreInt,
		Default:   func() valuekernel.Value { return valuekernel.NewInt(10) },
	})
	_ = cfg.AddProperty(&coreobjects.Property{
		Name:      "DomainSignalType",
		ValueType: valuekernel.CoreInt,
		Selection: valuekernel.NewList(valuekernel.IfaceList,
			valuekernel.NewString("Implicit"), valuekernel.NewString("Explicit"), valuekernel.NewString("ExplicitRange")),
		Default: func() valuekernel.Value { return valuekernel.NewInt(0) },
	})
	return cfg
}

// InputPort, AvgSignal, RmsSignal and DomainSignal expose the block's
// standard ports/signals for wiring.
func (s *Statistics) InputPort() *signal.InputPort { return s.input }
func (s *Statistics) AvgSignal() *signal.Signal     { return s.avg }
func (s *Statistics) RmsSignal() *signal.Signal     { return s.rms }
func (s *Statistics) DomainSignal() *signal.Signal  { return s.domain }

func (s *Statistics) propertyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readPropertiesLocked()
	s.configureLocked()
}

func (s *Statistics) readProperties() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readPropertiesLocked()
}

func (s *Statistics) readPropertiesLocked() {
	if v, err := s.GetPropertyValue("BlockSize"); err == nil {
		if iv, ok := v.(*valuekernel.Int); ok {
			s.blockSize = iv.V
		}
	}
	if v, err := s.GetPropertyValue("DomainSignalType"); err == nil {
		if iv, ok := v.(*valuekernel.Int); ok {
			s.domainSignalType = DomainSignalType(iv.V)
		}
	}
}

func acceptSampleType(st signal.SampleType) bool {
	switch st {
	case signal.SampleFloat32, signal.SampleFloat64,
		signal.SampleUInt8, signal.SampleInt8,
		signal.SampleUInt16, signal.SampleInt16,
		signal.SampleUInt32, signal.SampleInt32,
		signal.SampleUInt64, signal.SampleInt64:
		return true
	default:
		return false
	}
}

// configureLocked rebuilds the three output descriptors from the current
// input descriptors and properties, invalidating output until both inputs
// and the domain's linear rule are usable (§4.8).
func (s *Statistics) configureLocked() {
	s.valid = false
	if s.inputValue == nil || s.inputDomain == nil {
		return
	}
	if s.inputDomain.SampleType != signal.SampleInt64 && s.inputDomain.SampleType != signal.SampleUInt64 {
		return
	}
	if s.inputDomain.Rule.Type != signal.RuleLinear {
		return
	}
	if s.blockSize <= 0 {
		return
	}

	start := s.inputDomain.Rule.LinearStart
	s.inputDeltaTicks = s.inputDomain.Rule.LinearDelta
	s.outputDeltaTicks = s.inputDeltaTicks * s.blockSize

	outDomain := &signal.DataDescriptor{SampleType: s.inputDomain.SampleType, Name: "StatisticsDomain"}
	switch s.domainSignalType {
	case DomainImplicit:
		outDomain.Rule = signal.LinearRule(start, s.outputDeltaTicks)
	case DomainExplicit:
		outDomain.Rule = signal.ExplicitRule()
	case DomainExplicitRange:
		outDomain.Rule = signal.ExplicitRule()
		outDomain.SampleType = signal.SampleRangeInt64
	}
	outDomain.Freeze()
	s.outDomain = outDomain
	s.domain.SetDescriptor(outDomain)

	if !s.inputValue.IsScalar() {
		return
	}
	s.sampleType = s.inputValue.SampleType
	if !acceptSampleType(s.sampleType) {
		return
	}

	outAvg := &signal.DataDescriptor{SampleType: s.sampleType, Unit: s.inputValue.Unit, Name: s.inputValue.Name + "/Avg"}
	outAvg.Freeze()
	s.outAvg = outAvg
	s.avg.SetDescriptor(outAvg)

	outRms := &signal.DataDescriptor{
		SampleType: s.sampleType,
		Unit:       s.inputValue.Unit,
		ValueRange: [2]float64{0, s.inputValue.ValueRange[1]},
		Name:       s.inputValue.Name + "/Rms",
	}
	outRms.Freeze()
	s.outRms = outRms
	s.rms.SetDescriptor(outRms)

	s.calcBuf = s.calcBuf[:0]
	s.haveNextExpected = false
	s.valid = true
}

func (s *Statistics) processSignalDescriptorChangedLocked(ep *signal.EventPacket) {
	if ep.NewValueDescriptor != nil {
		s.inputValue = ep.NewValueDescriptor
	}
	if ep.NewDomainDescriptor != nil {
		s.inputDomain = ep.NewDomainDescriptor
	}
	s.configureLocked()
}

// nextOutputDomainValueLocked returns the domain tick the current output
// block should start at and whether a gap was observed since the last
// packet, mirroring the reference implementation's
// getNextOutputDomainValue.
func (s *Statistics) nextOutputDomainValueLocked(domainPacket *signal.DataPacket) (outputStart int64, haveGap bool) {
	sampleCount := domainPacket.SampleCount
	packetStart := domainPacket.Offset

	switch {
	case !s.haveNextExpected:
		outputStart = packetStart
	case packetStart == s.nextExpectedDomain:
		outputStart = packetStart - int64(len(s.calcBuf))*s.inputDeltaTicks
	default:
		outputStart = packetStart
		haveGap = true
	}

	s.nextExpectedDomain = packetStart + sampleCount*s.inputDeltaTicks
	s.haveNextExpected = true
	return outputStart, haveGap
}

func (s *Statistics) processDataPacketLocked(p *signal.DataPacket) {
	if !s.valid {
		return
	}
	domainPacket := p.Domain
	if domainPacket == nil {
		return
	}

	outputStart, haveGap := s.nextOutputDomainValueLocked(domainPacket)
	if haveGap {
		s.calcBuf = s.calcBuf[:0]
	}

	samples, err := signal.DecodeFloat64(p.RawBytes, s.sampleType)
	if err != nil {
		return
	}
	s.calcBuf = append(s.calcBuf, samples...)

	outSampleCount := int64(len(s.calcBuf)) / s.blockSize
	if outSampleCount == 0 {
		return
	}

	calcAvg := s.avg.Active()
	calcRms := s.rms.Active()

	avgVals := make([]float64, 0, outSampleCount)
	rmsVals := make([]float64, 0, outSampleCount)
	ticks := make([]int64, 0, outSampleCount)
	ranges := make([][2]int64, 0, outSampleCount)

	tick := outputStart
	for i := int64(0); i < outSampleCount; i++ {
		block := s.calcBuf[i*s.blockSize : (i+1)*s.blockSize]
		var sumAvg, sumRms float64
		for _, v := range block {
			sumAvg += v
			sumRms += v * v
		}
		if calcAvg {
			avgVals = append(avgVals, sumAvg/float64(s.blockSize))
		}
		if calcRms {
			rmsVals = append(rmsVals, math.Sqrt(sumRms/float64(s.blockSize)))
		}
		switch s.domainSignalType {
		case DomainExplicit:
			ticks = append(ticks, tick)
		case DomainExplicitRange:
			ranges = append(ranges, [2]int64{tick, tick + s.inputDeltaTicks*s.blockSize - 1})
		}
		tick += s.outputDeltaTicks
	}

	consumed := outSampleCount * s.blockSize
	s.calcBuf = append(s.calcBuf[:0], s.calcBuf[consumed:]...)

	domainPkt := s.buildDomainPacket(outputStart, outSampleCount, ticks, ranges)

	if calcAvg {
		raw, err := signal.EncodeFloat64(avgVals, s.sampleType)
		if err == nil {
			_ = s.avg.Send(signal.NewRawDataPacket(s.outAvg, domainPkt, 0, outSampleCount, raw))
		}
	}
	if calcRms {
		raw, err := signal.EncodeFloat64(rmsVals, s.sampleType)
		if err == nil {
			_ = s.rms.Send(signal.NewRawDataPacket(s.outRms, domainPkt, 0, outSampleCount, raw))
		}
	}
	_ = s.domain.Send(domainPkt)
}

func (s *Statistics) buildDomainPacket(outputStart, count int64, ticks []int64, ranges [][2]int64) *signal.DataPacket {
	switch s.domainSignalType {
	case DomainExplicit:
		raw := make([]byte, count*8)
		for i, t := range ticks {
			binary.LittleEndian.PutUint64(raw[i*8:i*8+8], uint64(t))
		}
		return signal.NewRawDataPacket(s.outDomain, nil, 0, count, raw)
	case DomainExplicitRange:
		raw := make([]byte, count*16)
		for i, r := range ranges {
			binary.LittleEndian.PutUint64(raw[i*16:i*16+8], uint64(r[0]))
			binary.LittleEndian.PutUint64(raw[i*16+8:i*16+16], uint64(r[1]))
		}
		return signal.NewRawDataPacket(s.outDomain, nil, 0, count, raw)
	default:
		return signal.NewRawDataPacket(s.outDomain, nil, outputStart, count, nil)
	}
}

// drain empties the input connection, dispatching descriptor-changed events
// and data packets in arrival order (§4.8 "the framework calls the block's
// onPacketReceived").
func (s *Statistics) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.input.Connection()
	for {
		pkt, ok := conn.TryDequeue()
		if !ok {
			return
		}
		switch p := pkt.(type) {
		case *signal.EventPacket:
			if p.EventID == signal.EventDataDescriptorChanged {
				s.processSignalDescriptorChangedLocked(p)
			}
		case *signal.DataPacket:
			s.processDataPacketLocked(p)
		}
	}
}

// Register adds the Statistics block type to reg (§4.8 "AvailableTypes").
func Register(reg *functionblock.Registry) {
	reg.Register(functionblock.TypeInfo{
		ID:          StatisticsTypeID,
		Name:        "Statistics",
		Description: "Calculates average and RMS statistics over blocks of input samples",
	}, func(ctx *functionblock.Context, localID string, config *coreobjects.PropertyObject) (*functionblock.FunctionBlock, error) {
		s, err := NewStatistics(ctx, localID, config)
		if err != nil {
			return nil, err
		}
		return s.FunctionBlock, nil
	})
}
