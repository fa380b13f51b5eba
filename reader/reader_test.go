package reader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/signal"
)

func newTestContext() *Context {
	bus := coreevent.NewBus()
	tm := coreobjects.NewTypeManager(bus)
	return &Context{TypeManager: tm, Bus: bus}
}

func setupSignals(t *testing.T, ctx *Context) (valueSig, domainSig *signal.Signal) {
	t.Helper()
	domainSig = signal.NewSignal("domain", ctx.TypeManager, ctx.Bus)
	valueSig = signal.NewSignal("value", ctx.TypeManager, ctx.Bus)
	valueSig.SetDomainSignal(domainSig)
	domainSig.SetActive(true)
	valueSig.SetActive(true)
	domainSig.SetDescriptor(signal.NewDataDescriptor(signal.SampleInt64, signal.LinearRule(0, 1)))
	valueSig.SetDescriptor(signal.NewDataDescriptor(signal.SampleFloat64, signal.ExplicitRule()))
	return valueSig, domainSig
}

func sendBlock(t *testing.T, valueSig, domainSig *signal.Signal, start int64, samples []float64) {
	t.Helper()
	domainPkt := signal.NewRawDataPacket(domainSig.Descriptor(), nil, start, int64(len(samples)), nil)
	raw, err := signal.EncodeFloat64(samples, signal.SampleFloat64)
	require.NoError(t, err)
	valuePkt := signal.NewRawDataPacket(valueSig.Descriptor(), domainPkt, start, int64(len(samples)), raw)
	require.NoError(t, valueSig.Send(valuePkt))
}

// drainLeadingDescriptorEvent consumes the DataDescriptorChanged event every
// fresh subscription sees before its first data packet, so tests that only
// care about sample content don't have to special-case it themselves.
func drainLeadingDescriptorEvent(t *testing.T, r *StreamReader) {
	t.Helper()
	_, status, err := r.Read(1, 100)
	require.NoError(t, err)
	require.True(t, status.DescriptorChanged)
}
