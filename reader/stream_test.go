package reader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/signal"
)

func TestStreamReaderReadsAvailableSamples(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3, 4, 5})
	drainLeadingDescriptorEvent(t, r)

	values, status, err := r.Read(5, 100)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.False(t, status.DescriptorChanged)
	require.Equal(t, []float64{1, 2, 3, 4, 5}, values)
}

func TestStreamReaderReadWithDomainFillsBothBuffersSymmetrically(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 100, []float64{10, 20, 30})
	drainLeadingDescriptorEvent(t, r)

	values, domainValues, status, err := r.ReadWithDomain(3, 100)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, []float64{10, 20, 30}, values)
	require.Equal(t, []float64{100, 101, 102}, domainValues)
}

func TestStreamReaderSpansMultiplePackets(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2})
	drainLeadingDescriptorEvent(t, r)
	sendBlock(t, valueSig, domainSig, 2, []float64{3, 4})

	values, status, err := r.Read(4, 100)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, []float64{1, 2, 3, 4}, values)
}

func TestStreamReaderDescriptorChangeMidReadReturnsPartialCount(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3})
	drainLeadingDescriptorEvent(t, r)

	values, status, err := r.Read(3, 100)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, values)
	require.False(t, status.DescriptorChanged)

	// A descriptor change arrives mid-stream (§8 scenario S5): the next
	// Send carries the new descriptor's event ahead of its data, so the read
	// halts at the event boundary and reports it via status, leaving
	// position there for the next call.
	valueSig.SetDescriptor(signal.NewDataDescriptor(signal.SampleFloat64, signal.ExplicitRule()))
	sendBlock(t, valueSig, domainSig, 3, []float64{9, 8})

	values, status, err = r.Read(10, 100)
	require.NoError(t, err)
	require.Empty(t, values)
	require.True(t, status.DescriptorChanged)
	require.NotNil(t, status.NewValueDescriptor)

	values, status, err = r.Read(2, 100)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, []float64{9, 8}, values)
}

func TestStreamReaderTimeoutAnyReturnsWithoutWaitingForFullCount(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, TimeoutAny)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2})
	drainLeadingDescriptorEvent(t, r)

	values, status, err := r.Read(100, 50)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, []float64{1, 2}, values)
}

func TestStreamReaderInvalidAfterNonConvertibleDescriptorReturnsIgnored(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	r, err := NewStreamReader(ctx, valueSig, signal.SampleFloat64, signal.SampleUndefined, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1})
	drainLeadingDescriptorEvent(t, r)

	values, status, err := r.Read(1, 50)
	require.NoError(t, err)
	require.Equal(t, []float64{1}, values)
	require.False(t, status.DescriptorChanged)

	// SampleString has no numeric common representation to align Float64
	// against (§4.9 "otherwise InvalidState").
	valueSig.SetDescriptor(signal.NewDataDescriptor(signal.SampleString, signal.ExplicitRule()))
	require.NoError(t, valueSig.Send(signal.NewRawDataPacket(valueSig.Descriptor(), nil, 1, 1, nil)))

	_, status, err = r.Read(1, 50)
	require.NoError(t, err)
	require.True(t, status.DescriptorChanged)
	require.False(t, status.Valid)

	_, _, err = r.Read(1, 50)
	require.Error(t, err)
	require.Equal(t, daqerr.Ignored, daqerr.KindOf(err))
}
