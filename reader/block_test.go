package reader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/signal"
)

func TestBlockReaderWithholdsPartialBlocks(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	br, err := NewBlockReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, 4, false, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3})
	drainLeadingDescriptorEvent(t, br.StreamReader)

	blocks, status, consumed, err := br.ReadBlocks(10, 50)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Empty(t, blocks, "3 samples is not a whole block of 4")
	require.Zero(t, consumed)

	sendBlock(t, valueSig, domainSig, 3, []float64{4, 5, 6, 7})

	blocks, status, consumed, err = br.ReadBlocks(10, 50)
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Len(t, blocks, 1)
	require.Equal(t, []float64{1, 2, 3, 4}, blocks[0].Values)
	require.Equal(t, int64(4), consumed)
}

func TestBlockReaderWithDomainAlignsDomainPerBlock(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	br, err := NewBlockReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, 2, true, TimeoutAll)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 10, []float64{1, 2, 3, 4})
	drainLeadingDescriptorEvent(t, br.StreamReader)

	blocks, _, consumed, err := br.ReadBlocks(10, 50)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, []float64{1, 2}, blocks[0].Values)
	require.Equal(t, []float64{10, 11}, blocks[0].Domain)
	require.Equal(t, []float64{3, 4}, blocks[1].Values)
	require.Equal(t, []float64{12, 13}, blocks[1].Domain)
	require.Equal(t, int64(4), consumed)
}
