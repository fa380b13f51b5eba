package reader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/signal"
)

func TestPacketReaderReturnsPacketsUnconverted(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	pr, err := NewPacketReader(ctx, valueSig, false)
	require.NoError(t, err)

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3})

	packets, err := pr.Read(2, 100)
	require.NoError(t, err)
	require.Len(t, packets, 2)

	ep, ok := packets[0].(*signal.EventPacket)
	require.True(t, ok)
	require.Equal(t, signal.EventDataDescriptorChanged, ep.EventID)

	dp, ok := packets[1].(*signal.DataPacket)
	require.True(t, ok)
	require.Equal(t, int64(3), dp.SampleCount)
}
