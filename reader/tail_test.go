package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/signal"
)

func TestTailReaderKeepsMostRecentSamples(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	tr, err := NewTailReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, 3, false)
	require.NoError(t, err)
	defer tr.Close()

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3, 4, 5})
	require.Eventually(t, func() bool {
		values, _ := tr.Read(3)
		return len(values) == 3
	}, time.Second, time.Millisecond)

	values, _ := tr.Read(3)
	require.Equal(t, []float64{3, 4, 5}, values)
}

func TestTailReaderReadReturnsFewerThanNBeforeEnoughArrive(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	tr, err := NewTailReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, 10, false)
	require.NoError(t, err)
	defer tr.Close()

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2})
	require.Eventually(t, func() bool {
		values, _ := tr.Read(10)
		return len(values) == 2
	}, time.Second, time.Millisecond)
}

func TestTailReaderOverlapAcrossCallsIsAllowed(t *testing.T) {
	ctx := newTestContext()
	valueSig, domainSig := setupSignals(t, ctx)

	tr, err := NewTailReader(ctx, valueSig, signal.SampleUndefined, signal.SampleUndefined, 5, false)
	require.NoError(t, err)
	defer tr.Close()

	sendBlock(t, valueSig, domainSig, 0, []float64{1, 2, 3})
	require.Eventually(t, func() bool {
		values, _ := tr.Read(5)
		return len(values) == 3
	}, time.Second, time.Millisecond)

	first, _ := tr.Read(5)
	second, _ := tr.Read(5)
	require.Equal(t, first, second, "repeated reads with no new data overlap fully")
}
