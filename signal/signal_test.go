package signal

import (
	"testing"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	connected    int
	disconnected int
	received     int
}

func (l *recordingListener) Connected(port *InputPort)    { l.connected++ }
func (l *recordingListener) Disconnected(port *InputPort) { l.disconnected++ }
func (l *recordingListener) PacketReceived(port *InputPort) { l.received++ }

func newSignal(bus *coreevent.Bus) (*coreobjects.TypeManager, *Signal) {
	tm := coreobjects.NewTypeManager(bus)
	return tm, NewSignal("sig", tm, bus)
}

func TestConnectionFIFOPushDequeuePeek(t *testing.T) {
	c := NewConnection(4)
	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	p1 := NewRawDataPacket(d, nil, 0, 10, nil)
	p2 := NewRawDataPacket(d, nil, 10, 5, nil)

	require.NoError(t, c.Push(p1))
	require.NoError(t, c.Push(p2))
	require.Equal(t, 2, c.GetAvailableCount())
	require.Equal(t, int64(15), c.GetAvailableSamples())

	head, ok := c.Peek()
	require.True(t, ok)
	require.Same(t, p1, head)
	require.Equal(t, 2, c.GetAvailableCount(), "peek must not remove")

	got, ok := c.TryDequeue()
	require.True(t, ok)
	require.Same(t, p1, got)
	require.Equal(t, 1, c.GetAvailableCount())
}

func TestConnectionDropsOldestOnOverflow(t *testing.T) {
	c := NewConnection(2)
	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	p1 := NewRawDataPacket(d, nil, 0, 1, nil)
	p2 := NewRawDataPacket(d, nil, 1, 1, nil)
	p3 := NewRawDataPacket(d, nil, 2, 1, nil)

	require.NoError(t, c.Push(p1))
	require.NoError(t, c.Push(p2))
	require.NoError(t, c.Push(p3))
	require.Equal(t, 2, c.GetAvailableCount())

	got, ok := c.TryDequeue()
	require.True(t, ok)
	require.Same(t, p2, got, "oldest packet should have been dropped")
}

func TestConnectionDequeueBlocksUntilPush(t *testing.T) {
	c := NewConnection(4)
	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	p := NewRawDataPacket(d, nil, 0, 1, nil)

	done := make(chan Packet, 1)
	go func() {
		got, ok := c.Dequeue()
		if ok {
			done <- got
		} else {
			done <- nil
		}
	}()

	require.NoError(t, c.Push(p))
	got := <-done
	require.Same(t, p, got)
}

func TestConnectionCloseUnblocksDequeue(t *testing.T) {
	c := NewConnection(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Dequeue()
		done <- ok
	}()
	c.Close()
	ok := <-done
	require.False(t, ok)
}

func TestInputPortConnectFiresConnectedBeforeAnyPacket(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	listener := &recordingListener{}
	port := NewInputPort("ip", NotifySameThread, listener, nil, false, tm, bus)

	require.NoError(t, port.Connect(sig))
	require.Equal(t, 1, listener.connected)
	require.True(t, sig.IsSubscribed())
	require.Equal(t, 0, port.Connection().GetAvailableCount())
}

func TestInputPortDisconnectClosesConnectionAndFiresDisconnected(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	listener := &recordingListener{}
	port := NewInputPort("ip", NotifySameThread, listener, nil, false, tm, bus)
	require.NoError(t, port.Connect(sig))

	port.Disconnect()
	require.Equal(t, 1, listener.disconnected)
	require.False(t, sig.IsSubscribed())

	_, ok := port.Connection().Dequeue()
	require.False(t, ok, "closed connection must unblock Dequeue with ok=false")
}

func TestSendPushesDescriptorChangedBeforeFirstDataPacket(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	sig.SetActive(true)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, false, tm, bus)
	require.NoError(t, port.Connect(sig))

	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	sig.SetDescriptor(d)

	dp := NewRawDataPacket(nil, nil, 0, 10, nil)
	require.NoError(t, sig.Send(dp))

	first, ok := port.Connection().TryDequeue()
	require.True(t, ok)
	ev, isEvent := first.(*EventPacket)
	require.True(t, isEvent, "first packet on a fresh subscription must be an EventPacket")
	require.Equal(t, EventDataDescriptorChanged, ev.EventID)

	second, ok := port.Connection().TryDequeue()
	require.True(t, ok)
	require.Same(t, dp, second)

	// subsequent sends on the same descriptor do not re-send the event.
	dp2 := NewRawDataPacket(nil, nil, 10, 10, nil)
	require.NoError(t, sig.Send(dp2))
	third, ok := port.Connection().TryDequeue()
	require.True(t, ok)
	require.Same(t, dp2, third)
}

func TestSetDescriptorResendsEventOnNextSend(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	sig.SetActive(true)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, false, tm, bus)
	require.NoError(t, port.Connect(sig))

	d1 := NewDataDescriptor(SampleFloat64, ExplicitRule())
	sig.SetDescriptor(d1)
	dp := NewRawDataPacket(nil, nil, 0, 1, nil)
	require.NoError(t, sig.Send(dp))
	port.Connection().TryDequeue() // event
	port.Connection().TryDequeue() // data

	d2 := NewDataDescriptor(SampleInt32, ExplicitRule())
	sig.SetDescriptor(d2)
	dp2 := NewRawDataPacket(nil, nil, 1, 1, nil)
	require.NoError(t, sig.Send(dp2))

	next, ok := port.Connection().TryDequeue()
	require.True(t, ok)
	ev, isEvent := next.(*EventPacket)
	require.True(t, isEvent, "changing the descriptor must re-arm the first-packet event")
	require.Same(t, d2, ev.NewValueDescriptor)
}

func TestSendOnInactiveSignalIsNoop(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	sig.SetActive(false)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, false, tm, bus)
	// Connect regardless of active state; Send should simply no-op.
	require.NoError(t, port.Connect(sig))
	sig.SetDescriptor(NewDataDescriptor(SampleFloat64, ExplicitRule()))

	dp := NewRawDataPacket(nil, nil, 0, 1, nil)
	require.NoError(t, sig.Send(dp))
	require.Equal(t, 0, port.Connection().GetAvailableCount())
}

func TestSendWithoutDescriptorFails(t *testing.T) {
	bus := coreevent.NewBus()
	tm, sig := newSignal(bus)
	sig.SetActive(true)
	_ = tm
	dp := NewRawDataPacket(nil, nil, 0, 1, nil)
	err := sig.Send(dp)
	require.Error(t, err)
}

func TestGapDetectionOnLinearRuleDiscontinuity(t *testing.T) {
	bus := coreevent.NewBus()
	tm, _ := newSignal(bus)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, true, tm, bus)

	d := NewDataDescriptor(SampleFloat64, LinearRule(0, 10))
	p1 := NewRawDataPacket(d, nil, 0, 100, nil)
	require.False(t, port.CheckGap(p1), "first packet establishes the baseline, never a gap")

	p2 := NewRawDataPacket(d, nil, 1000, 100, nil)
	require.False(t, port.CheckGap(p2), "contiguous offset 1000 matches expected next")

	p3 := NewRawDataPacket(d, nil, 2500, 100, nil)
	require.True(t, port.CheckGap(p3), "offset 2500 skips the expected 2000")
}

func TestGapDetectionDisabledNeverReports(t *testing.T) {
	bus := coreevent.NewBus()
	tm, _ := newSignal(bus)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, false, tm, bus)

	d := NewDataDescriptor(SampleFloat64, LinearRule(0, 10))
	p1 := NewRawDataPacket(d, nil, 0, 100, nil)
	p2 := NewRawDataPacket(d, nil, 5000, 100, nil)
	require.False(t, port.CheckGap(p1))
	require.False(t, port.CheckGap(p2))
}

func TestGapDetectionIgnoresNonLinearRule(t *testing.T) {
	bus := coreevent.NewBus()
	tm, _ := newSignal(bus)
	port := NewInputPort("ip", NotifySameThread, &recordingListener{}, nil, true, tm, bus)

	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	p1 := NewRawDataPacket(d, nil, 0, 100, nil)
	p2 := NewRawDataPacket(d, nil, 9999, 100, nil)
	require.False(t, port.CheckGap(p1))
	require.False(t, port.CheckGap(p2))
}

func TestDescriptorRawSampleSizeUsesPostScalingInput(t *testing.T) {
	d := NewDataDescriptor(SampleFloat64, ExplicitRule())
	require.Equal(t, 8, d.RawSampleSize())

	d.PostScaling = &PostScaling{InputSampleType: SampleInt16, Scale: 1, Offset: 0}
	require.Equal(t, 2, d.RawSampleSize())
}

func TestDescriptorEquals(t *testing.T) {
	a := NewDataDescriptor(SampleFloat64, LinearRule(0, 1))
	a.Dimensions = []int{4}
	b := NewDataDescriptor(SampleFloat64, LinearRule(0, 1))
	b.Dimensions = []int{4}
	require.True(t, a.Equals(b))

	c := NewDataDescriptor(SampleFloat64, LinearRule(0, 1))
	c.Dimensions = []int{8}
	require.False(t, a.Equals(c))
}
