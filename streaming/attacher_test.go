package streaming

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	path, remoteID string
}

func (f fakeSignal) Path() string     { return f.path }
func (f fakeSignal) RemoteID() string { return f.remoteID }

type fakeDevice struct {
	path    string
	configured string
	caps    []ServerCapability
	signals []SignalNode
	devices []DeviceNode
}

func (f *fakeDevice) Path() string                          { return f.path }
func (f *fakeDevice) ServerCapabilities() []ServerCapability { return f.caps }
func (f *fakeDevice) ConfiguredAddress() string              { return f.configured }
func (f *fakeDevice) Signals() []SignalNode                  { return f.signals }
func (f *fakeDevice) Devices() []DeviceNode                  { return f.devices }

type fakeSource struct {
	protocol    string
	addr        Address
	subscribed  []string
	packets     chan RemotePacket
	closed      bool
}

func newFakeSource(protocol string, addr Address) *fakeSource {
	return &fakeSource{protocol: protocol, addr: addr, packets: make(chan RemotePacket, 8)}
}

func (f *fakeSource) Protocol() string { return f.protocol }
func (f *fakeSource) Address() Address { return f.addr }
func (f *fakeSource) Subscribe(id string) error {
	f.subscribed = append(f.subscribed, id)
	return nil
}
func (f *fakeSource) Unsubscribe(id string) error          { return nil }
func (f *fakeSource) Packets() <-chan RemotePacket          { return f.packets }
func (f *fakeSource) Close() error                          { f.closed = true; close(f.packets); return nil }

func openerFor(sources map[string]*fakeSource) SourceOpener {
	return func(device DeviceNode, protocol string, addr Address) (Source, error) {
		src := newFakeSource(protocol, addr)
		sources[fmt.Sprintf("%s/%s", device.Path(), protocol)] = src
		return src, nil
	}
}

func TestAttachDefaultHeuristicOpensOnlyTopDeviceAndCoversWholeSubtree(t *testing.T) {
	leaf := &fakeDevice{
		path: "/dev0/sub0",
		caps: []ServerCapability{{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://leaf"}}}},
		signals: []SignalNode{fakeSignal{path: "/dev0/sub0/sig0", remoteID: "sub0.sig0"}},
	}
	top := &fakeDevice{
		path: "/dev0",
		caps: []ServerCapability{{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://top"}}}},
		signals: []SignalNode{fakeSignal{path: "/dev0/sig0", remoteID: "dev0.sig0"}},
		devices: []DeviceNode{leaf},
	}

	opened := map[string]*fakeSource{}
	var delivered []RemotePacket
	a := NewAttacher(Policy{Heuristic: HeuristicDefault}, openerFor(opened), func(path string, pkt RemotePacket) {
		delivered = append(delivered, pkt)
	}, nil)

	a.Attach(top)

	require.Len(t, opened, 1, "only the top device should have opened a source")
	topSrc := opened["/dev0/daq.ns"]
	require.NotNil(t, topSrc)
	require.ElementsMatch(t, []string{"dev0.sig0", "sub0.sig0"}, topSrc.subscribed)

	proto, ok := a.ActiveProtocol("/dev0/sig0")
	require.True(t, ok)
	require.Equal(t, "daq.ns", proto)
	proto, ok = a.ActiveProtocol("/dev0/sub0/sig0")
	require.True(t, ok)
	require.Equal(t, "daq.ns", proto)

	topSrc.packets <- RemotePacket{SignalID: "sub0.sig0", Packet: nil}
	require.Eventually(t, func() bool { return len(delivered) == 1 }, time.Second, time.Millisecond)
}

func TestAttachMinHopsOpensPerDeviceSourcesForOwnSignalsOnly(t *testing.T) {
	leaf := &fakeDevice{
		path: "/dev0/sub0",
		caps: []ServerCapability{{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://leaf"}}}},
		signals: []SignalNode{fakeSignal{path: "/dev0/sub0/sig0", remoteID: "sub0.sig0"}},
	}
	top := &fakeDevice{
		path: "/dev0",
		caps: []ServerCapability{{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://top"}}}},
		signals: []SignalNode{fakeSignal{path: "/dev0/sig0", remoteID: "dev0.sig0"}},
		devices: []DeviceNode{leaf},
	}

	opened := map[string]*fakeSource{}
	a := NewAttacher(Policy{Heuristic: HeuristicMinHops}, openerFor(opened), func(string, RemotePacket) {}, nil)

	a.Attach(top)

	require.Len(t, opened, 2)
	require.ElementsMatch(t, []string{"sub0.sig0"}, opened["/dev0/sub0/daq.ns"].subscribed)
	require.ElementsMatch(t, []string{"dev0.sig0"}, opened["/dev0/daq.ns"].subscribed)
}

func TestAttachFiltersByAllowList(t *testing.T) {
	dev := &fakeDevice{
		path: "/dev0",
		caps: []ServerCapability{
			{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://a"}}},
			{ProtocolID: "daq.opcua", Addresses: []Address{{ConnectionString: "opc://b"}}},
		},
		signals: []SignalNode{fakeSignal{path: "/dev0/sig0", remoteID: "dev0.sig0"}},
	}

	opened := map[string]*fakeSource{}
	a := NewAttacher(Policy{AllowedProtocols: []string{"daq.ns"}}, openerFor(opened), func(string, RemotePacket) {}, nil)
	a.Attach(dev)

	require.Len(t, opened, 1)
	require.Contains(t, opened, "/dev0/daq.ns")
}

func TestAttachHighestPriorityBecomesActiveSource(t *testing.T) {
	dev := &fakeDevice{
		path: "/dev0",
		caps: []ServerCapability{
			{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://a"}}},
			{ProtocolID: "daq.opcua", Addresses: []Address{{ConnectionString: "opc://b"}}},
		},
		signals: []SignalNode{fakeSignal{path: "/dev0/sig0", remoteID: "dev0.sig0"}},
	}

	opened := map[string]*fakeSource{}
	policy := Policy{ProtocolPriority: []string{"daq.opcua", "daq.ns"}}
	a := NewAttacher(policy, openerFor(opened), func(string, RemotePacket) {}, nil)
	a.Attach(dev)

	require.ElementsMatch(t, []string{"dev0.sig0"}, opened["/dev0/daq.ns"].subscribed)
	require.ElementsMatch(t, []string{"dev0.sig0"}, opened["/dev0/daq.opcua"].subscribed)

	proto, ok := a.ActiveProtocol("/dev0/sig0")
	require.True(t, ok)
	require.Equal(t, "daq.opcua", proto, "higher-priority protocol should win activeStreamingSource")
}

func TestChooseAddressPrefersPrimaryTypeAndMatchingHost(t *testing.T) {
	dev := &fakeDevice{path: "/dev0", configured: "10.0.0.5"}
	cap := ServerCapability{
		ProtocolID: "daq.ns",
		Addresses: []Address{
			{Type: AddressIPv6, Host: "::1", ConnectionString: "ws://v6"},
			{Type: AddressIPv4, Host: "10.0.0.9", ConnectionString: "ws://other-host"},
			{Type: AddressIPv4, Host: "10.0.0.5", ConnectionString: "ws://matching-host"},
		},
	}
	a := NewAttacher(Policy{PrimaryAddressType: AddressIPv4}, nil, nil, nil)

	addr, ok := a.chooseAddress(dev, cap)
	require.True(t, ok)
	require.Equal(t, "ws://matching-host", addr.ConnectionString)
}

func TestChooseAddressFallsBackWhenNoPrimaryTypeAvailable(t *testing.T) {
	dev := &fakeDevice{path: "/dev0"}
	cap := ServerCapability{
		ProtocolID: "daq.ns",
		Addresses:  []Address{{Type: AddressIPv6, Host: "::1", ConnectionString: "ws://only-v6"}},
	}
	a := NewAttacher(Policy{PrimaryAddressType: AddressIPv4}, nil, nil, nil)

	addr, ok := a.chooseAddress(dev, cap)
	require.True(t, ok)
	require.Equal(t, "ws://only-v6", addr.ConnectionString, "falls back to the only address when none match the primary type")
}

func TestAttacherCloseClosesEveryOpenedSource(t *testing.T) {
	dev := &fakeDevice{
		path: "/dev0",
		caps: []ServerCapability{{ProtocolID: "daq.ns", Addresses: []Address{{ConnectionString: "ws://a"}}}},
	}
	opened := map[string]*fakeSource{}
	a := NewAttacher(Policy{}, openerFor(opened), func(string, RemotePacket) {}, nil)
	a.Attach(dev)

	require.NoError(t, a.Close())
	require.True(t, opened["/dev0/daq.ns"].closed)
}
