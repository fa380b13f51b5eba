package streaming

import (
	"encoding/base64"

	"github.com/daqkit/daqrun/configprotocol"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/signal"
)

// MirrorSource is a Source backed by a configprotocol.Client: the remote
// mirror RPC transport this repo already owns end to end. It is the only
// concrete Source this repo ships; a real OPC-UA or other wire-compatible
// backend would implement Source the same way without touching Attacher.
type MirrorSource struct {
	protocol string
	addr     Address
	client   *configprotocol.Client
	packets  chan RemotePacket
	stop     chan struct{}
}

// NewMirrorSource wraps an already-dialed client. DialMirrorSource is the
// usual entry point; this is exposed separately so tests can supply a
// client built against an in-process server.
func NewMirrorSource(protocol string, addr Address, client *configprotocol.Client) *MirrorSource {
	m := &MirrorSource{
		protocol: protocol,
		addr:     addr,
		client:   client,
		packets:  make(chan RemotePacket, 256),
		stop:     make(chan struct{}),
	}
	go m.pump()
	return m
}

// DialMirrorSource connects to addr's config protocol server and wraps the
// resulting client as a Source.
func DialMirrorSource(protocol string, addr Address, hello configprotocol.HelloPayload) (Source, error) {
	client, err := configprotocol.Dial(addr.ConnectionString, hello)
	if err != nil {
		return nil, err
	}
	return NewMirrorSource(protocol, addr, client), nil
}

func (m *MirrorSource) pump() {
	defer close(m.packets)
	for {
		select {
		case <-m.stop:
			return
		case notify, ok := <-m.client.Packets():
			if !ok {
				return
			}
			pkt, err := parsePacket(notify.Packet)
			if err != nil {
				continue
			}
			select {
			case m.packets <- RemotePacket{SignalID: notify.SignalID, Packet: pkt}:
			case <-m.stop:
				return
			}
		}
	}
}

func (m *MirrorSource) Protocol() string { return m.protocol }
func (m *MirrorSource) Address() Address { return m.addr }

func (m *MirrorSource) Subscribe(remoteSignalID string) error {
	return m.client.Subscribe(remoteSignalID)
}

func (m *MirrorSource) Unsubscribe(remoteSignalID string) error {
	return m.client.Unsubscribe(remoteSignalID)
}

func (m *MirrorSource) Packets() <-chan RemotePacket { return m.packets }

func (m *MirrorSource) Close() error {
	close(m.stop)
	return m.client.Close()
}

// parsePacket reverses configprotocol's renderPacket wire shape (§6.2) back
// into a signal.Packet the local mirror signal can replay.
func parsePacket(m map[string]interface{}) (signal.Packet, error) {
	switch kindOf(m) {
	case "Data":
		p := &signal.DataPacket{
			Offset:      int64Of(m["offset"]),
			SampleCount: int64Of(m["sampleCount"]),
		}
		if desc, ok := m["descriptor"].(map[string]interface{}); ok {
			p.Descriptor = parseDescriptor(desc)
		}
		if raw, ok := m["rawBytes"].(string); ok {
			b, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, daqerr.Wrap(daqerr.ParseFailed, err, "decoding packet rawBytes")
			}
			p.RawBytes = b
		}
		if cs, ok := m["constantStart"]; ok {
			p.ConstantStart = cs
		}
		if rawOverrides, ok := m["constantOverrides"].([]interface{}); ok {
			for _, rawOverride := range rawOverrides {
				om, ok := rawOverride.(map[string]interface{})
				if !ok {
					continue
				}
				p.ConstantOverrides = append(p.ConstantOverrides, signal.ConstantOverride{
					Position: int64Of(om["position"]),
					Value:    om["value"],
				})
			}
		}
		if dom, ok := m["domain"].(map[string]interface{}); ok {
			domPkt, err := parsePacket(dom)
			if err != nil {
				return nil, err
			}
			domData, ok := domPkt.(*signal.DataPacket)
			if !ok {
				return nil, daqerr.New(daqerr.ParseFailed, "domain packet did not decode as a data packet")
			}
			p.Domain = domData
		}
		return p, nil
	case "Event":
		p := &signal.EventPacket{EventID: stringOf(m["eventId"])}
		if d, ok := m["newValueDescriptor"].(map[string]interface{}); ok {
			p.NewValueDescriptor = parseDescriptor(d)
		}
		if d, ok := m["newDomainDescriptor"].(map[string]interface{}); ok {
			p.NewDomainDescriptor = parseDescriptor(d)
		}
		return p, nil
	default:
		return nil, daqerr.Newf(daqerr.ParseFailed, "unknown packet kind %q", kindOf(m))
	}
}

func parseDescriptor(m map[string]interface{}) *signal.DataDescriptor {
	d := &signal.DataDescriptor{
		SampleType: signal.SampleType(intOf(m["sampleType"])),
		Unit:       stringOf(m["unit"]),
		Name:       stringOf(m["name"]),
	}
	d.Rule.Type = signal.RuleType(intOf(m["ruleType"]))
	if d.Rule.Type == signal.RuleLinear {
		d.Rule.LinearStart = int64Of(m["linearStart"])
		d.Rule.LinearDelta = int64Of(m["linearDelta"])
	}
	return d
}

func kindOf(m map[string]interface{}) string { return stringOf(m["kind"]) }

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

// intOf/int64Of read a field decoded from JSON through map[string]interface{},
// where every number surfaces as float64.
func intOf(v interface{}) int {
	f, _ := v.(float64)
	return int(f)
}

func int64Of(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}
