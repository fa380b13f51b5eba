package streaming

import "github.com/daqkit/daqrun/signal"

// RemotePacket pairs a decoded packet with the remote signal ID it arrived
// for; one Source multiplexes every signal subscribed over it onto a single
// channel, so the consumer demultiplexes by SignalID.
type RemotePacket struct {
	SignalID string
	Packet   signal.Packet
}

// Source is one open streaming connection to a device (§4.11). It is
// deliberately the only contact point between this package and a concrete
// transport: native streaming, OPC-UA or any other backend plugs in by
// implementing Source, the way the teacher's subscriptions/* backends all
// satisfy machine.Subscription. This repo ships exactly one implementation,
// MirrorSource, over the remote-mirror RPC transport it already owns.
type Source interface {
	Protocol() string
	Address() Address

	Subscribe(remoteSignalID string) error
	Unsubscribe(remoteSignalID string) error

	// Packets delivers every packet received for any signal currently
	// subscribed over this source.
	Packets() <-chan RemotePacket

	Close() error
}
