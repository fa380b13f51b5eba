// Package streaming implements the streaming attachment responsibility
// (C11): for each remote device/signal a client mirror discovers, pick a
// streaming source by heuristic, allow-list and protocol priority, then
// forward that source's packets into the local mirror signal, grounded on
// original_source/modules/native_streaming_client_module's client-side
// streaming handler wiring and the heuristics described alongside it.
package streaming

// AddressType classifies a streaming endpoint's transport address, used by
// Policy.PrimaryAddressType to prefer one family over another (§4.11).
type AddressType string

const (
	AddressIPv4 AddressType = "IPv4"
	AddressIPv6 AddressType = "IPv6"
)

// Address is one connectable endpoint a ServerCapability advertises.
type Address struct {
	Type             AddressType
	Host             string
	ConnectionString string
}

// ServerCapability advertises one streaming protocol a device exposes,
// mirroring DeviceInfo.ServerCapabilities in the original client module. A
// capability may list more than one Address (e.g. the same protocol
// reachable over both IPv4 and IPv6).
type ServerCapability struct {
	ProtocolID   string
	ProtocolName string
	Addresses    []Address
}
