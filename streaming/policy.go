package streaming

// Heuristic picks how deep into a device subtree a signal's streaming
// source is chosen from (§4.11).
type Heuristic string

const (
	// HeuristicMinHops attaches each signal to the closest upstream
	// streaming source in the device tree: every device in the subtree
	// opens its own sources, and a device's own signals use them.
	HeuristicMinHops Heuristic = "MinHops"

	// HeuristicDefault attaches every signal in the subtree to the sources
	// opened on the top device only, ignoring capabilities advertised by
	// nested devices.
	HeuristicDefault Heuristic = "default"
)

// Policy configures Attach. The zero value is permissive: HeuristicDefault,
// every protocol allowed, no priority preference (encounter order), no
// address-type preference.
type Policy struct {
	Heuristic Heuristic

	// AllowedProtocols restricts attachment to these protocol IDs; empty
	// allows everything (§4.11 "optional allow-list").
	AllowedProtocols []string

	// ProtocolPriority orders protocol IDs by preference, lower index first.
	// A protocol absent from this list sorts after every listed one, in the
	// order ServerCapabilities returned them.
	ProtocolPriority []string

	// PrimaryAddressType, if set, is preferred over other address families
	// when a capability offers more than one (§4.11).
	PrimaryAddressType AddressType
}

func (p Policy) allows(protocol string) bool {
	if len(p.AllowedProtocols) == 0 {
		return true
	}
	for _, allowed := range p.AllowedProtocols {
		if allowed == protocol {
			return true
		}
	}
	return false
}

// priorityRank returns protocol's sort key; unlisted protocols rank after
// every listed one.
func (p Policy) priorityRank(protocol string) int {
	for i, candidate := range p.ProtocolPriority {
		if candidate == protocol {
			return i
		}
	}
	return len(p.ProtocolPriority)
}
