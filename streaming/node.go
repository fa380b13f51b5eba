package streaming

// DeviceNode is one device in a client-side mirror tree, as Attach needs to
// see it. Streaming holds no reference to component/functionblock types:
// the composition root adapts whatever shape its proxy tree has (built from
// configprotocol's HelloAck root serialisation) to this interface, the same
// inversion the original keeps between its streaming module and IDevice.
type DeviceNode interface {
	// Path is the device's component path, used as the key under which
	// Attach remembers which sources are already open for it.
	Path() string

	ServerCapabilities() []ServerCapability

	// ConfiguredAddress is the host this device is already reached at (e.g.
	// the remote-mirror connection's own host), matched against a
	// capability's address when Policy.PrimaryAddressType is set (§4.11
	// "whose host matches the already-used configuration address").
	ConfiguredAddress() string

	// Signals are the public signals owned directly by this device (not by
	// its nested devices).
	Signals() []SignalNode

	// Devices are this device's nested child devices, if any.
	Devices() []DeviceNode
}

// SignalNode is one public signal a streaming source can be told to carry.
type SignalNode interface {
	// Path is the local mirror signal's component path; Attach uses it to
	// remember which source is the active one for this signal and as the
	// key it hands to Attacher.Sink.
	Path() string

	// RemoteID is the identifier the streaming source itself uses to name
	// this signal (the signal's global ID on the server it mirrors).
	RemoteID() string
}
