package streaming

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// SourceOpener opens (or would reuse, if the caller already tracks one) a
// Source for one device's chosen protocol and address. Attach calls it at
// most once per (device, protocol) pair; DialMirrorSource is the one
// concrete opener this repo ships.
type SourceOpener func(device DeviceNode, protocol string, addr Address) (Source, error)

// Attacher implements "for each freshly visible remote signal, ensure at
// least one packet stream is attached and one is active" (§4.11), run
// whenever the client mirror gains a device subtree.
type Attacher struct {
	Policy Policy
	Open   SourceOpener
	Logger *logrus.Logger

	// Sink receives every packet read off a signal's active source, keyed
	// by the signal's local mirror path. The caller replays it into the
	// corresponding *signal.Signal (Send for a DataPacket, SetDescriptor
	// for an EventPacket carrying a new descriptor); Attacher itself never
	// touches *signal.Signal so it stays testable against fakes.
	Sink func(signalPath string, pkt RemotePacket)

	mu             sync.Mutex
	sources        map[string]map[string]Source // device path -> protocol -> Source
	pumped         map[Source]bool
	remoteToPath   map[string]string // remote signal ID -> local mirror path
	activeBySignal map[string]string // local mirror path -> protocol of its activeStreamingSource
}

// NewAttacher builds an Attacher. open and sink are required; a nil logger
// falls back to logrus's standard logger, matching the rest of this repo's
// ambient logging.
func NewAttacher(policy Policy, open SourceOpener, sink func(string, RemotePacket), logger *logrus.Logger) *Attacher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Attacher{
		Policy:         policy,
		Open:           open,
		Sink:           sink,
		Logger:         logger,
		sources:        map[string]map[string]Source{},
		pumped:         map[Source]bool{},
		remoteToPath:   map[string]string{},
		activeBySignal: map[string]string{},
	}
}

// Attach runs the "component added" algorithm against root and everything
// nested under it (§4.11 steps 1-5).
func (a *Attacher) Attach(root DeviceNode) {
	if a.Policy.Heuristic == HeuristicMinHops {
		a.attachMinHops(root)
		return
	}
	a.attachDefault(root)
}

// attachMinHops walks bottom-up: a leaf device's own sources are opened and
// claimed by its own signals before any ancestor is considered (§4.11 step
// 1, "so leaf devices get their closest sources first").
func (a *Attacher) attachMinHops(dev DeviceNode) {
	for _, child := range dev.Devices() {
		a.attachMinHops(child)
	}
	opened := a.openSources(dev)
	a.attachSignals(dev.Signals(), opened)
}

// attachDefault opens sources only on the top device, then attaches every
// signal in the whole subtree to them (§4.11 "attach at the top device
// only").
func (a *Attacher) attachDefault(root DeviceNode) {
	opened := a.openSources(root)
	a.attachSignalsRecursive(root, opened)
}

func (a *Attacher) attachSignalsRecursive(dev DeviceNode, sources []Source) {
	a.attachSignals(dev.Signals(), sources)
	for _, child := range dev.Devices() {
		a.attachSignalsRecursive(child, sources)
	}
}

// openSources runs steps 2-4 for one device: enumerate capabilities, drop
// disallowed protocols, choose an address per surviving capability, and
// open-or-reuse a Source for each, returned sorted by priority (highest
// first).
func (a *Attacher) openSources(dev DeviceNode) []Source {
	type candidate struct {
		proto string
		addr  Address
	}

	var candidates []candidate
	for _, cap := range dev.ServerCapabilities() {
		if !a.Policy.allows(cap.ProtocolID) {
			continue
		}
		addr, ok := a.chooseAddress(dev, cap)
		if !ok {
			a.Logger.Warnf("streaming: %s capability %s has no usable address", dev.Path(), cap.ProtocolID)
			continue
		}
		candidates = append(candidates, candidate{proto: cap.ProtocolID, addr: addr})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return a.Policy.priorityRank(candidates[i].proto) < a.Policy.priorityRank(candidates[j].proto)
	})

	a.mu.Lock()
	byProto, ok := a.sources[dev.Path()]
	if !ok {
		byProto = map[string]Source{}
		a.sources[dev.Path()] = byProto
	}
	a.mu.Unlock()

	out := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		a.mu.Lock()
		src, exists := byProto[c.proto]
		a.mu.Unlock()
		if !exists {
			var err error
			src, err = a.Open(dev, c.proto, c.addr)
			if err != nil {
				a.Logger.WithError(err).Warnf("streaming: opening %s source for %s", c.proto, dev.Path())
				continue
			}
			a.mu.Lock()
			byProto[c.proto] = src
			a.mu.Unlock()
			a.startPump(src)
		}
		out = append(out, src)
	}
	return out
}

// chooseAddress picks the address to dial for cap. When a primary address
// type is configured it prefers an address of that type whose host matches
// dev's already-used configuration address, then any address of that type,
// logging and falling back to the capability's first address otherwise
// (§4.11).
func (a *Attacher) chooseAddress(dev DeviceNode, cap ServerCapability) (Address, bool) {
	if len(cap.Addresses) == 0 {
		return Address{}, false
	}
	if a.Policy.PrimaryAddressType != "" {
		for _, addr := range cap.Addresses {
			if addr.Type == a.Policy.PrimaryAddressType && addr.Host == dev.ConfiguredAddress() {
				return addr, true
			}
		}
		for _, addr := range cap.Addresses {
			if addr.Type == a.Policy.PrimaryAddressType {
				return addr, true
			}
		}
		a.Logger.Warnf("streaming: %s capability %s has no %s address, falling back", dev.Path(), cap.ProtocolID, a.Policy.PrimaryAddressType)
	}
	return cap.Addresses[0], true
}

// attachSignals runs step 5 for one device's own signals: subscribe every
// surviving signal to every source in priority order, and if the signal has
// no activeStreamingSource yet, the first (highest-priority) source becomes
// it.
func (a *Attacher) attachSignals(signals []SignalNode, sources []Source) {
	for _, sig := range signals {
		a.mu.Lock()
		a.remoteToPath[sig.RemoteID()] = sig.Path()
		_, hasActive := a.activeBySignal[sig.Path()]
		a.mu.Unlock()

		for i, src := range sources {
			if err := src.Subscribe(sig.RemoteID()); err != nil {
				a.Logger.WithError(err).Warnf("streaming: subscribing %s on %s", sig.Path(), src.Protocol())
				continue
			}
			if i == 0 && !hasActive {
				a.mu.Lock()
				a.activeBySignal[sig.Path()] = src.Protocol()
				a.mu.Unlock()
			}
		}
	}
}

// startPump drains src's packet channel for as long as src lives, handing
// each packet to Sink only while src is the active source for the signal it
// names, so redundant subscriptions don't double-deliver.
func (a *Attacher) startPump(src Source) {
	a.mu.Lock()
	if a.pumped[src] {
		a.mu.Unlock()
		return
	}
	a.pumped[src] = true
	a.mu.Unlock()

	go func() {
		for pkt := range src.Packets() {
			a.mu.Lock()
			path, known := a.remoteToPath[pkt.SignalID]
			isActive := known && a.activeBySignal[path] == src.Protocol()
			sink := a.Sink
			a.mu.Unlock()
			if known && isActive && sink != nil {
				sink(path, pkt)
			}
		}
	}()
}

// ActiveProtocol reports which protocol is currently the activeStreamingSource
// for signalPath, if any.
func (a *Attacher) ActiveProtocol(signalPath string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.activeBySignal[signalPath]
	return p, ok
}

// Close closes every source this Attacher has opened.
func (a *Attacher) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, byProto := range a.sources {
		for _, src := range byProto {
			if err := src.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
