package functionblock

import (
	"context"
	"sync"

	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/internal/telemetry"
	"github.com/daqkit/daqrun/signal"
)

// FunctionBlock is a component whose own property object carries its
// instance config, with three standard child folders: IP (input ports),
// Sig (output signals), and FB (nested blocks). It implements
// signal.Listener so it can sit directly behind any input port it owns
// (§4.8).
type FunctionBlock struct {
	*component.Folder

	typeID string
	ctx    *Context

	ip  *component.Folder
	sig *component.Folder
	fb  *component.Folder

	mu     sync.Mutex
	ports  []*signal.InputPort
	sigs   []*signal.Signal
	blocks []*FunctionBlock

	// onPacketReceived is set by the concrete block (statistics, averager,
	// ...) built on top of New; the base type has no processing behaviour of
	// its own. Same self-pointer-callback idiom as component.onActiveCascade,
	// needed because Go has no virtual dispatch through an embedded pointer.
	onPacketReceived func(port *signal.InputPort)
	onConnected      func(port *signal.InputPort)
	onDisconnected   func(port *signal.InputPort)
}

// New constructs a detached function block of typeID. defaultConfig (may be
// nil) supplies the type's property definitions; userConfig (may be nil)
// overlays recognised property names with caller-supplied values (§4.8
// "user config overlays it property-by-property for recognised names
// only").
func New(ctx *Context, typeID, localID string, defaultConfig, userConfig *coreobjects.PropertyObject) (*FunctionBlock, error) {
	folder := component.NewFolder(localID, "IFunctionBlock", ctx.TypeManager, ctx.Bus)
	fb := &FunctionBlock{
		Folder: folder,
		typeID: typeID,
		ctx:    ctx,
	}

	if err := fb.applyConfig(defaultConfig, userConfig); err != nil {
		return nil, err
	}

	fb.ip = component.NewFolder("IP", "IInputPort", ctx.TypeManager, ctx.Bus)
	fb.sig = component.NewFolder("Sig", "ISignal", ctx.TypeManager, ctx.Bus)
	fb.fb = component.NewFolder("FB", "IFunctionBlock", ctx.TypeManager, ctx.Bus)

	if err := fb.Folder.Add(fb.ip.Component); err != nil {
		return nil, err
	}
	if err := fb.Folder.Add(fb.sig.Component); err != nil {
		return nil, err
	}
	if err := fb.Folder.Add(fb.fb.Component); err != nil {
		return nil, err
	}

	// The IP folder is locked except for Active (§4.8 "locked except for
	// Active"): SetLocked refuses property writes on the folder itself, while
	// ports are still (dis)connected and toggled active through their own
	// methods. Folder.Add and RemoveItem do not check the lock.
	fb.ip.SetLocked(true)

	return fb, nil
}

func (fb *FunctionBlock) applyConfig(defaultConfig, userConfig *coreobjects.PropertyObject) error {
	if defaultConfig == nil {
		return nil
	}
	for _, name := range defaultConfig.PropertyNames() {
		p, err := defaultConfig.Property(name)
		if err != nil {
			continue
		}
		if err := fb.AddProperty(p); err != nil && daqerr.KindOf(err) != daqerr.AlreadyExists {
			return err
		}
		if userConfig == nil {
			continue
		}
		if uv, err := userConfig.GetPropertyValue(name); err == nil {
			if err := fb.SetProtectedPropertyValue(name, uv); err != nil && !daqerr.IsIgnored(err) {
				return err
			}
		}
	}
	return nil
}

func (fb *FunctionBlock) TypeID() string { return fb.typeID }

// AddInputPort creates and registers a new input port under IP, with fb
// itself as the listener.
func (fb *FunctionBlock) AddInputPort(localID string, mode signal.NotificationMode, gapDetection bool) (*signal.InputPort, error) {
	var post func(func())
	if fb.ctx.Scheduler != nil {
		post = fb.ctx.Scheduler.Post
	}
	port := signal.NewInputPort(localID, mode, fb, post, gapDetection, fb.ctx.TypeManager, fb.ctx.Bus)
	if err := fb.ip.Add(port.Component); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	fb.ports = append(fb.ports, port)
	fb.mu.Unlock()
	return port, nil
}

// AddSignal creates and registers a new output signal under Sig.
func (fb *FunctionBlock) AddSignal(localID string) (*signal.Signal, error) {
	sig := signal.NewSignal(localID, fb.ctx.TypeManager, fb.ctx.Bus)
	if err := fb.sig.Add(sig.Component); err != nil {
		return nil, err
	}
	fb.mu.Lock()
	fb.sigs = append(fb.sigs, sig)
	fb.mu.Unlock()
	return sig, nil
}

// AddFunctionBlock nests child under FB.
func (fb *FunctionBlock) AddFunctionBlock(child *FunctionBlock) error {
	if err := fb.fb.Add(child.Folder.Component); err != nil {
		return err
	}
	fb.mu.Lock()
	fb.blocks = append(fb.blocks, child)
	fb.mu.Unlock()
	return nil
}

// RemoveFunctionBlock tears down a nested block by local id (§4.10
// "RemoveFunctionBlock"), mirroring AddFunctionBlock's folder-plus-slice
// bookkeeping in reverse.
func (fb *FunctionBlock) RemoveFunctionBlock(localID string) error {
	if err := fb.fb.RemoveItem(localID); err != nil {
		return err
	}
	fb.mu.Lock()
	for i, child := range fb.blocks {
		if child.LocalID() == localID {
			fb.blocks = append(fb.blocks[:i], fb.blocks[i+1:]...)
			break
		}
	}
	fb.mu.Unlock()
	return nil
}

// OnPacketReceived registers the callback invoked when any owned input port
// notifies (§4.8 "the framework calls the block's onPacketReceived").
func (fb *FunctionBlock) OnPacketReceived(handler func(port *signal.InputPort)) {
	fb.onPacketReceived = handler
}

func (fb *FunctionBlock) OnConnected(handler func(port *signal.InputPort))    { fb.onConnected = handler }
func (fb *FunctionBlock) OnDisconnected(handler func(port *signal.InputPort)) { fb.onDisconnected = handler }

// Connected implements signal.Listener.
func (fb *FunctionBlock) Connected(port *signal.InputPort) {
	if fb.onConnected != nil {
		fb.onConnected(port)
	}
}

// Disconnected implements signal.Listener.
func (fb *FunctionBlock) Disconnected(port *signal.InputPort) {
	if fb.onDisconnected != nil {
		fb.onDisconnected(port)
	}
}

// PacketReceived implements signal.Listener. The block drains its
// connections under its own lock (§4.8), so concrete handlers never need
// their own synchronization against concurrent ports.
func (fb *FunctionBlock) PacketReceived(port *signal.InputPort) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.onPacketReceived == nil {
		return
	}
	rec := telemetry.NewRecorder(fb.GlobalID(), "functionblock")
	_ = telemetry.Timed(context.Background(), rec, "PacketReceived", func() error {
		fb.onPacketReceived(port)
		return nil
	})
}

var _ signal.Listener = (*FunctionBlock)(nil)

// GetSignals returns this block's own signals, and (when recursive) those of
// every nested block, deduplicated by identity and in insertion order
// (§4.8).
func (fb *FunctionBlock) GetSignals(recursive bool) []*signal.Signal {
	seen := map[*signal.Signal]bool{}
	var out []*signal.Signal
	fb.collectSignals(recursive, seen, &out)
	return out
}

func (fb *FunctionBlock) collectSignals(recursive bool, seen map[*signal.Signal]bool, out *[]*signal.Signal) {
	fb.mu.Lock()
	sigs := append([]*signal.Signal(nil), fb.sigs...)
	blocks := append([]*FunctionBlock(nil), fb.blocks...)
	fb.mu.Unlock()

	for _, s := range sigs {
		if !seen[s] {
			seen[s] = true
			*out = append(*out, s)
		}
	}
	if !recursive {
		return
	}
	for _, child := range blocks {
		child.collectSignals(true, seen, out)
	}
}

// GetInputPorts mirrors GetSignals for input ports.
func (fb *FunctionBlock) GetInputPorts(recursive bool) []*signal.InputPort {
	seen := map[*signal.InputPort]bool{}
	var out []*signal.InputPort
	fb.collectInputPorts(recursive, seen, &out)
	return out
}

func (fb *FunctionBlock) collectInputPorts(recursive bool, seen map[*signal.InputPort]bool, out *[]*signal.InputPort) {
	fb.mu.Lock()
	ports := append([]*signal.InputPort(nil), fb.ports...)
	blocks := append([]*FunctionBlock(nil), fb.blocks...)
	fb.mu.Unlock()

	for _, p := range ports {
		if !seen[p] {
			seen[p] = true
			*out = append(*out, p)
		}
	}
	if !recursive {
		return
	}
	for _, child := range blocks {
		child.collectInputPorts(true, seen, out)
	}
}

// GetFunctionBlocks mirrors GetSignals for nested function blocks.
func (fb *FunctionBlock) GetFunctionBlocks(recursive bool) []*FunctionBlock {
	seen := map[*FunctionBlock]bool{}
	var out []*FunctionBlock
	fb.collectFunctionBlocks(recursive, seen, &out)
	return out
}

func (fb *FunctionBlock) collectFunctionBlocks(recursive bool, seen map[*FunctionBlock]bool, out *[]*FunctionBlock) {
	fb.mu.Lock()
	blocks := append([]*FunctionBlock(nil), fb.blocks...)
	fb.mu.Unlock()

	for _, child := range blocks {
		if !seen[child] {
			seen[child] = true
			*out = append(*out, child)
		}
	}
	if !recursive {
		return
	}
	for _, child := range blocks {
		child.collectFunctionBlocks(true, seen, out)
	}
}
