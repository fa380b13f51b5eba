package configprotocol

import (
	"context"
	"strings"

	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/functionblock"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/internal/telemetry"
	"github.com/daqkit/daqrun/serializer"
	"github.com/daqkit/daqrun/signal"
	"github.com/daqkit/daqrun/valuekernel"
)

// Dispatcher resolves component paths against a fixed root and executes one
// of the scoped remote-mirror commands against the resolved target, running
// every write through access.go's protect() walk first (§4.10).
//
// The tree exposes only *component.Component/*component.Folder, with no
// interface query analogous to the original's asPtrOrNull<T>
// (config_server_component.h), so commands needing a concrete domain type
// (signal connect/disconnect, function block add/remove/discovery) look the
// owning domain object up in a side registry keyed by component path
// instead; the composition root populates it as it builds the tree.
//
// Scope: the commands in commandTable are served, plus GetComponentConfig/
// SerializeForUpdate/Update, which render and apply a component's property
// values through the C2 tagged serialiser (componentConfig, §4.2/§6.2).
// GetInfo, GetTypeManager and GetSuggestedValues have no backing concept in
// this runtime (no Device, no per-property suggested-values list) and fall
// through lookupCommand's NotSupported branch.
type Dispatcher struct {
	Root        *component.Folder
	Registry    *functionblock.Registry
	FBCtx       *functionblock.Context
	TypeManager *coreobjects.TypeManager
	Bus         *coreevent.Bus

	ports   map[string]*signal.InputPort
	blocks  map[string]*functionblock.FunctionBlock
	signals map[string]*signal.Signal
}

// NewDispatcher builds a dispatcher over root; RegisterInputPort,
// RegisterFunctionBlock and RegisterSignal must be called by the
// composition root for every domain object a client should be able to
// target with a typed command. tm/bus are reused by server.go to build the
// throwaway input ports that tap a subscribed signal's packet stream.
func NewDispatcher(root *component.Folder, registry *functionblock.Registry, fbCtx *functionblock.Context, tm *coreobjects.TypeManager, bus *coreevent.Bus) *Dispatcher {
	return &Dispatcher{
		Root:        root,
		Registry:    registry,
		FBCtx:       fbCtx,
		TypeManager: tm,
		Bus:         bus,
		ports:       map[string]*signal.InputPort{},
		blocks:      map[string]*functionblock.FunctionBlock{},
		signals:     map[string]*signal.Signal{},
	}
}

// LookupSignal recovers the domain *signal.Signal registered at path, for
// server.go's Subscribe/Unsubscribe handling.
func (d *Dispatcher) LookupSignal(path string) (*signal.Signal, error) {
	s, ok := d.signals[path]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no signal registered at %q", path)
	}
	return s, nil
}

func (d *Dispatcher) RegisterInputPort(p *signal.InputPort)             { d.ports[p.GlobalID()] = p }
func (d *Dispatcher) RegisterFunctionBlock(fb *functionblock.FunctionBlock) { d.registerTree(fb) }
func (d *Dispatcher) RegisterSignal(s *signal.Signal)                   { d.signals[s.GlobalID()] = s }

// registerTree walks fb and everything nested under it, so a block added
// through AddFunctionBlock immediately exposes its own ports and signals
// to later commands without the caller having to know its shape.
func (d *Dispatcher) registerTree(fb *functionblock.FunctionBlock) {
	d.blocks[fb.GlobalID()] = fb
	for _, p := range fb.GetInputPorts(false) {
		d.RegisterInputPort(p)
	}
	for _, s := range fb.GetSignals(false) {
		d.RegisterSignal(s)
	}
	for _, child := range fb.GetFunctionBlocks(false) {
		d.registerTree(child)
	}
}

// ResolvePath walks the component tree from Root following a "/"-separated
// path (§6.2 "component-path-addressed"). An empty or "/" path resolves to
// Root itself.
func (d *Dispatcher) ResolvePath(path string) (*component.Component, error) {
	comp := d.Root.Component
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return comp, nil
	}
	cur := d.Root
	for _, seg := range strings.Split(trimmed, "/") {
		if cur == nil {
			return nil, daqerr.Newf(daqerr.NotFound, "component path %q does not resolve: %q is not a folder", path, comp.GlobalID())
		}
		child, err := cur.Item(seg)
		if err != nil {
			return nil, err
		}
		comp = child
		cur = child.AsFolder()
	}
	return comp, nil
}

// Execute resolves req's target, runs the command's access-control walk,
// then performs it. The returned value is whatever ReplyPayload.Result
// should carry; callers JSON-encode it directly.
func (d *Dispatcher) Execute(sess *Session, req RequestPayload) (interface{}, error) {
	ca, err := lookupCommand(req.Command)
	if err != nil {
		return nil, err
	}
	target, err := d.ResolvePath(req.ComponentPath)
	if err != nil {
		return nil, err
	}
	if err := protect(ca, target, sess); err != nil {
		return nil, err
	}

	rec := telemetry.NewRecorder(target.GlobalID(), "rpc")
	var result interface{}
	err = telemetry.Timed(context.Background(), rec, req.Command, func() error {
		var execErr error
		result, execErr = d.executeCommand(req.Command, target, req.Params)
		return execErr
	})
	return result, err
}

func (d *Dispatcher) executeCommand(command string, target *component.Component, params map[string]interface{}) (interface{}, error) {
	switch command {
	case "GetPropertyValue":
		return d.getPropertyValue(target, params)
	case "SetPropertyValue":
		return nil, d.setPropertyValue(target, params, false)
	case "SetProtectedPropertyValue":
		return nil, d.setPropertyValue(target, params, true)
	case "ClearPropertyValue":
		return nil, d.clearPropertyValue(target, params)
	case "GetSelectionValues":
		return d.getSelectionValues(target, params)
	case "CallProperty":
		return d.callProperty(target, params)
	case "BeginUpdate":
		target.BeginUpdate()
		return nil, nil
	case "EndUpdate":
		return nil, target.EndUpdate()
	case "SetAttributeValue":
		return nil, d.setAttributeValue(target, params)
	case "GetAvailableFunctionBlockTypes":
		return d.getAvailableFunctionBlockTypes(), nil
	case "AddFunctionBlock":
		return d.addFunctionBlock(target, params)
	case "RemoveFunctionBlock":
		return nil, d.removeFunctionBlock(target, params)
	case "ConnectSignal":
		return nil, d.connectSignal(target, params)
	case "DisconnectSignal":
		return nil, d.disconnectSignal(target)
	case "AcceptsSignal":
		return d.acceptsSignal(target)
	case "GetComponentConfig", "SerializeForUpdate":
		return serializer.SerializeRoot(&componentConfig{target: target}), nil
	case "Update":
		return nil, d.update(target, params)
	default:
		return nil, daqerr.Newf(daqerr.NotSupported, "command %q is not wired", command)
	}
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", daqerr.Newf(daqerr.InvalidParameter, "missing required parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", daqerr.Newf(daqerr.InvalidParameter, "parameter %q must be a string", key)
	}
	return s, nil
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	raw, ok := params[key]
	if !ok {
		return false, daqerr.Newf(daqerr.InvalidParameter, "missing required parameter %q", key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, daqerr.Newf(daqerr.InvalidParameter, "parameter %q must be a boolean", key)
	}
	return b, nil
}

func (d *Dispatcher) getPropertyValue(target *component.Component, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	v, err := target.GetPropertyValue(name)
	if err != nil {
		return nil, err
	}
	return valueToWire(v), nil
}

func (d *Dispatcher) setPropertyValue(target *component.Component, params map[string]interface{}, protected bool) error {
	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}
	v, err := wireToValue(params["value"])
	if err != nil {
		return err
	}
	if protected {
		return target.SetProtectedPropertyValue(name, v)
	}
	return target.SetPropertyValue(name, v)
}

// update applies a previously-serialised component config back onto target
// (§4.2 "update is distinct from full reconstruct"): the target already
// exists, so this goes through serializer.Update rather than a
// registry-backed Deserialize.
func (d *Dispatcher) update(target *component.Component, params map[string]interface{}) error {
	raw, ok := params["config"].(map[string]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidParameter, "missing required parameter \"config\"")
	}
	return serializer.Update(&componentConfig{target: target}, raw)
}

func (d *Dispatcher) clearPropertyValue(target *component.Component, params map[string]interface{}) error {
	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}
	return target.ClearPropertyValue(name)
}

// getSelectionValues returns a selection property's full candidate list
// (§4.3), not the currently resolved value; that is GetPropertyValue's job
// for a selection property.
func (d *Dispatcher) getSelectionValues(target *component.Component, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	p, err := target.Property(name)
	if err != nil {
		return nil, err
	}
	if p.Selection == nil {
		return nil, daqerr.Newf(daqerr.InvalidParameter, "property %q is not a selection property", name)
	}
	out := make([]interface{}, p.Selection.Len())
	for i := range out {
		v, err := p.Selection.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = valueToWire(v)
	}
	return out, nil
}

func (d *Dispatcher) callProperty(target *component.Component, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	rawArgs, _ := params["args"].([]interface{})
	args := make([]valuekernel.Value, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := wireToValue(raw)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	result, err := target.CallProperty(name, args)
	if err != nil {
		return nil, err
	}
	return valueToWire(result), nil
}

// setAttributeValue covers the handful of component attributes that sit
// outside the property-object path (§3.4): Name, Description, Visible and
// Active.
func (d *Dispatcher) setAttributeValue(target *component.Component, params map[string]interface{}) error {
	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}
	switch name {
	case "Name":
		s, err := stringParam(params, "value")
		if err != nil {
			return err
		}
		target.SetName(s)
	case "Description":
		s, err := stringParam(params, "value")
		if err != nil {
			return err
		}
		target.SetDescription(s)
	case "Visible":
		b, err := boolParam(params, "value")
		if err != nil {
			return err
		}
		target.SetVisible(b)
	case "Active":
		b, err := boolParam(params, "value")
		if err != nil {
			return err
		}
		target.SetActive(b)
	default:
		return daqerr.Newf(daqerr.InvalidParameter, "unknown attribute %q", name)
	}
	return nil
}

type functionBlockTypeWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (d *Dispatcher) getAvailableFunctionBlockTypes() []functionBlockTypeWire {
	infos := d.Registry.AvailableTypes()
	out := make([]functionBlockTypeWire, len(infos))
	for i, info := range infos {
		out[i] = functionBlockTypeWire{ID: info.ID, Name: info.Name, Description: info.Description}
	}
	return out
}

func (d *Dispatcher) addFunctionBlock(target *component.Component, params map[string]interface{}) (interface{}, error) {
	typeID, err := stringParam(params, "typeId")
	if err != nil {
		return nil, err
	}
	localID, err := stringParam(params, "localId")
	if err != nil {
		return nil, err
	}
	parent, ok := d.blocks[target.GlobalID()]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no function block registered at %q", target.GlobalID())
	}
	child, err := d.Registry.Create(d.FBCtx, typeID, localID, nil)
	if err != nil {
		return nil, err
	}
	if err := parent.AddFunctionBlock(child); err != nil {
		return nil, err
	}
	d.registerTree(child)
	return child.GlobalID(), nil
}

func (d *Dispatcher) removeFunctionBlock(target *component.Component, params map[string]interface{}) error {
	localID, err := stringParam(params, "localId")
	if err != nil {
		return err
	}
	parent, ok := d.blocks[target.GlobalID()]
	if !ok {
		return daqerr.Newf(daqerr.NotFound, "no function block registered at %q", target.GlobalID())
	}
	return parent.RemoveFunctionBlock(localID)
}

func (d *Dispatcher) connectSignal(target *component.Component, params map[string]interface{}) error {
	port, ok := d.ports[target.GlobalID()]
	if !ok {
		return daqerr.Newf(daqerr.NotFound, "no input port registered at %q", target.GlobalID())
	}
	signalPath, err := stringParam(params, "signalPath")
	if err != nil {
		return err
	}
	sigComp, err := d.ResolvePath(signalPath)
	if err != nil {
		return err
	}
	sig, ok := d.signals[sigComp.GlobalID()]
	if !ok {
		return daqerr.Newf(daqerr.NotFound, "no signal registered at %q", sigComp.GlobalID())
	}
	return port.Connect(sig)
}

func (d *Dispatcher) disconnectSignal(target *component.Component) error {
	port, ok := d.ports[target.GlobalID()]
	if !ok {
		return daqerr.Newf(daqerr.NotFound, "no input port registered at %q", target.GlobalID())
	}
	port.Disconnect()
	return nil
}

// acceptsSignal reports whether target (an input port) could accept a
// connection right now. Ports here have no descriptor-compatibility
// negotiation (§4.7 "Subscription" only requires the port be free), so the
// only refusal condition is an existing connection.
func (d *Dispatcher) acceptsSignal(target *component.Component) (interface{}, error) {
	port, ok := d.ports[target.GlobalID()]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no input port registered at %q", target.GlobalID())
	}
	return port.Signal() == nil, nil
}
