package coreobjects

import (
	"strconv"
	"strings"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects/eval"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

// PropertyObject is a reflective bag of named, typed values backed by a
// class's inherited property list plus any locally added properties (§4.3).
// It implements eval.PropertyOwner so EvalValue expressions (coercers,
// validators, reference properties) can resolve `%name` against it.
type PropertyObject struct {
	className   string
	typeManager *TypeManager
	bus         *coreevent.Bus
	sender      coreevent.Sender
	path        string

	local map[string]*Property // properties added directly on this instance
	order []string              // local property declaration order

	values  map[string]valuekernel.Value // stored overrides
	pending map[string]valuekernel.Value // buffered while updateDepth > 0

	children map[string]*PropertyObject // nested object-type properties

	frozen      bool
	locked      bool
	remoteUpdate bool
	updateDepth int
}

// NewPropertyObject creates a detached property object of the given class.
// bus/sender may be nil for objects not wired into the component tree yet.
func NewPropertyObject(className string, tm *TypeManager, bus *coreevent.Bus, sender coreevent.Sender) *PropertyObject {
	return &PropertyObject{
		className:   className,
		typeManager: tm,
		bus:         bus,
		sender:      sender,
		local:       map[string]*Property{},
		values:      map[string]valuekernel.Value{},
		pending:     map[string]valuekernel.Value{},
		children:    map[string]*PropertyObject{},
	}
}

// AddProperty adds a property directly to this instance (as opposed to via
// its class). Duplicate names fail with AlreadyExists; success fires
// PropertyAdded.
func (o *PropertyObject) AddProperty(p *Property) error {
	if _, exists := o.local[p.Name]; exists {
		return daqerr.Newf(daqerr.AlreadyExists, "property %q already exists", p.Name)
	}
	o.local[p.Name] = p
	o.order = append(o.order, p.Name)
	o.publish(coreevent.PropertyAdded, map[string]interface{}{"Owner": o, "Property": p, "Path": o.path})
	return nil
}

// AddChildObject registers a nested PropertyObject so dotted paths can
// descend into it (§4.3 step 1, "child.child.prop").
func (o *PropertyObject) AddChildObject(name string, child *PropertyObject) {
	o.children[name] = child
}

// Freeze marks the object immutable; writes after this point fail with
// Frozen (§4.1, §4.3 step 3).
func (o *PropertyObject) Freeze()        { o.frozen = true }
func (o *PropertyObject) IsFrozen() bool { return o.frozen }

// SetLocked gates write access and non-const callable invocation the way a
// locked component does (§4.3 "Callable properties", §8 invariant 10). Named
// distinctly from sync.Locker's Lock/Unlock, which component.Component's own
// mutex-strategy methods already use for a different purpose (§3.4).
func (o *PropertyObject) SetLocked(v bool)  { o.locked = v }
func (o *PropertyObject) IsLocked() bool    { return o.locked }

// SetRemoteUpdate implements serializer.Updatable: while set, writes to
// normally read-only attributes are accepted (§4.2).
func (o *PropertyObject) SetRemoteUpdate(v bool) { o.remoteUpdate = v }

func (o *PropertyObject) GlobalID() string    { return o.path }

// SetPath lets an owning component (which derives the authoritative global
// path at attach time) keep this object's Path in step, since PropertyObject
// itself has no notion of tree position.
func (o *PropertyObject) SetPath(path string) { o.path = path }
func (o *PropertyObject) EventsEnabled() bool { return o.sender == nil || o.sender.EventsEnabled() }

func (o *PropertyObject) publish(id coreevent.ID, params map[string]interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(coreevent.Event{ID: id, Sender: o, Params: params})
}

// Property exposes metadata lookup by name, used by callers that overlay one
// property object's definitions onto another (e.g. a function block copying
// its type's default config onto the instance, §4.8).
func (o *PropertyObject) Property(name string) (*Property, error) {
	return o.property(name)
}

// PropertyNames returns every property name visible on this object, local
// declarations first in order followed by resolved class properties.
func (o *PropertyObject) PropertyNames() []string {
	names, _ := o.EvalPropertyNames()
	return names
}

// property looks up metadata by name: local first, then the resolved class
// chain.
func (o *PropertyObject) property(name string) (*Property, error) {
	if p, ok := o.local[name]; ok {
		return p, nil
	}
	if o.typeManager != nil && o.className != "" {
		props, err := o.typeManager.ResolvedProperties(o.className)
		if err == nil {
			for _, p := range props {
				if p.Name == name {
					return p, nil
				}
			}
		}
	}
	return nil, daqerr.Newf(daqerr.NotFound, "no such property %q", name)
}

// splitPath implements §4.3 step 1: walk dotted segments through child
// objects as far as possible; the remainder is the leaf name, optionally
// carrying a `[i]` index.
func (o *PropertyObject) splitPath(path string) (owner *PropertyObject, leaf string, index int, hasIndex bool, err error) {
	segments := strings.Split(path, ".")
	owner = o
	for i, seg := range segments {
		if i == len(segments)-1 {
			leaf, index, hasIndex, err = parseIndex(seg)
			return owner, leaf, index, hasIndex, err
		}
		child, ok := owner.children[seg]
		if !ok {
			return nil, "", 0, false, daqerr.Newf(daqerr.NotFound, "no nested object %q in path %q", seg, path)
		}
		owner = child
	}
	return owner, path, 0, false, nil
}

func parseIndex(seg string) (name string, index int, hasIndex bool, err error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 0, false, nil
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0, false, daqerr.Newf(daqerr.InvalidParameter, "malformed indexed property %q", seg)
	}
	idxStr := seg[open+1 : len(seg)-1]
	idx, convErr := strconv.Atoi(idxStr)
	if convErr != nil {
		return "", 0, false, daqerr.Newf(daqerr.InvalidParameter, "non-numeric index in %q", seg)
	}
	return seg[:open], idx, true, nil
}

// resolveReference follows a reference property's target, returning the
// owner/property name it ultimately delegates to (possibly itself, if p is
// not a reference property).
func (o *PropertyObject) resolveReference(p *Property) (*PropertyObject, *Property, error) {
	target, isRef := p.referenceTarget()
	if !isRef {
		return o, p, nil
	}
	targetProp, err := o.property(target)
	if err != nil {
		return nil, nil, daqerr.Wrap(daqerr.ResolveFailed, err, "resolving reference property")
	}
	return o.resolveReference(targetProp)
}

// SetPropertyValue implements the §4.3 write path for a (possibly dotted,
// possibly indexed) path.
func (o *PropertyObject) SetPropertyValue(path string, value valuekernel.Value) error {
	return o.setPropertyValue(path, value, false)
}

// SetProtectedPropertyValue is the protected entry point that may write
// read-only properties (§4.3 step 4).
func (o *PropertyObject) SetProtectedPropertyValue(path string, value valuekernel.Value) error {
	return o.setPropertyValue(path, value, true)
}

func (o *PropertyObject) setPropertyValue(path string, value valuekernel.Value, protected bool) error {
	owner, leaf, idx, hasIndex, err := o.splitPath(path)
	if err != nil {
		return err
	}

	p, err := owner.property(leaf)
	if err != nil {
		return err
	}

	refOwner, refProp, err := owner.resolveReference(p)
	if err != nil {
		return err
	}
	owner, p = refOwner, refProp

	if owner.frozen {
		return daqerr.Newf(daqerr.Frozen, "object is frozen, cannot set %q", leaf)
	}
	if owner.locked && !owner.remoteUpdate {
		return daqerr.Newf(daqerr.AccessDenied, "component is locked, cannot set %q", leaf)
	}
	if p.ReadOnly && !protected && !owner.remoteUpdate {
		return daqerr.Newf(daqerr.AccessDenied, "property %q is read-only", p.Name)
	}

	if p.Coercer != nil {
		coerced, evalErr := p.Coercer.Eval(owner)
		if evalErr != nil {
			return daqerr.Wrap(daqerr.CoercionFailed, evalErr, "coercing "+p.Name)
		}
		if cv, ok := coerced.(valuekernel.Value); ok {
			value = cv
		}
	}

	if p.Validator != nil {
		ok, evalErr := p.Validator.EvalBool(owner)
		if evalErr != nil {
			return daqerr.Wrap(daqerr.ValidateFailed, evalErr, "validating "+p.Name)
		}
		if !ok {
			return daqerr.Newf(daqerr.ValidateFailed, "value rejected for property %q", p.Name)
		}
	}

	if hasIndex {
		elementType := &Property{Name: p.Name, ValueType: p.ElementType}
		typed, err := checkType(elementType, value)
		if err != nil {
			return err
		}

		current, hasErr := owner.rawValue(p)
		if hasErr != nil {
			return hasErr
		}
		list, ok := current.(*valuekernel.List)
		if !ok {
			return daqerr.Newf(daqerr.InvalidType, "property %q is not a list, cannot index", p.Name)
		}
		if err := list.Set(idx, typed); err != nil {
			return err
		}
		value = list
	} else {
		typed, err := checkType(p, value)
		if err != nil {
			return err
		}
		value = typed
	}

	existing, hasExisting := owner.values[p.Name]
	if hasExisting && existing.Equals(value) {
		return daqerr.Of(daqerr.Ignored)
	}

	if owner.updateDepth > 0 {
		owner.pending[p.Name] = value
		return nil
	}

	if p.OnWrite != nil {
		if err := p.OnWrite(owner, value); err != nil {
			return err
		}
	}

	owner.values[p.Name] = value
	owner.publish(coreevent.PropertyValueChanged, map[string]interface{}{
		"Owner": owner, "Name": p.Name, "Value": value, "Path": owner.path,
	})
	return nil
}

func checkType(p *Property, v valuekernel.Value) (valuekernel.Value, error) {
	if p.ValueType == valuekernel.CoreUndefined {
		return v, nil
	}
	if v.CoreType() == p.ValueType {
		return v, nil
	}
	if valuekernel.IsNumeric(p.ValueType) && valuekernel.IsNumeric(v.CoreType()) && valuekernel.CanWiden(v.CoreType(), p.ValueType) {
		switch p.ValueType {
		case valuekernel.CoreFloat:
			return valuekernel.ConvertToFloat(v)
		case valuekernel.CoreComplex:
			return valuekernel.ConvertToComplex(v)
		}
	}
	return nil, daqerr.Newf(daqerr.InvalidType, "property expects %s, got %s", p.ValueType, v.CoreType())
}

func (o *PropertyObject) rawValue(p *Property) (valuekernel.Value, error) {
	if v, ok := o.pending[p.Name]; ok {
		return v, nil
	}
	if v, ok := o.values[p.Name]; ok {
		return v, nil
	}
	if p.Default != nil {
		return p.Default(), nil
	}
	return nil, daqerr.Newf(daqerr.NotFound, "property %q has no value", p.Name)
}

// GetPropertyValue implements the §4.3 read path, applying OnRead
// substitution when present.
func (o *PropertyObject) GetPropertyValue(path string) (valuekernel.Value, error) {
	owner, leaf, idx, hasIndex, err := o.splitPath(path)
	if err != nil {
		return nil, err
	}

	p, err := owner.property(leaf)
	if err != nil {
		return nil, err
	}
	owner, p, err = owner.resolveReference(p)
	if err != nil {
		return nil, err
	}

	v, err := owner.rawValue(p)
	if err != nil {
		return nil, err
	}

	if hasIndex {
		list, ok := v.(*valuekernel.List)
		if !ok {
			return nil, daqerr.Newf(daqerr.InvalidType, "property %q is not a list, cannot index", p.Name)
		}
		v, err = list.Get(idx)
		if err != nil {
			return nil, err
		}
	}

	if p.OnRead != nil {
		return p.OnRead(owner, v)
	}
	return v, nil
}

// GetPropertySelectionValue resolves the stored index/key of a selection
// property against its candidate list (§4.3 "Read path").
func (o *PropertyObject) GetPropertySelectionValue(path string) (valuekernel.Value, error) {
	owner, leaf, _, _, err := o.splitPath(path)
	if err != nil {
		return nil, err
	}
	p, err := owner.property(leaf)
	if err != nil {
		return nil, err
	}
	if p.Selection == nil {
		return nil, daqerr.Newf(daqerr.InvalidParameter, "property %q is not a selection property", p.Name)
	}

	stored, err := owner.rawValue(p)
	if err != nil {
		return nil, err
	}

	switch idxVal := stored.(type) {
	case *valuekernel.Int:
		return p.Selection.Get(int(idxVal.V))
	default:
		return nil, daqerr.Newf(daqerr.InvalidType, "selection property %q does not hold an index", p.Name)
	}
}

// CallProperty invokes a func/proc-valued property (§4.3 "Callable
// properties"). A const callable may run on a locked object; a non-const
// callable on a locked object is refused (§8 invariant 10).
func (o *PropertyObject) CallProperty(path string, args []valuekernel.Value) (valuekernel.Value, error) {
	owner, leaf, _, _, err := o.splitPath(path)
	if err != nil {
		return nil, err
	}
	p, err := owner.property(leaf)
	if err != nil {
		return nil, err
	}
	if !p.Callable {
		return nil, daqerr.Newf(daqerr.InvalidParameter, "property %q is not callable", p.Name)
	}
	if owner.locked && !p.Const {
		return nil, daqerr.Newf(daqerr.AccessDenied, "component is locked, cannot call non-const property %q", p.Name)
	}

	v, err := owner.rawValue(p)
	if err != nil {
		return nil, err
	}
	callable, ok := v.(*valuekernel.Callable)
	if !ok {
		return nil, daqerr.Newf(daqerr.InvalidType, "property %q does not hold a callable", p.Name)
	}
	return callable.Invoke(args)
}

// ClearPropertyValue removes a stored override, reverting reads to the
// property's default and firing PropertyValueChanged with that default
// (§4.3 "Clear").
func (o *PropertyObject) ClearPropertyValue(path string) error {
	owner, leaf, _, _, err := o.splitPath(path)
	if err != nil {
		return err
	}
	p, err := owner.property(leaf)
	if err != nil {
		return err
	}
	owner, p, err = owner.resolveReference(p)
	if err != nil {
		return err
	}

	delete(owner.values, p.Name)
	delete(owner.pending, p.Name)
	if name, isObj := p.Name, p.ValueType == valuekernel.CoreObject; isObj {
		delete(owner.children, name)
	}

	var def valuekernel.Value
	if p.Default != nil {
		def = p.Default()
	}
	owner.publish(coreevent.PropertyValueChanged, map[string]interface{}{
		"Owner": owner, "Name": p.Name, "Value": def, "Path": owner.path,
	})
	return nil
}

// BeginUpdate starts (or nests) a batch: writes made while updateDepth > 0
// are buffered in pending rather than applied live (§4.3 step 8).
func (o *PropertyObject) BeginUpdate() { o.updateDepth++ }

// EndUpdate flushes the pending set: each changed property is written and
// fires its own PropertyValueChanged, in a deterministic (declaration)
// order, followed by exactly one PropertyObjectUpdateEnd carrying the whole
// batch (§4.6 id 10).
func (o *PropertyObject) EndUpdate() error {
	if o.updateDepth == 0 {
		return daqerr.New(daqerr.InvalidState, "EndUpdate without matching BeginUpdate")
	}
	o.updateDepth--
	if o.updateDepth > 0 {
		return nil
	}

	pending := o.pending
	o.pending = map[string]valuekernel.Value{}

	updated := map[string]interface{}{}
	for _, name := range o.orderedPendingNames(pending) {
		value := pending[name]
		p, err := o.property(name)
		if err != nil {
			continue
		}
		if p.OnWrite != nil {
			if err := p.OnWrite(o, value); err != nil {
				return err
			}
		}
		o.values[name] = value
		updated[name] = value
		o.publish(coreevent.PropertyValueChanged, map[string]interface{}{
			"Owner": o, "Name": name, "Value": value, "Path": o.path,
		})
	}

	if len(updated) > 0 {
		o.publish(coreevent.PropertyObjectUpdateEnd, map[string]interface{}{
			"Owner": o, "UpdatedProperties": updated, "Path": o.path,
		})
	}
	return nil
}

// orderedPendingNames returns pending's keys in local-declaration order
// followed by class-inherited names in resolved-class order, for a
// deterministic flush order.
func (o *PropertyObject) orderedPendingNames(pending map[string]valuekernel.Value) []string {
	seen := map[string]bool{}
	var out []string
	names, _ := o.EvalPropertyNames()
	for _, name := range names {
		if _, ok := pending[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for name := range pending {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

// EvalPropertyValue/EvalSelectedValue/EvalPropertyNames implement
// eval.PropertyOwner so Coercer/Validator expressions on this object can
// reference `%name`, `name:selectedValue`, `name:propertyNames`.
func (o *PropertyObject) EvalPropertyValue(name string) (interface{}, error) {
	return o.GetPropertyValue(name)
}

func (o *PropertyObject) EvalSelectedValue(name string) (interface{}, error) {
	return o.GetPropertySelectionValue(name)
}

func (o *PropertyObject) EvalPropertyNames() ([]string, error) {
	names := append([]string{}, o.order...)
	if o.typeManager != nil && o.className != "" {
		props, err := o.typeManager.ResolvedProperties(o.className)
		if err == nil {
			for _, p := range props {
				names = append(names, p.Name)
			}
		}
	}
	return names, nil
}

var _ eval.PropertyOwner = (*PropertyObject)(nil)
