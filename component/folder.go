package component

import (
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// Folder is a component whose children are themselves components. An
// ElementInterface, if set, documents the narrower child type the folder is
// meant to hold (e.g. a folder of input ports); Add does not enforce it
// structurally since Go has no runtime interface-tag check beyond what the
// caller already typed, but InterfaceId search filters use it.
type Folder struct {
	*Component
	ElementInterface string

	order    []string
	children map[string]*Component
}

func NewFolder(localID, elementInterface string, tm *coreobjects.TypeManager, bus *coreevent.Bus) *Folder {
	f := &Folder{
		Component:        NewComponent(localID, tm, bus),
		ElementInterface: elementInterface,
		children:         map[string]*Component{},
	}
	f.Component.onActiveCascade = f.cascadeChildren
	f.Component.asFolder = f
	return f
}

// Add attaches child under the folder, rejecting duplicate localIds.
// ComponentAdded fires only after child's subtree active state is fully
// settled, so listeners observe a consistent tree (§4.6).
func (f *Folder) Add(child *Component) error {
	if _, exists := f.children[child.localID]; exists {
		return daqerr.Newf(daqerr.DuplicateItem, "child %q already exists in folder %q", child.localID, f.localID)
	}
	if err := child.attachTo(f.Component); err != nil {
		return err
	}
	// Descendants attached before child had a parent derived their globalIDs
	// from child's old path; re-derive them from the new one.
	var rederive func(c *Component)
	rederive = func(c *Component) {
		if c.asFolder == nil {
			return
		}
		for _, id := range c.asFolder.order {
			gc := c.asFolder.children[id]
			gc.globalID = joinPath(c.globalID, gc.localID)
			gc.PropertyObject.SetPath(gc.globalID)
			rederive(gc)
		}
	}
	rederive(child)

	f.children[child.localID] = child
	f.order = append(f.order, child.localID)

	child.cascadeActive()

	f.publish(coreevent.ComponentAdded, map[string]interface{}{"Component": child})
	return nil
}

// RemoveItem accepts either the child component or its local id. Removal
// tears the child's own subtree down bottom-up first (§4.5 "remove tears the
// subtree down bottom-up, releasing connections first").
func (f *Folder) RemoveItem(ref interface{}) error {
	var localID string
	switch t := ref.(type) {
	case string:
		localID = t
	case *Component:
		localID = t.localID
	default:
		return daqerr.Newf(daqerr.InvalidParameter, "RemoveItem expects a local id or *Component, got %T", ref)
	}

	child, exists := f.children[localID]
	if !exists {
		return daqerr.Newf(daqerr.NotFound, "no child %q in folder %q", localID, f.localID)
	}

	if child.asFolder != nil {
		for _, grandchildID := range append([]string(nil), child.asFolder.order...) {
			_ = child.asFolder.RemoveItem(grandchildID)
		}
	}

	delete(f.children, localID)
	for i, id := range f.order {
		if id == localID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}

	child.detach()
	f.publish(coreevent.ComponentRemoved, map[string]interface{}{"Id": localID})
	return nil
}

// Children returns the folder's direct children in insertion order.
func (f *Folder) Children() []*Component {
	out := make([]*Component, len(f.order))
	for i, id := range f.order {
		out[i] = f.children[id]
	}
	return out
}

func (f *Folder) Item(localID string) (*Component, error) {
	c, ok := f.children[localID]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no child %q in folder %q", localID, f.localID)
	}
	return c, nil
}

func (f *Folder) cascadeChildren(parentActive bool) {
	for _, child := range f.children {
		child.parentActive = parentActive
		child.cascadeActive()
	}
}

func (f *Folder) publish(id coreevent.ID, params map[string]interface{}) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(coreevent.Event{ID: id, Sender: f.Component, Params: params})
}
