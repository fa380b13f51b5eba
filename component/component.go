// Package component implements the hierarchical component tree (C5):
// global-path identity, active/parentActive cascade, locking strategy
// resolution, tag/permission inheritance, and the composable search filter
// used to walk folders.
package component

import (
	"strings"
	"sync"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

// Component is a property object plus the identity, lifecycle, and
// tree-structural state every node in the component tree carries (§3.4).
type Component struct {
	*coreobjects.PropertyObject

	localID     string
	name        string
	description string
	globalID    string
	attached    bool

	localActive  bool
	parentActive bool

	visible bool
	tags    *valuekernel.Set

	permissions  PermissionTable
	lockStrategy LockStrategy
	ownMutex     sync.Mutex

	parent *Component
	bus    *coreevent.Bus

	// onActiveCascade is set by Folder's constructor to push parentActive
	// onto children; plain leaf components leave it nil. Go has no virtual
	// dispatch through an embedded pointer, so this stands in for it.
	onActiveCascade func(active bool)

	// asFolder lets code holding a bare *Component recover the owning
	// *Folder when the component happens to be one (e.g. for recursive
	// removal); nil for leaf components.
	asFolder *Folder
}

// NewComponent creates a detached component. It starts localActive=true,
// parentActive=false (consistent with "created detached", §3.6); Attach
// flips parentActive according to the new parent's observable Active().
func NewComponent(localID string, tm *coreobjects.TypeManager, bus *coreevent.Bus) *Component {
	c := &Component{
		localID:      localID,
		name:         localID,
		visible:      true,
		localActive:  true,
		parentActive: false,
		tags:         valuekernel.NewSet(valuekernel.IfaceList),
		lockStrategy: OwnLock,
		bus:          bus,
	}
	c.PropertyObject = coreobjects.NewPropertyObject("", tm, bus, c)
	return c
}

func (c *Component) LocalID() string  { return c.localID }
func (c *Component) GlobalID() string { return c.globalID }

// Bus returns the shared core-event bus this component publishes to, so
// owning packages (signal, functionblock) can emit events outside the
// property-write path without each needing their own Context handle.
func (c *Component) Bus() *coreevent.Bus { return c.bus }

func (c *Component) Name() string {
	if c.name != "" {
		return c.name
	}
	return c.localID
}

func (c *Component) SetName(name string)               { c.name = name }
func (c *Component) Description() string                { return c.description }
func (c *Component) SetDescription(description string)  { c.description = description }
func (c *Component) Visible() bool                      { return c.visible }
func (c *Component) SetVisible(v bool)                  { c.visible = v }
func (c *Component) Parent() *Component                 { return c.parent }

// Tags returns the immutable tag set; use AddTag/RemoveTag to mutate
// (§3.4 "exposed immutable with a private mutator").
func (c *Component) Tags() *valuekernel.Set { return c.tags }

func (c *Component) AddTag(tag string) error {
	if err := c.tags.Add(valuekernel.NewString(tag)); err != nil {
		return err
	}
	c.publishTagsChanged()
	return nil
}

func (c *Component) RemoveTag(tag string) error {
	if err := c.tags.Remove(valuekernel.NewString(tag)); err != nil {
		return err
	}
	c.publishTagsChanged()
	return nil
}

func (c *Component) publishTagsChanged() {
	if c.bus == nil {
		return
	}
	c.bus.Publish(coreevent.Event{ID: coreevent.TagsChanged, Sender: c, Params: map[string]interface{}{"Tags": c.tags.SortedKeys()}})
}

// EventsEnabled implements coreevent.Sender: events are dropped while the
// component is inactive (§4.6 "Trigger policy").
func (c *Component) EventsEnabled() bool { return c.Active() }

// Active is the AND of this component's own intention and every ancestor's,
// per §3.4's "observable active" rule.
func (c *Component) Active() bool { return c.localActive && (c.parent == nil || c.parentActive) }

// SetActive sets this component's own intention and cascades parentActive
// onto the whole subtree (§3.4 "Active cascade").
func (c *Component) SetActive(active bool) {
	c.localActive = active
	c.cascadeActive()
}

func (c *Component) cascadeActive() {
	if c.onActiveCascade != nil {
		c.onActiveCascade(c.Active())
	}
}

// LockStrategy/SetLockStrategy expose the resolution strategy; changing it
// takes effect on the next Lock/Unlock call, which re-resolves the mutex.
func (c *Component) LockStrategy() LockStrategy          { return c.lockStrategy }
func (c *Component) SetLockStrategy(s LockStrategy)      { c.lockStrategy = s }

// attachTo links c under parent, derives its globalID, and sets its initial
// parentActive. It does not itself enable the subtree or fire ComponentAdded
// — the owning Folder.Add does that after calling attachTo, so the event
// reflects the now-consistent enabled state (§4.6).
func (c *Component) attachTo(parent *Component) error {
	if c.attached {
		return daqerr.New(daqerr.InvalidState, "component already attached")
	}
	c.parent = parent
	c.parentActive = parent.Active()
	c.globalID = joinPath(parent.globalID, c.localID)
	c.PropertyObject.SetPath(c.globalID)
	c.attached = true
	return nil
}

func joinPath(parentPath, localID string) string {
	if parentPath == "" || parentPath == "/" {
		return "/" + localID
	}
	return strings.TrimRight(parentPath, "/") + "/" + localID
}

// detach tears down identity and cascades inert state; Remove (on Folder)
// calls this bottom-up across the subtree so no component outlives its
// parent's structural removal (§3.6).
func (c *Component) detach() {
	c.parentActive = false
	c.localActive = false
	c.attached = false
	c.globalID = ""
	c.PropertyObject.SetPath("")
	c.parent = nil
}

func (c *Component) IsAttached() bool { return c.attached }

// AsFolder recovers the owning *Folder when c happens to be one, for callers
// (the remote-mirror RPC path resolver, §4.10) that only hold a bare
// *Component and need to keep descending a component path. Returns nil for
// leaf components.
func (c *Component) AsFolder() *Folder { return c.asFolder }
