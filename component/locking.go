package component

import "sync"

// LockStrategy selects how a component resolves the mutex it locks on
// property writes and structural changes (§3.4 "Locking strategy").
type LockStrategy int

const (
	// OwnLock: the component owns its own mutex. It is a plain sync.Mutex
	// and is not re-entrant: locking it again from the same goroutine
	// before Unlock blocks.
	OwnLock LockStrategy = iota
	// InheritLock: resolves to the nearest ancestor's mutex.
	InheritLock
	// ForwardOwnerLockOwn: owns its own mutex, but descendants that inherit
	// fall through to the root owner's mutex, not this component's.
	ForwardOwnerLockOwn
)

// resolveLock walks ancestors to find the *sync.Mutex this component should
// lock, per its LockStrategy. It runs on every Lock/Unlock call; nothing
// caches its result at attach time.
func (c *Component) resolveLock() *sync.Mutex {
	switch c.lockStrategy {
	case OwnLock, ForwardOwnerLockOwn:
		return &c.ownMutex
	case InheritLock:
		for p := c.parent; p != nil; p = p.parent {
			if p.lockStrategy == OwnLock {
				return &p.ownMutex
			}
			if p.lockStrategy == ForwardOwnerLockOwn {
				// ForwardOwnerLockOwn forwards inheriting descendants to the
				// root owner, i.e. keep walking past it looking for the
				// outermost OwnLock/ForwardOwnerLockOwn ancestor.
				root := p
				for gp := p.parent; gp != nil; gp = gp.parent {
					if gp.lockStrategy == OwnLock || gp.lockStrategy == ForwardOwnerLockOwn {
						root = gp
					}
				}
				return &root.ownMutex
			}
		}
		return &c.ownMutex
	default:
		return &c.ownMutex
	}
}

// Lock/Unlock take the resolved mutex. Re-resolution on every call keeps
// strategy changes (rare, attach-time) correct without a cached pointer that
// could dangle after a reparent.
func (c *Component) Lock()   { c.resolveLock().Lock() }
func (c *Component) Unlock() { c.resolveLock().Unlock() }
