// Package functionblock implements the function-block runtime (C8):
// property-object-backed blocks with standard IP/Sig/FB child folders,
// packet-arrival dispatch through a pluggable scheduler, and a type registry
// for instantiating built-ins and user modules by type id.
package functionblock

import (
	"github.com/sirupsen/logrus"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
)

// Scheduler posts work for NotifyScheduler input ports, mirroring the
// FIFO-vs-goroutine choice vertex.run makes per edge: Post may run fn inline,
// queue it on a worker pool, or hand it to any other execution strategy, so
// long as fn eventually runs.
type Scheduler interface {
	Post(fn func())
}

// InlineScheduler runs fn synchronously on the calling goroutine, the
// FIFO-true behaviour.
type InlineScheduler struct{}

func (InlineScheduler) Post(fn func()) { fn() }

// GoroutineScheduler spawns one goroutine per posted fn, the FIFO-false
// behaviour from vertex.run's `go v.handler(data)` branch.
type GoroutineScheduler struct{}

func (GoroutineScheduler) Post(fn func()) { go fn() }

// PoolScheduler bounds concurrency to a fixed number of worker goroutines
// draining a shared queue, for deployments where unbounded per-packet
// goroutines are undesirable.
type PoolScheduler struct {
	queue chan func()
}

// NewPoolScheduler starts workers goroutines pulling from an internal queue
// of the given depth.
func NewPoolScheduler(workers, queueDepth int) *PoolScheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	s := &PoolScheduler{queue: make(chan func(), queueDepth)}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *PoolScheduler) worker() {
	for fn := range s.queue {
		fn()
	}
}

func (s *PoolScheduler) Post(fn func()) { s.queue <- fn }

// Context bundles the services a function block needs at construction: a
// logger, a scheduler for packet-arrival dispatch, the shared type manager,
// the core-event bus, and the module registry used to instantiate nested
// blocks by type id (§4.8 "a context (logger + scheduler + type manager +
// module manager)").
type Context struct {
	Logger      *logrus.Logger
	Scheduler   Scheduler
	TypeManager *coreobjects.TypeManager
	Bus         *coreevent.Bus
	Modules     *Registry
}

// NewContext builds a context with sane defaults: a standard logrus logger
// and inline scheduling.
func NewContext(tm *coreobjects.TypeManager, bus *coreevent.Bus) *Context {
	return &Context{
		Logger:      logrus.StandardLogger(),
		Scheduler:   InlineScheduler{},
		TypeManager: tm,
		Bus:         bus,
		Modules:     NewRegistry(),
	}
}
