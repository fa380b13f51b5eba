package coreobjects

import (
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// Class describes a named property object class: the inherited property set
// plus an optional parent class name resolved linearly up the chain (C4).
type Class struct {
	Name       string
	Parent     string
	Properties []*Property
}

// StructType and EnumType register the shape of value-kernel Struct/Enum
// values so the serialiser and UI layers can validate field/member names.
type StructType struct {
	Name   string
	Fields []string
}

type EnumType struct {
	Name    string
	Members []string
}

// TypeManager is the process-wide (per-Context, per §9 "no hidden
// singletons") registry of classes, struct types, and enum types. All
// writes go through its mutex (§5 "Shared resources").
type TypeManager struct {
	mu      sync.Mutex
	classes map[string]*Class
	structs map[string]*StructType
	enums   map[string]*EnumType
	bus     *coreevent.Bus
}

func NewTypeManager(bus *coreevent.Bus) *TypeManager {
	return &TypeManager{
		classes: map[string]*Class{},
		structs: map[string]*StructType{},
		enums:   map[string]*EnumType{},
		bus:     bus,
	}
}

// AddClass registers a property object class. Types are added once;
// duplicate add fails with AlreadyExists (§4.4).
func (tm *TypeManager) AddClass(c *Class) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.classes[c.Name]; exists {
		return daqerr.Newf(daqerr.AlreadyExists, "class %q already registered", c.Name)
	}
	tm.classes[c.Name] = c
	if tm.bus != nil {
		tm.bus.Publish(coreevent.Event{ID: coreevent.TypeAdded, Name: "TypeAdded", Params: map[string]interface{}{"Type": c.Name}})
	}
	return nil
}

// RemoveClass fires TypeRemoved to the core-event bus with an empty sender,
// matching §4.4.
func (tm *TypeManager) RemoveClass(name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.classes[name]; !exists {
		return daqerr.Newf(daqerr.NotFound, "class %q not registered", name)
	}
	delete(tm.classes, name)
	if tm.bus != nil {
		tm.bus.Publish(coreevent.Event{ID: coreevent.TypeRemoved, Name: "TypeRemoved", Params: map[string]interface{}{"TypeName": name}})
	}
	return nil
}

// ResolvedProperties walks the parent chain and returns the merged property
// list, most-derived overriding least-derived by name, in declaration order.
func (tm *TypeManager) ResolvedProperties(className string) ([]*Property, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	chain, err := tm.chain(className)
	if err != nil {
		return nil, err
	}

	byName := map[string]*Property{}
	order := []string{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].Properties {
			if _, exists := byName[p.Name]; !exists {
				order = append(order, p.Name)
			}
			byName[p.Name] = p
		}
	}

	out := make([]*Property, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	return out, nil
}

func (tm *TypeManager) chain(className string) ([]*Class, error) {
	var chain []*Class
	seen := map[string]bool{}
	for className != "" {
		if seen[className] {
			return nil, daqerr.Newf(daqerr.InvalidState, "cyclic class inheritance at %q", className)
		}
		seen[className] = true

		c, ok := tm.classes[className]
		if !ok {
			return nil, daqerr.Newf(daqerr.NotFound, "class %q not registered", className)
		}
		chain = append(chain, c)
		className = c.Parent
	}
	return chain, nil
}

func (tm *TypeManager) AddStructType(s *StructType) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, exists := tm.structs[s.Name]; exists {
		return daqerr.Newf(daqerr.AlreadyExists, "struct type %q already registered", s.Name)
	}
	tm.structs[s.Name] = s
	return nil
}

func (tm *TypeManager) AddEnumType(e *EnumType) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, exists := tm.enums[e.Name]; exists {
		return daqerr.Newf(daqerr.AlreadyExists, "enum type %q already registered", e.Name)
	}
	tm.enums[e.Name] = e
	return nil
}

// ClassScriptLoader loads class property names from a Go snippet interpreted
// by traefik/yaegi, the same mechanism whitaker-io-machine/loader.go uses to
// load vertex symbols (Applicative/Fold/Fork) from a script at runtime. Here
// the loaded symbol is a `func() []string` returning the class's locally
// added property names, used by deployments that want to define simple
// classes without a Go build step.
type ClassScriptLoader struct {
	symbols interp.Exports
}

// NewClassScriptLoader builds a loader exposing the given extra symbol table
// (e.g. helpers to construct *Property values) alongside the Go standard
// library, mirroring loader.go's `i.Use(stdlib.Symbols); i.Use(symbols)`.
func NewClassScriptLoader(symbols interp.Exports) *ClassScriptLoader {
	return &ClassScriptLoader{symbols: symbols}
}

// LoadPropertyNames evaluates script and calls the named symbol, which must
// have the signature `func() []string`, returning the list of property
// names the script contributes to a class.
func (l *ClassScriptLoader) LoadPropertyNames(script, symbol string) ([]string, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, daqerr.Wrap(daqerr.GeneralError, err, "loading stdlib symbols")
	}
	if l.symbols != nil {
		if err := i.Use(l.symbols); err != nil {
			return nil, daqerr.Wrap(daqerr.GeneralError, err, "loading class-script symbols")
		}
	}

	if _, err := i.Eval(script); err != nil {
		return nil, daqerr.Wrap(daqerr.ParseFailed, err, "evaluating class script")
	}

	v, err := i.Eval(symbol)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.ResolveFailed, err, "resolving class script symbol")
	}

	fn, ok := v.Interface().(func() []string)
	if !ok {
		return nil, daqerr.Newf(daqerr.InvalidType, "symbol %q is not func() []string", symbol)
	}
	return fn(), nil
}
