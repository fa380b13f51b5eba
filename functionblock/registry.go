package functionblock

import (
	"sort"
	"sync"

	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/internal/daqerr"
)

// Factory constructs a function block of one type id. config may be nil,
// meaning "use the type's defaults unmodified".
type Factory func(ctx *Context, localID string, config *coreobjects.PropertyObject) (*FunctionBlock, error)

// TypeInfo describes one registered type for discovery
// (GetAvailableFunctionBlockTypes, §4.10).
type TypeInfo struct {
	ID          string
	Name        string
	Description string
}

// Registry is the module manager's type-factory table (§4.8 "a context ...
// + module manager").
type Registry struct {
	mu      sync.Mutex
	infos   map[string]TypeInfo
	makers  map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{infos: map[string]TypeInfo{}, makers: map[string]Factory{}}
}

// Register adds or replaces a type's factory.
func (r *Registry) Register(info TypeInfo, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[info.ID] = info
	r.makers[info.ID] = factory
}

// AvailableTypes returns every registered type, sorted by id for a stable
// listing (backs GetAvailableFunctionBlockTypes over RPC).
func (r *Registry) AvailableTypes() []TypeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TypeInfo, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create instantiates typeID with the given local id and optional user
// config overlay.
func (r *Registry) Create(ctx *Context, typeID, localID string, config *coreobjects.PropertyObject) (*FunctionBlock, error) {
	r.mu.Lock()
	factory, ok := r.makers[typeID]
	r.mu.Unlock()
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no function block type registered for %q", typeID)
	}
	return factory(ctx, localID, config)
}
