package configprotocol

import (
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/serializer"
	"github.com/daqkit/daqrun/valuekernel"
)

// valueRegistry decodes the tagged-map branch of wireToValue: a client that
// cannot express a value in the bare bool/number/string wire form (Complex,
// Range, Binary, List, Dict, Struct, Enum) sends valuekernel.Serialize's
// {"__type": ..., ...} shape instead, and this registry is what turns that
// back into a concrete value-kernel object (§4.2, §8 invariant 5).
var valueRegistry = mustValueRegistry()

func mustValueRegistry() *serializer.Registry {
	r := serializer.NewRegistry()
	if err := serializer.RegisterValueKernelFactories(r); err != nil {
		panic(err)
	}
	return r
}

// wireToValue and valueToWire bridge valuekernel.Value and the plain
// interface{} a JSON request/reply payload carries. bool/number/string stay
// in their bare wire form for client ergonomics; anything else round-trips
// through the tagged C2 serialiser form so no value-kernel type is lossy or
// write-only over the wire.
func wireToValue(raw interface{}) (valuekernel.Value, error) {
	switch v := raw.(type) {
	case nil:
		return valuekernel.NewUndefined(), nil
	case bool:
		return valuekernel.NewBool(v), nil
	case string:
		return valuekernel.NewString(v), nil
	case float64:
		if v == float64(int64(v)) {
			return valuekernel.NewInt(int64(v)), nil
		}
		return valuekernel.NewFloat(v), nil
	case map[string]interface{}:
		s, err := valueRegistry.Deserialize(v)
		if err != nil {
			return nil, daqerr.Wrap(daqerr.InvalidType, err, "cannot decode tagged wire value")
		}
		vk, ok := s.(valuekernel.Value)
		if !ok {
			return nil, daqerr.Newf(daqerr.InvalidType, "decoded %T is not a value-kernel value", s)
		}
		return vk, nil
	default:
		return nil, daqerr.Newf(daqerr.InvalidType, "cannot convert wire value of type %T to a property value", raw)
	}
}

func valueToWire(v valuekernel.Value) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case *valuekernel.Bool:
		return t.V
	case *valuekernel.Int:
		return t.V
	case *valuekernel.Float:
		return t.V
	case *valuekernel.String:
		return t.V
	case *valuekernel.Undefined:
		return nil
	default:
		return valuekernel.Serialize(v)
	}
}
