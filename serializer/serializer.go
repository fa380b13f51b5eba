// Package serializer implements the tagged, versioned, self-describing
// serialisation of value-kernel objects (C2). It mirrors the
// toMap/fromMap + MarshalJSON/UnmarshalJSON split the teacher uses for
// StreamSerialization/VertexSerialization
// (whitaker-io-machine/loader.serialization.go): every tagged object nests
// its JSON rendering through a toMap-style visitor rather than relying on
// struct tags, because the same toMap output is replayed for both
// Deserialize (factory-constructed) and Update (in-place, identity
// preserving) paths.
package serializer

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

// CurrentVersion is the serialiser version this build writes. Readers
// negotiate by inspecting "__version" on the root object (§4.2/§6.3).
const CurrentVersion = 2

// Serializable is implemented by anything that can render itself into the
// tagged map shape and be told to overwrite its state from one.
type Serializable interface {
	// TypeID is the "__type" tag written on serialisation and used to look
	// up a Factory on deserialisation.
	TypeID() string
	// ToMap renders the object's own fields into m, the way
	// StreamSerialization.toMap does, so Marshal{JSON,YAML} and Update share
	// one code path.
	ToMap(m map[string]interface{})
	// FromMap applies m onto the object in place, preserving identity. Used
	// by both Deserialize (on a freshly constructed object) and Update (on
	// a live one).
	FromMap(m map[string]interface{}) error
}

// Updatable is implemented by objects that accept partial overwrites of
// normally-locked attributes when told the request came from a remote
// mirror (§4.2 "Components honour RemoteUpdate").
type Updatable interface {
	Serializable
	SetRemoteUpdate(bool)
}

// Factory constructs a zero-value Serializable for a given "__type" tag.
type Factory func() Serializable

// Registry maps "__type" tags to factories, the deserialisation-side
// counterpart of loader.go's symbol lookup.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory for typeID. Re-registering the same typeID is
// treated as AlreadyExists, matching the type manager's "added once"
// contract (§4.4), since a serialiser registry is itself one.
func (r *Registry) Register(typeID string, f Factory) error {
	if _, exists := r.factories[typeID]; exists {
		return daqerr.Newf(daqerr.AlreadyExists, "type %q already registered", typeID)
	}
	r.factories[typeID] = f
	return nil
}

func (r *Registry) lookup(typeID string) (Factory, error) {
	f, ok := r.factories[typeID]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "unknown __type %q", typeID)
	}
	return f, nil
}

// Serialize renders v as a "__type"-tagged map with the current version
// stamped on the root.
func Serialize(v Serializable) map[string]interface{} {
	m := map[string]interface{}{"__type": v.TypeID()}
	v.ToMap(m)
	return m
}

// SerializeRoot is Serialize plus the "__version" the wire/persisted form
// requires on the outermost object (§6.3).
func SerializeRoot(v Serializable) map[string]interface{} {
	m := Serialize(v)
	m["__version"] = CurrentVersion
	return m
}

// Deserialize constructs a new object via r's factory looked up by
// m["__type"], then calls FromMap on it. A missing key, unknown type id, or
// shape mismatch during FromMap surfaces as a distinct non-fatal error; the
// caller decides whether to abort (§4.2).
func (r *Registry) Deserialize(m map[string]interface{}) (Serializable, error) {
	typeID, ok := m["__type"].(string)
	if !ok {
		return nil, daqerr.New(daqerr.InvalidValue, "missing or non-string __type")
	}

	factory, err := r.lookup(typeID)
	if err != nil {
		return nil, err
	}

	obj := factory()
	if err := obj.FromMap(m); err != nil {
		return nil, err
	}
	return obj, nil
}

// Update applies m onto an existing object in place, preserving identity,
// rather than constructing a new one. On FromMap failure the target is
// restored by re-applying a snapshot of its own ToMap output taken before
// the attempt, and InvalidValue is returned (§7 "Fatal" policy).
func Update(target Serializable, m map[string]interface{}) error {
	if typeID, ok := m["__type"].(string); ok && typeID != target.TypeID() {
		return daqerr.Newf(daqerr.InvalidValue, "type mismatch: target is %q, update is %q", target.TypeID(), typeID)
	}
	before := Serialize(target)
	if err := target.FromMap(m); err != nil {
		_ = target.FromMap(before)
		return daqerr.Wrap(daqerr.InvalidValue, err, "update failed, target left unchanged")
	}
	return nil
}

// MarshalJSON renders v's tagged map as JSON, the json.Marshaler-based
// pattern from loader.serialization.go's MarshalJSON.
func MarshalJSON(v Serializable) ([]byte, error) {
	return json.Marshal(Serialize(v))
}

// UnmarshalJSON decodes b into a map and applies it onto target via FromMap,
// the inverse of MarshalJSON.
func UnmarshalJSON(b []byte, target Serializable) error {
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return daqerr.Wrap(daqerr.ParseFailed, err, "invalid JSON")
	}
	return target.FromMap(m)
}

// MarshalYAML/UnmarshalYAML mirror the JSON pair using gopkg.in/yaml.v3, for
// the persisted-config form of a device tree (§6.3 "may choose another text
// codec").
func MarshalYAML(v Serializable) ([]byte, error) {
	return yaml.Marshal(Serialize(v))
}

func UnmarshalYAML(b []byte, target Serializable) error {
	m := map[string]interface{}{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return daqerr.Wrap(daqerr.ParseFailed, err, "invalid YAML")
	}
	return target.FromMap(normalizeYAMLMap(m))
}

// normalizeYAMLMap recursively converts map[interface{}]interface{} nodes
// (as produced by older yaml decoders / nested maps) into
// map[string]interface{}, matching
// loader.serialization.go's fromMap handling of that shape.
func normalizeYAMLMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeYAMLMap(t)
	case map[interface{}]interface{}:
		m2 := map[string]interface{}{}
		for k2, v2 := range t {
			if str, ok := k2.(string); ok {
				m2[str] = normalizeYAMLValue(v2)
			}
		}
		return m2
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}

// ListField serialises a valuekernel.List the way §4.2 mandates: a bare JSON
// array of element values for version <= 1, or a tagged
// {"itemIntfID","values"} object for version >= 2, where each element is
// itself the full tagged map valuekernel.Serialize produces for it (not its
// lossy String() form), so ParseListField can reconstruct typed values
// again. writerVersion selects which shape is produced; readers must accept
// either.
func ListField(l *valuekernel.List, writerVersion int) interface{} {
	values := make([]interface{}, l.Len())
	for i := 0; i < l.Len(); i++ {
		v, _ := l.Get(i)
		values[i] = valuekernel.Serialize(v)
	}

	if writerVersion <= 1 {
		return values
	}

	return map[string]interface{}{
		"__type":     "List",
		"itemIntfID": string(l.ElementInterface),
		"values":     values,
	}
}

// ParseListField accepts either shape §4.2 allows and reconstructs the typed
// elements plus, if present, the tagged element-interface id.
func ParseListField(raw interface{}) ([]valuekernel.Value, valuekernel.InterfaceID, error) {
	var rawValues []interface{}
	var iid valuekernel.InterfaceID

	switch t := raw.(type) {
	case []interface{}:
		rawValues = t
	case map[string]interface{}:
		values, ok := t["values"].([]interface{})
		if !ok {
			return nil, "", daqerr.New(daqerr.InvalidValue, "tagged list missing values")
		}
		rawValues = values
		s, _ := t["itemIntfID"].(string)
		iid = valuekernel.InterfaceID(s)
	default:
		return nil, "", daqerr.Newf(daqerr.InvalidValue, "unrecognised list shape %T", raw)
	}

	out := make([]valuekernel.Value, 0, len(rawValues))
	for _, rv := range rawValues {
		entry, ok := rv.(map[string]interface{})
		if !ok {
			return nil, "", daqerr.Newf(daqerr.InvalidValue, "list element is not a tagged value (%T)", rv)
		}
		v, err := valuekernel.DecodeValue(entry)
		if err != nil {
			return nil, "", err
		}
		out = append(out, v)
	}
	return out, iid, nil
}

// DictField serialises a valuekernel.Dict as
// {"__type":"Dict","values":[{"key":...,"value":...}, ...]} (§4.2), each key
// and value rendered as its own tagged map rather than String() so
// ParseDictField can recover typed values.
func DictField(d *valuekernel.Dict) map[string]interface{} {
	values := make([]interface{}, 0, d.Len())
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		values = append(values, map[string]interface{}{
			"key":   valuekernel.Serialize(k),
			"value": valuekernel.Serialize(v),
		})
	}
	return map[string]interface{}{"__type": "Dict", "values": values}
}

// dictPair is one reconstructed key/value entry from ParseDictField.
type dictPair struct {
	Key   valuekernel.Value
	Value valuekernel.Value
}

// ParseDictField is the inverse of DictField, reconstructing typed key/value
// pairs.
func ParseDictField(raw interface{}) ([]dictPair, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, daqerr.Newf(daqerr.InvalidValue, "expected tagged Dict, got %T", raw)
	}
	if tag, _ := m["__type"].(string); tag != "Dict" {
		return nil, daqerr.New(daqerr.InvalidValue, "missing Dict __type tag")
	}
	rawValues, ok := m["values"].([]interface{})
	if !ok {
		return nil, daqerr.New(daqerr.InvalidValue, "Dict missing values array")
	}
	out := make([]dictPair, 0, len(rawValues))
	for _, rv := range rawValues {
		entry, ok := rv.(map[string]interface{})
		if !ok {
			return nil, daqerr.New(daqerr.InvalidValue, "Dict entry is not an object")
		}
		keyMap, ok := entry["key"].(map[string]interface{})
		if !ok {
			return nil, daqerr.New(daqerr.InvalidValue, "Dict entry missing tagged key")
		}
		valMap, ok := entry["value"].(map[string]interface{})
		if !ok {
			return nil, daqerr.New(daqerr.InvalidValue, "Dict entry missing tagged value")
		}
		key, err := valuekernel.DecodeValue(keyMap)
		if err != nil {
			return nil, err
		}
		val, err := valuekernel.DecodeValue(valMap)
		if err != nil {
			return nil, err
		}
		out = append(out, dictPair{Key: key, Value: val})
	}
	return out, nil
}

// RegisterValueKernelFactories adds a Factory for every data-bearing
// value-kernel type to r, so a Registry-based Deserialize can reconstruct a
// bare value-kernel object the same way it reconstructs any other
// Serializable (§4.2, §8 invariant 5). Func/Proc/Object are deliberately
// left unregistered: they wrap live code or host references with no data
// representation, so DecodeValue/FromMap on them always fails, and a factory
// for them could never succeed either.
func RegisterValueKernelFactories(r *Registry) error {
	factories := map[string]Factory{
		"Bool":      func() Serializable { return &valuekernel.Bool{} },
		"Int":       func() Serializable { return &valuekernel.Int{} },
		"Float":     func() Serializable { return &valuekernel.Float{} },
		"String":    func() Serializable { return &valuekernel.String{} },
		"Ratio":     func() Serializable { return &valuekernel.Ratio{} },
		"Complex":   func() Serializable { return &valuekernel.Complex{} },
		"Range":     func() Serializable { return &valuekernel.Range{} },
		"Binary":    func() Serializable { return &valuekernel.Binary{} },
		"Undefined": func() Serializable { return valuekernel.NewUndefined() },
		"List":      func() Serializable { return &valuekernel.List{} },
		"Dict":      func() Serializable { return &valuekernel.Dict{} },
		"Set":       func() Serializable { return &valuekernel.Set{} },
		"Struct":    func() Serializable { return &valuekernel.Struct{} },
		"Enum":      func() Serializable { return &valuekernel.Enum{} },
	}
	for typeID, f := range factories {
		if err := r.Register(typeID, f); err != nil {
			return err
		}
	}
	return nil
}

// RequireString/RequireInt/RequireBool are small helpers for FromMap
// implementations to surface a missing-key error consistently, in place of
// the teacher's per-field `if v, ok := m["x"]; ok { ... } else { return
// fmt.Errorf(...) }` repetition (loader.serialization.go fromMap).
func RequireString(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", daqerr.Newf(daqerr.InvalidValue, "missing key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", daqerr.Newf(daqerr.InvalidValue, "key %q is not a string (%T)", key, v)
	}
	return s, nil
}

func OptionalString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func RequireInt(m map[string]interface{}, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, daqerr.Newf(daqerr.InvalidValue, "missing key %q", key)
	}
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, daqerr.Newf(daqerr.InvalidValue, "key %q is not numeric (%T)", key, v)
	}
}

func OptionalBool(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// VersionOf reads "__version" off a root map, defaulting to 1 for streams
// written before the field existed (§6.3 migration rule).
func VersionOf(m map[string]interface{}) int {
	switch v := m["__version"].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 1
	}
}
