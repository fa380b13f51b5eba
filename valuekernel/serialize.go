package valuekernel

import (
	"encoding/base64"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// Serialize is the free-function half of §4.1's "serialize" operation
// (mirroring BorrowInterface's capability-query shape rather than a method,
// since the result needs no further dispatch through v). It tags v's own
// ToMap rendering with "__type" the same way serializer.Serialize does for
// any Serializable, so a Value round-trips through the C2 registry without
// valuekernel importing that package.
func Serialize(v Value) map[string]interface{} {
	return serializeNested(v)
}

func serializeNested(v Value) map[string]interface{} {
	m := map[string]interface{}{"__type": v.TypeID()}
	v.ToMap(m)
	return m
}

// DecodeValue is deserialize's counterpart for the closed value-kernel type
// set: given a tagged map produced by Serialize, it reconstructs the
// concrete Value it describes. List/Dict/Set/Struct use it recursively for
// their own element/field values; the C2 registry (serializer package) uses
// it as the Factory body for each built-in "__type".
func DecodeValue(m map[string]interface{}) (Value, error) {
	typeID, ok := m["__type"].(string)
	if !ok {
		return nil, daqerr.New(daqerr.InvalidValue, "missing or non-string __type")
	}

	var v Value
	switch typeID {
	case "Bool":
		v = &Bool{}
	case "Int":
		v = &Int{}
	case "Float":
		v = &Float{}
	case "String":
		v = &String{}
	case "Ratio":
		v = &Ratio{}
	case "Complex":
		v = &Complex{}
	case "Range":
		v = &Range{}
	case "Binary":
		v = &Binary{}
	case "Undefined":
		v = theUndefined
	case "List":
		v = &List{}
	case "Dict":
		v = &Dict{}
	case "Set":
		v = &Set{}
	case "Struct":
		v = &Struct{}
	case "Enum":
		v = &Enum{}
	case "Func", "Proc", "Object":
		return nil, daqerr.Newf(daqerr.NotSerializable, "%s values cannot be deserialised", typeID)
	default:
		return nil, daqerr.Newf(daqerr.NotFound, "unknown value-kernel __type %q", typeID)
	}

	if err := fromMap(v, m); err != nil {
		return nil, err
	}
	return v, nil
}

// fromMap dispatches to each concrete type's own FromMap. It is not exposed
// on Value itself (decoding needs a zero-value receiver of the right
// concrete type, which DecodeValue's switch already picked).
func fromMap(v Value, m map[string]interface{}) error {
	switch t := v.(type) {
	case *Bool:
		return t.FromMap(m)
	case *Int:
		return t.FromMap(m)
	case *Float:
		return t.FromMap(m)
	case *String:
		return t.FromMap(m)
	case *Ratio:
		return t.FromMap(m)
	case *Complex:
		return t.FromMap(m)
	case *Range:
		return t.FromMap(m)
	case *Binary:
		return t.FromMap(m)
	case *Undefined:
		return t.FromMap(m)
	case *List:
		return t.FromMap(m)
	case *Dict:
		return t.FromMap(m)
	case *Set:
		return t.FromMap(m)
	case *Struct:
		return t.FromMap(m)
	case *Enum:
		return t.FromMap(m)
	case *Callable:
		return t.FromMap(m)
	case *Object:
		return t.FromMap(m)
	default:
		return daqerr.Newf(daqerr.NotSerializable, "value of type %T has no FromMap", v)
	}
}

func requireString(m map[string]interface{}, key string) (string, error) {
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

func requireBool(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, daqerr.Newf(daqerr.InvalidValue, "missing key %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, daqerr.Newf(daqerr.InvalidValue, "key %q is not a bool (%T)", key, v)
	}
	return b, nil
}

// requireInt accepts int64/int/float64 so a value round-tripped through
// JSON (which only has float64) or built directly in Go (int64) both decode.
func requireInt(m map[string]interface{}, key string) (int64, error) {
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

func requireFloat(m map[string]interface{}, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, daqerr.Newf(daqerr.InvalidValue, "missing key %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	default:
		return 0, daqerr.Newf(daqerr.InvalidValue, "key %q is not numeric (%T)", key, v)
	}
}

func requireMap(raw interface{}) (map[string]interface{}, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, daqerr.Newf(daqerr.InvalidValue, "expected a tagged value, got %T", raw)
	}
	return m, nil
}

func (b *Bool) FromMap(m map[string]interface{}) error {
	v, err := requireBool(m, "v")
	if err != nil {
		return err
	}
	b.V = v
	return nil
}

func (i *Int) FromMap(m map[string]interface{}) error {
	v, err := requireInt(m, "v")
	if err != nil {
		return err
	}
	i.V = v
	return nil
}

func (f *Float) FromMap(m map[string]interface{}) error {
	v, err := requireFloat(m, "v")
	if err != nil {
		return err
	}
	f.V = v
	return nil
}

func (s *String) FromMap(m map[string]interface{}) error {
	v, err := requireString(m, "v")
	if err != nil {
		return err
	}
	s.V = v
	return nil
}

func (r *Ratio) FromMap(m map[string]interface{}) error {
	num, err := requireInt(m, "num")
	if err != nil {
		return err
	}
	den, err := requireInt(m, "den")
	if err != nil {
		return err
	}
	r.Num, r.Den = num, den
	return nil
}

func (c *Complex) FromMap(m map[string]interface{}) error {
	re, err := requireFloat(m, "re")
	if err != nil {
		return err
	}
	im, err := requireFloat(m, "im")
	if err != nil {
		return err
	}
	c.Re, c.Im = re, im
	return nil
}

func (r *Range) FromMap(m map[string]interface{}) error {
	low, err := requireInt(m, "low")
	if err != nil {
		return err
	}
	high, err := requireInt(m, "high")
	if err != nil {
		return err
	}
	r.Low, r.High = low, high
	return nil
}

func (b *Binary) FromMap(m map[string]interface{}) error {
	s, err := requireString(m, "v")
	if err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return daqerr.Wrap(daqerr.InvalidValue, err, "binary value is not valid base64")
	}
	b.V = decoded
	return nil
}

func (u *Undefined) FromMap(map[string]interface{}) error { return nil }

func (l *List) FromMap(m map[string]interface{}) error {
	iid, _ := m["itemIntfId"].(string)
	rawValues, ok := m["values"].([]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidValue, "list missing values array")
	}
	items := make([]Value, 0, len(rawValues))
	for _, rv := range rawValues {
		entry, err := requireMap(rv)
		if err != nil {
			return err
		}
		item, err := DecodeValue(entry)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	l.ElementInterface = InterfaceID(iid)
	l.items = items
	return nil
}

func (d *Dict) FromMap(m map[string]interface{}) error {
	keyIID, _ := m["keyIntfId"].(string)
	valIID, _ := m["valueIntfId"].(string)
	rawEntries, ok := m["entries"].([]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidValue, "dict missing entries array")
	}
	d.KeyInterface = InterfaceID(keyIID)
	d.ValueInterface = InterfaceID(valIID)
	d.order = nil
	d.entries = map[string]dictEntry{}
	for _, re := range rawEntries {
		entry, err := requireMap(re)
		if err != nil {
			return err
		}
		keyMap, err := requireMap(entry["key"])
		if err != nil {
			return err
		}
		valMap, err := requireMap(entry["value"])
		if err != nil {
			return err
		}
		key, err := DecodeValue(keyMap)
		if err != nil {
			return err
		}
		val, err := DecodeValue(valMap)
		if err != nil {
			return err
		}
		if err := d.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) FromMap(m map[string]interface{}) error {
	iid, _ := m["elementIntfId"].(string)
	rawValues, ok := m["values"].([]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidValue, "set missing values array")
	}
	s.Dict = NewDict(InterfaceID(iid), "")
	for _, rv := range rawValues {
		entry, err := requireMap(rv)
		if err != nil {
			return err
		}
		v, err := DecodeValue(entry)
		if err != nil {
			return err
		}
		if err := s.Add(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Struct) FromMap(m map[string]interface{}) error {
	typeName, err := requireString(m, "typeName")
	if err != nil {
		return err
	}
	fields, ok := m["fields"].(map[string]interface{})
	if !ok {
		return daqerr.New(daqerr.InvalidValue, "struct missing fields map")
	}

	order, _ := m["order"].([]interface{})
	names := make([]string, 0, len(order))
	for _, o := range order {
		if name, ok := o.(string); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		for name := range fields {
			names = append(names, name)
		}
	}

	s.TypeName = typeName
	s.fields = map[string]Value{}
	s.order = nil
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		fieldMap, err := requireMap(raw)
		if err != nil {
			return err
		}
		v, err := DecodeValue(fieldMap)
		if err != nil {
			return err
		}
		if err := s.SetField(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enum) FromMap(m map[string]interface{}) error {
	typeName, err := requireString(m, "typeName")
	if err != nil {
		return err
	}
	member, err := requireString(m, "member")
	if err != nil {
		return err
	}
	e.TypeName, e.Member = typeName, member
	return nil
}

// FromMap always fails: a callable wraps live Go code with no data
// representation to reconstruct (§4.1 invariant 5 is scoped to
// data-bearing value-kernel objects).
func (c *Callable) FromMap(map[string]interface{}) error {
	return daqerr.New(daqerr.NotSerializable, "callable values cannot be deserialised")
}

// FromMap always fails: an Object wraps a live host reference with no data
// representation to reconstruct (§4.1 invariant 5 is scoped to data-bearing
// value-kernel objects).
func (o *Object) FromMap(map[string]interface{}) error {
	return daqerr.New(daqerr.NotSerializable, "object values cannot be deserialised")
}
