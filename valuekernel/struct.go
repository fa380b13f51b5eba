package valuekernel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// Struct is a named, fixed-field aggregate (the value-kernel counterpart of
// a type-manager-registered struct type, §3.1/§4.4). Field values are
// dynamically typed, so Clone copies field by field through each value's own
// Clone rather than through gob, which would require every concrete field
// type pre-registered.
type Struct struct {
	frozenState
	TypeName string
	fields   map[string]Value
	order    []string
}

func NewStruct(typeName string) *Struct {
	return &Struct{TypeName: typeName, fields: map[string]Value{}}
}

func (s *Struct) CoreType() CoreType { return CoreStruct }

func (s *Struct) SetField(name string, v Value) error {
	if err := s.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	if _, exists := s.fields[name]; !exists {
		s.order = append(s.order, name)
	}
	s.fields[name] = v
	return nil
}

func (s *Struct) Field(name string) (Value, error) {
	v, ok := s.fields[name]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "field %q not present on struct %s", name, s.TypeName)
	}
	return v, nil
}

func (s *Struct) FieldNames() []string {
	return append([]string(nil), s.order...)
}

func (s *Struct) Equals(o Value) bool {
	ov, ok := o.(*Struct)
	if !ok || ov.TypeName != s.TypeName || len(ov.fields) != len(s.fields) {
		return false
	}
	for name, v := range s.fields {
		ovv, ok := ov.fields[name]
		if !ok || !v.Equals(ovv) {
			return false
		}
	}
	return true
}

func (s *Struct) HashCode() uint64 {
	var h uint64 = 1
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		h = h*31 + s.fields[name].HashCode()
	}
	return h
}

func (s *Struct) String() string {
	ctx := newStringifyCtx()
	if !ctx.enter(s) {
		return "..."
	}
	defer ctx.leave(s)

	parts := make([]string, len(s.order))
	for i, name := range s.order {
		parts[i] = fmt.Sprintf("%s: %s", name, stringifyValue(s.fields[name], ctx))
	}
	return s.TypeName + "{" + strings.Join(parts, ", ") + "}"
}

func (s *Struct) Clone() Value {
	out := NewStruct(s.TypeName)
	for _, name := range s.order {
		out.SetField(name, s.fields[name].Clone()) //nolint:errcheck // cloning a frozen source never mutates a fresh target
	}
	return out
}

func (s *Struct) TypeID() string { return "Struct" }

func (s *Struct) ToMap(m map[string]interface{}) {
	fields := make(map[string]interface{}, len(s.order))
	order := make([]interface{}, len(s.order))
	for i, name := range s.order {
		fields[name] = serializeNested(s.fields[name])
		order[i] = name
	}
	m["typeName"] = s.TypeName
	m["order"] = order
	m["fields"] = fields
}

// snapshot produces a plain map[string]interface{} suitable for
// copystructure-based deep copy of dynamically typed payloads such as packet
// metadata dictionaries, mirroring machine.Packet's use of
// github.com/mitchellh/copystructure for its change-tracking log snapshot.
func (s *Struct) snapshot() (map[string]interface{}, error) {
	plain := map[string]interface{}{}
	for name, v := range s.fields {
		plain[name] = v.String()
	}
	copied, err := cloneViaCopystructure(plain)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.GeneralError, err, "struct snapshot copy failed")
	}
	return copied.(map[string]interface{}), nil
}

// Enum is a named value drawn from a registered enumeration type (§4.4).
type Enum struct {
	frozenState
	TypeName string
	Member   string
}

func NewEnum(typeName, member string) *Enum {
	return &Enum{TypeName: typeName, Member: member}
}

func (e *Enum) CoreType() CoreType { return CoreEnum }
func (e *Enum) Equals(o Value) bool {
	ov, ok := o.(*Enum)
	return ok && ov.TypeName == e.TypeName && ov.Member == e.Member
}
func (e *Enum) HashCode() uint64 {
	h := NewString(e.TypeName + "::" + e.Member)
	return h.HashCode()
}
func (e *Enum) String() string { return e.TypeName + "::" + e.Member }
func (e *Enum) Clone() Value   { return &Enum{TypeName: e.TypeName, Member: e.Member} }
func (e *Enum) TypeID() string { return "Enum" }
func (e *Enum) ToMap(m map[string]interface{}) {
	m["typeName"] = e.TypeName
	m["member"] = e.Member
}

// Object wraps an opaque host object reached only through BorrowInterface
// (e.g. a PropertyObject exposed as a property value, §3.3 "Object
// property"). Equality compares payloads with ==; HashCode is the first byte
// of the payload's %p rendering, so unequal objects often share a hash.
// Cloning round-trips
// through gob when the payload is a plain encodable snapshot, matching
// machine.deepCopy's treatment of opaque payload maps.
type Object struct {
	frozenState
	Payload  interface{}
	snapshot func() (interface{}, error)
}

func NewObject(payload interface{}) *Object {
	return &Object{Payload: payload}
}

func (o *Object) CoreType() CoreType  { return CoreObject }
func (o *Object) Equals(v Value) bool { ov, ok := v.(*Object); return ok && ov.Payload == o.Payload }
func (o *Object) HashCode() uint64    { return uint64(fmt.Sprintf("%p", o.Payload)[0]) }
func (o *Object) String() string      { return fmt.Sprintf("object(%T)", o.Payload) }
// TypeID/ToMap exist only to satisfy Value; an Object wraps a live host
// reference reached through BorrowInterface, not data, so it has nothing to
// persist (FromMap always fails with NotSerializable, see serialize.go).
func (o *Object) TypeID() string { return "Object" }
func (o *Object) ToMap(map[string]interface{}) {}

func (o *Object) Clone() Value {
	if o.snapshot != nil {
		if copy, err := o.snapshot(); err == nil {
			return &Object{Payload: copy}
		}
	}
	if copied, err := cloneViaGob(o.Payload); err == nil {
		return &Object{Payload: copied}
	}
	if copied, err := cloneViaCopystructure(o.Payload); err == nil {
		return &Object{Payload: copied}
	}
	return &Object{Payload: o.Payload}
}
