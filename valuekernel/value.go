// Package valuekernel implements the reference-counted-by-GC polymorphic
// value objects every other layer of the runtime exchanges (C1): a closed set
// of core types, freeze/clone/equals/hash/cycle-safe-stringify/serialize, and
// a capability-style BorrowInterface lookup in place of the source's
// RTTI-based interface casting (see SPEC_FULL.md / DESIGN.md
// §"Reference-counted polymorphism with borrowInterface").
//
// Every type's Clone copies its own fields, cloning children through their
// own Clone; only Object.Clone, whose payload is an opaque host value, is
// grounded on machine.deepCopy (encoding/gob) and falls back to
// github.com/mitchellh/copystructure when gob cannot encode it. Serialize
// (serialize.go) feeds the same tagged-map shape into package serializer's
// registry (C2), so every data-bearing value kernel object round-trips
// through Serialize/DecodeValue the way §8 invariant 5 requires.
package valuekernel

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/copystructure"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// CoreType is the runtime tag every Value carries, drawn from the closed set
// in §3.1.
type CoreType int

const (
	CoreUndefined CoreType = iota
	CoreBool
	CoreInt
	CoreFloat
	CoreString
	CoreRatio
	CoreComplex
	CoreList
	CoreDict
	CoreStruct
	CoreEnum
	CoreObject
	CoreFunc
	CoreProc
	CoreBinary
	CoreRange
	CoreIterable
)

func (t CoreType) String() string {
	switch t {
	case CoreUndefined:
		return "Undefined"
	case CoreBool:
		return "Bool"
	case CoreInt:
		return "Int"
	case CoreFloat:
		return "Float"
	case CoreString:
		return "String"
	case CoreRatio:
		return "Ratio"
	case CoreComplex:
		return "Complex"
	case CoreList:
		return "List"
	case CoreDict:
		return "Dict"
	case CoreStruct:
		return "Struct"
	case CoreEnum:
		return "Enum"
	case CoreObject:
		return "Object"
	case CoreFunc:
		return "Func"
	case CoreProc:
		return "Proc"
	case CoreBinary:
		return "Binary"
	case CoreRange:
		return "Range"
	case CoreIterable:
		return "Iterable"
	default:
		return "Unknown"
	}
}

// Value is the base contract every value-kernel object implements.
//
// TypeID/ToMap are the encoding half of §4.1's "serialize" operation: TypeID
// is the "__type" tag the serialiser registry looks factories up by, and
// ToMap renders the object's own fields into the tagged map Serialize
// assembles, the same toMap-visitor split C2's Serializable interface uses
// (serializer.Serializable) so a Value satisfies it without valuekernel
// importing that package. The decoding half (FromMap, constructing a new
// Value from a tagged map) is implemented per concrete type rather than
// declared here, since it needs a zero-value receiver to decode into.
type Value interface {
	CoreType() CoreType
	Equals(other Value) bool
	HashCode() uint64
	String() string
	Clone() Value
	Freeze()
	IsFrozen() bool
	TypeID() string
	ToMap(m map[string]interface{})
}

// InterfaceID names a narrower capability a Value may be borrowed as.
type InterfaceID string

const (
	IfaceList     InterfaceID = "IList"
	IfaceDict     InterfaceID = "IDict"
	IfaceSet      InterfaceID = "ISet"
	IfaceIterable InterfaceID = "IIterable"
)

// BorrowInterface returns a non-owning, narrower view of v as the requested
// interface, or a NoInterface error if v does not implement it. It is a
// capability query, not a cast up an inheritance tree (§4.1).
func BorrowInterface(v Value, id InterfaceID) (interface{}, error) {
	switch id {
	case IfaceList:
		if l, ok := v.(*List); ok {
			return l, nil
		}
	case IfaceDict:
		if d, ok := v.(*Dict); ok {
			return d, nil
		}
	case IfaceSet:
		if s, ok := v.(*Set); ok {
			return s, nil
		}
	case IfaceIterable:
		if it, ok := v.(Iterable); ok {
			return it, nil
		}
	}
	return nil, daqerr.Newf(daqerr.NoInterface, "value of type %s does not implement %s", v.CoreType(), id)
}

// Iterable is implemented by every container; Iterate must be restartable
// (each call yields a fresh iterator) and must report the element's
// interface tag so callers know what each item borrows as.
type Iterable interface {
	Iterate() Iterator
}

// Iterator walks a container forward, once, from the start.
type Iterator interface {
	Next() (Value, bool)
	ElementInterface() InterfaceID
}

type frozenState struct {
	frozen bool
}

func (f *frozenState) IsFrozen() bool { return f.frozen }

func (f *frozenState) Freeze() { f.frozen = true }

func (f *frozenState) checkMutable(kind daqerr.Kind) error {
	if f.frozen {
		return daqerr.New(daqerr.Frozen, "value is frozen")
	}
	_ = kind
	return nil
}

// stringifyCtx tracks values currently being rendered by the active
// top-level String() call so cyclic structures yield "..." instead of
// recursing forever. It is created fresh per top-level call rather than as a
// genuine goroutine-local, which gives the same
// observable behaviour without depending on runtime internals.
type stringifyCtx struct {
	visited map[interface{}]bool
}

func newStringifyCtx() *stringifyCtx {
	return &stringifyCtx{visited: map[interface{}]bool{}}
}

func (c *stringifyCtx) enter(id interface{}) bool {
	if c.visited[id] {
		return false
	}
	c.visited[id] = true
	return true
}

func (c *stringifyCtx) leave(id interface{}) {
	delete(c.visited, id)
}

// cloneViaGob deep-copies a gob-encodable value by round-tripping it through
// a reflect.New of its own concrete type, matching machine.deepCopy's
// approach to producing an independent copy of packet-shaped payloads.
func cloneViaGob(v interface{}) (interface{}, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	out := reflect.New(reflect.TypeOf(v))
	if err := gob.NewDecoder(buf).Decode(out.Interface()); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

// cloneViaCopystructure is the fallback Object.Clone uses when gob cannot
// encode the payload (gob would require every concrete type to be
// registered up front).
func cloneViaCopystructure(v interface{}) (interface{}, error) {
	return copystructure.Copy(v)
}

// --- scalar values -------------------------------------------------------

// Bool is a boolean scalar.
type Bool struct{ frozenState; V bool }

func NewBool(v bool) *Bool { return &Bool{V: v} }

func (b *Bool) CoreType() CoreType { return CoreBool }
func (b *Bool) Equals(o Value) bool {
	ov, ok := o.(*Bool)
	return ok && ov.V == b.V
}
func (b *Bool) HashCode() uint64 {
	if b.V {
		return 1
	}
	return 0
}
func (b *Bool) String() string   { return fmt.Sprintf("%t", b.V) }
func (b *Bool) Clone() Value     { return &Bool{V: b.V} }
func (b *Bool) TypeID() string   { return "Bool" }
func (b *Bool) ToMap(m map[string]interface{}) { m["v"] = b.V }

// Int is a 64-bit signed integer scalar.
type Int struct{ frozenState; V int64 }

func NewInt(v int64) *Int { return &Int{V: v} }

func (i *Int) CoreType() CoreType { return CoreInt }
func (i *Int) Equals(o Value) bool {
	switch ov := o.(type) {
	case *Int:
		return ov.V == i.V
	case *Float:
		return ov.V == float64(i.V)
	}
	return false
}
func (i *Int) HashCode() uint64 { return uint64(i.V) }
func (i *Int) String() string   { return fmt.Sprintf("%d", i.V) }
func (i *Int) Clone() Value     { return &Int{V: i.V} }
func (i *Int) TypeID() string   { return "Int" }
func (i *Int) ToMap(m map[string]interface{}) { m["v"] = i.V }

// Float is a 64-bit floating point scalar.
type Float struct{ frozenState; V float64 }

func NewFloat(v float64) *Float { return &Float{V: v} }

func (f *Float) CoreType() CoreType { return CoreFloat }
func (f *Float) Equals(o Value) bool {
	switch ov := o.(type) {
	case *Float:
		return ov.V == f.V
	case *Int:
		return float64(ov.V) == f.V
	}
	return false
}
func (f *Float) HashCode() uint64 { return math.Float64bits(f.V) }
func (f *Float) String() string   { return fmt.Sprintf("%g", f.V) }
func (f *Float) Clone() Value     { return &Float{V: f.V} }
func (f *Float) TypeID() string   { return "Float" }
func (f *Float) ToMap(m map[string]interface{}) { m["v"] = f.V }

// String is a UTF-8 string scalar.
type String struct{ frozenState; V string }

func NewString(v string) *String { return &String{V: v} }

func (s *String) CoreType() CoreType { return CoreString }
func (s *String) Equals(o Value) bool {
	ov, ok := o.(*String)
	return ok && ov.V == s.V
}
func (s *String) HashCode() uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s.V); i++ {
		h ^= uint64(s.V[i])
		h *= 1099511628211
	}
	return h
}
func (s *String) String() string { return s.V }
func (s *String) Clone() Value   { return &String{V: s.V} }
func (s *String) TypeID() string { return "String" }
func (s *String) ToMap(m map[string]interface{}) { m["v"] = s.V }

// Ratio is an integer numerator/denominator pair.
type Ratio struct {
	frozenState
	Num, Den int64
}

func NewRatio(num, den int64) *Ratio { return &Ratio{Num: num, Den: den} }

func (r *Ratio) CoreType() CoreType { return CoreRatio }
func (r *Ratio) Equals(o Value) bool {
	ov, ok := o.(*Ratio)
	return ok && ov.Num*r.Den == r.Num*ov.Den
}
func (r *Ratio) HashCode() uint64 { return uint64(r.Num)*31 + uint64(r.Den) }
func (r *Ratio) String() string   { return fmt.Sprintf("%d/%d", r.Num, r.Den) }
func (r *Ratio) Clone() Value     { return &Ratio{Num: r.Num, Den: r.Den} }
func (r *Ratio) TypeID() string   { return "Ratio" }
func (r *Ratio) ToMap(m map[string]interface{}) { m["num"] = r.Num; m["den"] = r.Den }

// Complex is a double-precision complex scalar.
type Complex struct {
	frozenState
	Re, Im float64
}

func NewComplex(re, im float64) *Complex { return &Complex{Re: re, Im: im} }

func (c *Complex) CoreType() CoreType { return CoreComplex }
func (c *Complex) Equals(o Value) bool {
	ov, ok := o.(*Complex)
	return ok && ov.Re == c.Re && ov.Im == c.Im
}
func (c *Complex) HashCode() uint64 {
	return math.Float64bits(c.Re) ^ math.Float64bits(c.Im)
}
func (c *Complex) String() string { return fmt.Sprintf("%g+%gi", c.Re, c.Im) }
func (c *Complex) Clone() Value   { return &Complex{Re: c.Re, Im: c.Im} }
func (c *Complex) TypeID() string { return "Complex" }
func (c *Complex) ToMap(m map[string]interface{}) { m["re"] = c.Re; m["im"] = c.Im }

// Range is an inclusive [Low, High] int64 range.
type Range struct {
	frozenState
	Low, High int64
}

func NewRange(low, high int64) *Range { return &Range{Low: low, High: high} }

func (r *Range) CoreType() CoreType { return CoreRange }
func (r *Range) Equals(o Value) bool {
	ov, ok := o.(*Range)
	return ok && ov.Low == r.Low && ov.High == r.High
}
func (r *Range) HashCode() uint64 { return uint64(r.Low)*31 + uint64(r.High) }
func (r *Range) String() string   { return fmt.Sprintf("[%d..%d]", r.Low, r.High) }
func (r *Range) Clone() Value     { return &Range{Low: r.Low, High: r.High} }
func (r *Range) TypeID() string   { return "Range" }
func (r *Range) ToMap(m map[string]interface{}) { m["low"] = r.Low; m["high"] = r.High }

// Binary is an opaque byte payload.
type Binary struct {
	frozenState
	V []byte
}

func NewBinary(v []byte) *Binary { return &Binary{V: append([]byte(nil), v...)} }

func (b *Binary) CoreType() CoreType { return CoreBinary }
func (b *Binary) Equals(o Value) bool {
	ov, ok := o.(*Binary)
	return ok && bytes.Equal(ov.V, b.V)
}
func (b *Binary) HashCode() uint64 {
	var h uint64 = 1469598103934665603
	for _, c := range b.V {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}
func (b *Binary) String() string { return fmt.Sprintf("binary(%d bytes)", len(b.V)) }
func (b *Binary) Clone() Value   { return NewBinary(b.V) }
func (b *Binary) TypeID() string { return "Binary" }
func (b *Binary) ToMap(m map[string]interface{}) {
	m["v"] = base64.StdEncoding.EncodeToString(b.V)
}

// Undefined is the single undefined/null value.
type Undefined struct{ frozenState }

var theUndefined = &Undefined{}

func NewUndefined() *Undefined { return theUndefined }

func (u *Undefined) CoreType() CoreType  { return CoreUndefined }
func (u *Undefined) Equals(o Value) bool { _, ok := o.(*Undefined); return ok }
func (u *Undefined) HashCode() uint64    { return 0 }
func (u *Undefined) String() string      { return "undefined" }
func (u *Undefined) Clone() Value        { return theUndefined }
func (u *Undefined) TypeID() string      { return "Undefined" }
func (u *Undefined) ToMap(map[string]interface{}) {}

// Callable wraps a Go function invoked by name through the property system
// (§4.3 "Callable properties"). Func returns a value and may fail; Proc has
// no return value. Exactly one of the two function fields is set.
type Callable struct {
	frozenState
	Arity int
	Func  func(args []Value) (Value, error)
	Proc  func(args []Value) error
}

func NewFunc(arity int, fn func(args []Value) (Value, error)) *Callable {
	return &Callable{Arity: arity, Func: fn}
}

func NewProc(arity int, fn func(args []Value) error) *Callable {
	return &Callable{Arity: arity, Proc: fn}
}

func (c *Callable) CoreType() CoreType {
	if c.Proc != nil {
		return CoreProc
	}
	return CoreFunc
}

// Equals compares by identity: two distinct callables are never equal even
// if they happen to wrap equivalent logic.
func (c *Callable) Equals(o Value) bool {
	ov, ok := o.(*Callable)
	return ok && ov == c
}
func (c *Callable) HashCode() uint64 { return uint64(reflect.ValueOf(c).Pointer()) }
func (c *Callable) String() string   { return fmt.Sprintf("%s(arity=%d)", c.CoreType(), c.Arity) }
func (c *Callable) Clone() Value     { return c } // callables are shared, not copied

// TypeID/ToMap exist only to satisfy Value; a callable wraps live Go code,
// not data, so it has nothing to persist (FromMap always fails with
// NotSerializable, see serialize.go).
func (c *Callable) TypeID() string { return c.CoreType().String() }
func (c *Callable) ToMap(m map[string]interface{}) { m["arity"] = int64(c.Arity) }

// Invoke calls the wrapped function or procedure, validating arg count
// against Arity first.
func (c *Callable) Invoke(args []Value) (Value, error) {
	if len(args) != c.Arity {
		return nil, daqerr.Newf(daqerr.InvalidParameter, "callable expects %d arguments, got %d", c.Arity, len(args))
	}
	if c.Func != nil {
		return c.Func(args)
	}
	if c.Proc != nil {
		return NewUndefined(), c.Proc(args)
	}
	return nil, daqerr.New(daqerr.InvalidState, "callable has neither Func nor Proc set")
}

// List is an insertion-ordered, random-access, freezable sequence. It
// permits null elements and keeps an element interface tag so iterators can
// report the element type without inspecting every item.
type List struct {
	frozenState
	ElementInterface InterfaceID
	items            []Value
}

func NewList(elementInterface InterfaceID, items ...Value) *List {
	return &List{ElementInterface: elementInterface, items: append([]Value(nil), items...)}
}

func (l *List) CoreType() CoreType { return CoreList }

func (l *List) Len() int { return len(l.items) }

func (l *List) Get(i int) (Value, error) {
	if i < 0 || i >= len(l.items) {
		return nil, daqerr.Newf(daqerr.OutOfRange, "index %d out of range [0,%d)", i, len(l.items))
	}
	return l.items[i], nil
}

func (l *List) Set(i int, v Value) error {
	if err := l.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	if i < 0 || i >= len(l.items) {
		return daqerr.Newf(daqerr.OutOfRange, "index %d out of range [0,%d)", i, len(l.items))
	}
	l.items[i] = v
	return nil
}

func (l *List) Append(v Value) error {
	if err := l.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	l.items = append(l.items, v)
	return nil
}

func (l *List) RemoveAt(i int) error {
	if err := l.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	if i < 0 || i >= len(l.items) {
		return daqerr.Newf(daqerr.OutOfRange, "index %d out of range [0,%d)", i, len(l.items))
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}

func (l *List) Equals(o Value) bool {
	ov, ok := o.(*List)
	if !ok || len(ov.items) != len(l.items) {
		return false
	}
	for i, v := range l.items {
		if !v.Equals(ov.items[i]) {
			return false
		}
	}
	return true
}

func (l *List) HashCode() uint64 {
	var h uint64 = 17
	for _, v := range l.items {
		h = h*31 + v.HashCode()
	}
	return h
}

func (l *List) String() string { return stringifyList(l, newStringifyCtx()) }

func stringifyList(l *List, ctx *stringifyCtx) string {
	if !ctx.enter(l) {
		return "..."
	}
	defer ctx.leave(l)

	parts := make([]string, len(l.items))
	for i, v := range l.items {
		parts[i] = stringifyValue(v, ctx)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func stringifyValue(v Value, ctx *stringifyCtx) string {
	switch t := v.(type) {
	case *List:
		return stringifyList(t, ctx)
	case *Dict:
		return stringifyDict(t, ctx)
	default:
		return v.String()
	}
}

func (l *List) Clone() Value {
	out := &List{ElementInterface: l.ElementInterface, items: make([]Value, len(l.items))}
	for i, v := range l.items {
		out.items[i] = v.Clone()
	}
	return out
}

func (l *List) TypeID() string { return "List" }

func (l *List) ToMap(m map[string]interface{}) {
	values := make([]interface{}, l.Len())
	for i, v := range l.items {
		values[i] = serializeNested(v)
	}
	m["itemIntfId"] = string(l.ElementInterface)
	m["values"] = values
}

func (l *List) Iterate() Iterator { return &listIterator{l: l} }

type listIterator struct {
	l   *List
	pos int
}

func (it *listIterator) Next() (Value, bool) {
	if it.pos >= len(it.l.items) {
		return nil, false
	}
	v := it.l.items[it.pos]
	it.pos++
	return v, true
}

func (it *listIterator) ElementInterface() InterfaceID { return it.l.ElementInterface }

// dictEntry preserves insertion order while allowing O(1) lookup by a
// deterministic key string derived from HashCode+String, approximating
// equals+hash identity without requiring Value to be a comparable Go type.
type dictEntry struct {
	key   Value
	value Value
}

// Dict is an insertion-ordered mapping from K to V. Equality ignores order;
// null values are permitted, null keys are rejected.
type Dict struct {
	frozenState
	KeyInterface   InterfaceID
	ValueInterface InterfaceID
	order          []string
	entries        map[string]dictEntry
}

func NewDict(keyIface, valueIface InterfaceID) *Dict {
	return &Dict{KeyInterface: keyIface, ValueInterface: valueIface, entries: map[string]dictEntry{}}
}

func dictKeyOf(k Value) string {
	return fmt.Sprintf("%d:%s", k.HashCode(), k.String())
}

func (d *Dict) CoreType() CoreType { return CoreDict }

func (d *Dict) Len() int { return len(d.order) }

func (d *Dict) Set(k, v Value) error {
	if err := d.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	if _, ok := k.(*Undefined); ok {
		return daqerr.New(daqerr.ArgumentNull, "dict key must not be null")
	}
	key := dictKeyOf(k)
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = dictEntry{key: k, value: v}
	return nil
}

func (d *Dict) Get(k Value) (Value, bool) {
	e, ok := d.entries[dictKeyOf(k)]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (d *Dict) Delete(k Value) error {
	if err := d.checkMutable(daqerr.Frozen); err != nil {
		return err
	}
	key := dictKeyOf(k)
	if _, ok := d.entries[key]; !ok {
		return daqerr.New(daqerr.NotFound, "key not present")
	}
	delete(d.entries, key)
	for i, ord := range d.order {
		if ord == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Dict) Keys() []Value {
	out := make([]Value, len(d.order))
	for i, key := range d.order {
		out[i] = d.entries[key].key
	}
	return out
}

func (d *Dict) Equals(o Value) bool {
	ov, ok := o.(*Dict)
	if !ok || len(ov.entries) != len(d.entries) {
		return false
	}
	for key, e := range d.entries {
		oe, ok := ov.entries[key]
		if !ok || !e.value.Equals(oe.value) {
			return false
		}
	}
	return true
}

func (d *Dict) HashCode() uint64 {
	var h uint64
	for _, key := range d.order {
		e := d.entries[key]
		h ^= e.key.HashCode()*31 + e.value.HashCode()
	}
	return h
}

func (d *Dict) String() string { return stringifyDict(d, newStringifyCtx()) }

func stringifyDict(d *Dict, ctx *stringifyCtx) string {
	if !ctx.enter(d) {
		return "..."
	}
	defer ctx.leave(d)

	parts := make([]string, 0, len(d.order))
	for _, key := range d.order {
		e := d.entries[key]
		parts = append(parts, fmt.Sprintf("%s: %s", stringifyValue(e.key, ctx), stringifyValue(e.value, ctx)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (d *Dict) Clone() Value {
	out := NewDict(d.KeyInterface, d.ValueInterface)
	for _, key := range d.order {
		e := d.entries[key]
		_ = out.Set(e.key.Clone(), e.value.Clone())
	}
	return out
}

func (d *Dict) TypeID() string { return "Dict" }

func (d *Dict) ToMap(m map[string]interface{}) {
	entries := make([]interface{}, 0, len(d.order))
	for _, key := range d.order {
		e := d.entries[key]
		entries = append(entries, map[string]interface{}{
			"key":   serializeNested(e.key),
			"value": serializeNested(e.value),
		})
	}
	m["keyIntfId"] = string(d.KeyInterface)
	m["valueIntfId"] = string(d.ValueInterface)
	m["entries"] = entries
}

func (d *Dict) Iterate() Iterator { return &dictIterator{d: d} }

type dictIterator struct {
	d   *Dict
	pos int
}

func (it *dictIterator) Next() (Value, bool) {
	if it.pos >= len(it.d.order) {
		return nil, false
	}
	e := it.d.entries[it.d.order[it.pos]]
	it.pos++
	pair := NewList(IfaceList, e.key, e.value)
	return pair, true
}

func (it *dictIterator) ElementInterface() InterfaceID { return it.d.ValueInterface }

// Set is a Dict-derived collection of unique values (§3.1 "derived by
// convention from the mapping").
type Set struct {
	*Dict
}

func NewSet(elementIface InterfaceID) *Set {
	return &Set{Dict: NewDict(elementIface, InterfaceID(""))}
}

func (s *Set) CoreType() CoreType { return CoreList } // sets are enumerated like sequences

func (s *Set) TypeID() string { return "Set" }

// Equals compares members. It shadows the embedded Dict's, which only
// accepts a *Dict and so would never match another *Set.
func (s *Set) Equals(o Value) bool {
	ov, ok := o.(*Set)
	return ok && s.Dict.Equals(ov.Dict)
}

// ToMap shadows the embedded Dict's, rendering a Set as a values-only list
// (its entries' keys and values are the same member) rather than the
// key/value pairs a general Dict would emit.
func (s *Set) ToMap(m map[string]interface{}) {
	values := make([]interface{}, 0, s.Dict.Len())
	for _, v := range s.Values() {
		values = append(values, serializeNested(v))
	}
	m["elementIntfId"] = string(s.Dict.KeyInterface)
	m["values"] = values
}

func (s *Set) Add(v Value) error { return s.Dict.Set(v, NewBool(true)) }

func (s *Set) Contains(v Value) bool {
	_, ok := s.Dict.Get(v)
	return ok
}

func (s *Set) Remove(v Value) error { return s.Dict.Delete(v) }

func (s *Set) Values() []Value { return s.Dict.Keys() }

func (s *Set) Clone() Value {
	out := NewSet(s.Dict.KeyInterface)
	for _, v := range s.Values() {
		_ = out.Add(v.Clone())
	}
	return out
}

// SortedKeys returns the Set's members sorted by String() form, useful for
// deterministic iteration in tests and serialisation.
func (s *Set) SortedKeys() []string {
	keys := make([]string, 0, len(s.order))
	for _, v := range s.Values() {
		keys = append(keys, v.String())
	}
	sort.Strings(keys)
	return keys
}
