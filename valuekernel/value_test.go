package valuekernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/internal/daqerr"
)

func TestFreezeRejectsMutation(t *testing.T) {
	l := NewList(IfaceList, NewInt(1), NewInt(2))
	l.Freeze()

	require.True(t, l.IsFrozen())
	err := l.Append(NewInt(3))
	require.ErrorIs(t, err, daqerr.Of(daqerr.Frozen))

	// Reads are unaffected by freezing.
	v, err := l.Get(0)
	require.NoError(t, err)
	require.True(t, v.Equals(NewInt(1)))
}

func TestDoubleFreezeIsNoop(t *testing.T) {
	l := NewList(IfaceList)
	l.Freeze()
	l.Freeze()
	require.True(t, l.IsFrozen())
}

func TestCloneEqualsOriginal(t *testing.T) {
	d := NewDict(IfaceList, IfaceList)
	require.NoError(t, d.Set(NewString("a"), NewInt(1)))
	require.NoError(t, d.Set(NewString("b"), NewList(IfaceList, NewInt(2), NewInt(3))))

	clone := d.Clone()
	require.True(t, clone.Equals(d))
	require.True(t, d.Equals(clone))

	// Mutating the clone must not affect the original (deep structural copy).
	cd := clone.(*Dict)
	require.NoError(t, cd.Set(NewString("a"), NewInt(99)))
	v, _ := d.Get(NewString("a"))
	require.True(t, v.Equals(NewInt(1)))
}

func TestCycleSafeStringification(t *testing.T) {
	outer := NewList(IfaceList)
	inner := NewDict(IfaceList, IfaceList)
	require.NoError(t, inner.Set(NewString("self"), outer))
	require.NoError(t, outer.Append(inner))

	// Must terminate and fall back to "..." on re-entry rather than
	// recursing forever.
	s := outer.String()
	require.Contains(t, s, "...")
}

func TestSetDictEquality(t *testing.T) {
	a := NewDict(IfaceList, IfaceList)
	require.NoError(t, a.Set(NewString("x"), NewInt(1)))
	require.NoError(t, a.Set(NewString("y"), NewInt(2)))

	b := NewDict(IfaceList, IfaceList)
	require.NoError(t, b.Set(NewString("y"), NewInt(2)))
	require.NoError(t, b.Set(NewString("x"), NewInt(1)))

	require.True(t, a.Equals(b), "dict equality must ignore insertion order")
}

func TestNumericConversion(t *testing.T) {
	f, err := ConvertToInt(NewFloat(-3.9))
	require.NoError(t, err)
	require.Equal(t, int64(-3), f.V, "truncation toward zero, not floor")

	_, err = ConvertToInt(NewFloat(1e300))
	require.ErrorIs(t, err, daqerr.Of(daqerr.ConversionFailed))
}

// TestSerializeDecodeRoundTrip exercises §8 invariant 5
// ("serialize∘deserialize is identity on every value kernel object") over
// each data-bearing value-kernel type, not just a single literal example.
func TestSerializeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
	}{
		{"Bool", NewBool(true)},
		{"Int", NewInt(-42)},
		{"Float", NewFloat(3.5)},
		{"String", NewString("hello")},
		{"Ratio", NewRatio(3, 4)},
		{"Complex", NewComplex(1.5, -2.5)},
		{"Range", NewRange(1, 10)},
		{"Binary", NewBinary([]byte{0x00, 0x01, 0xff})},
		{"Undefined", NewUndefined()},
		{"Enum", NewEnum("Color", "Red")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Serialize(tc.v)
			require.Equal(t, tc.name, m["__type"])

			decoded, err := DecodeValue(m)
			require.NoError(t, err)
			require.True(t, tc.v.Equals(decoded), "round trip must be equal to the original")
		})
	}
}

func TestSerializeDecodeRoundTripList(t *testing.T) {
	l := NewList(IfaceList, NewInt(1), NewString("two"), NewBool(true))

	m := Serialize(l)
	decoded, err := DecodeValue(m)
	require.NoError(t, err)
	require.True(t, l.Equals(decoded))

	dl := decoded.(*List)
	require.Equal(t, l.ElementInterface, dl.ElementInterface)
}

func TestSerializeDecodeRoundTripDict(t *testing.T) {
	d := NewDict(IfaceList, IfaceList)
	require.NoError(t, d.Set(NewString("a"), NewInt(1)))
	require.NoError(t, d.Set(NewString("b"), NewFloat(2.5)))

	m := Serialize(d)
	decoded, err := DecodeValue(m)
	require.NoError(t, err)
	require.True(t, d.Equals(decoded))
}

func TestSerializeDecodeRoundTripSet(t *testing.T) {
	s := NewSet(IfaceList)
	require.NoError(t, s.Add(NewInt(1)))
	require.NoError(t, s.Add(NewInt(2)))

	m := Serialize(s)
	decoded, err := DecodeValue(m)
	require.NoError(t, err)
	require.True(t, s.Equals(decoded))
}

func TestSerializeDecodeRoundTripStruct(t *testing.T) {
	s := NewStruct("Point")
	require.NoError(t, s.SetField("x", NewInt(1)))
	require.NoError(t, s.SetField("y", NewInt(2)))

	m := Serialize(s)
	decoded, err := DecodeValue(m)
	require.NoError(t, err)
	require.True(t, s.Equals(decoded))

	ds := decoded.(*Struct)
	require.Equal(t, []string{"x", "y"}, ds.FieldNames(), "field order must survive the round trip")
}

func TestSerializeDecodeRoundTripNestedStruct(t *testing.T) {
	inner := NewStruct("Inner")
	require.NoError(t, inner.SetField("v", NewInt(7)))

	outer := NewStruct("Outer")
	require.NoError(t, outer.SetField("inner", inner))
	require.NoError(t, outer.SetField("items", NewList(IfaceList, NewInt(1), NewInt(2))))

	m := Serialize(outer)
	decoded, err := DecodeValue(m)
	require.NoError(t, err)
	require.True(t, outer.Equals(decoded))
}

// TestCallableAndObjectAreNotSerializable documents that invariant 5 is
// scoped to data-bearing value-kernel objects: Callable/Object wrap live Go
// code or an opaque host reference, neither of which has a form to
// reconstruct from.
func TestCallableAndObjectAreNotSerializable(t *testing.T) {
	c := NewProc(0, func(args []Value) error { return nil })
	require.ErrorIs(t, c.FromMap(map[string]interface{}{}), daqerr.Of(daqerr.NotSerializable))

	o := NewObject(42)
	require.ErrorIs(t, o.FromMap(map[string]interface{}{}), daqerr.Of(daqerr.NotSerializable))

	_, err := DecodeValue(map[string]interface{}{"__type": "Object"})
	require.ErrorIs(t, err, daqerr.Of(daqerr.NotSerializable))
}

func TestBorrowInterfaceCapabilityLookup(t *testing.T) {
	l := NewList(IfaceList)
	if _, err := BorrowInterface(l, IfaceList); err != nil {
		t.Fatalf("expected List to borrow as IList: %v", err)
	}

	if _, err := BorrowInterface(l, IfaceDict); err == nil {
		t.Fatalf("expected NoInterface borrowing a List as IDict")
	} else {
		require.ErrorIs(t, err, daqerr.Of(daqerr.NoInterface))
	}
}
