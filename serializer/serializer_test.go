package serializer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

// point is a minimal Serializable used to exercise the registry without
// pulling in the heavier component/property types.
type point struct {
	X, Y int64
}

func (p *point) TypeID() string { return "Point" }

func (p *point) ToMap(m map[string]interface{}) {
	m["x"] = p.X
	m["y"] = p.Y
}

func (p *point) FromMap(m map[string]interface{}) error {
	x, err := RequireInt(m, "x")
	if err != nil {
		return err
	}
	y, err := RequireInt(m, "y")
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

func TestSerializeDeserializeIsIdentity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Point", func() Serializable { return &point{} }))

	original := &point{X: 3, Y: -4}
	m := SerializeRoot(original)
	require.Equal(t, CurrentVersion, m["__version"])

	restored, err := reg.Deserialize(m)
	require.NoError(t, err)
	require.Equal(t, original, restored)
}

func TestDeserializeUnknownTypeFails(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Deserialize(map[string]interface{}{"__type": "Nope"})
	require.ErrorIs(t, err, daqerr.Of(daqerr.NotFound))
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Point", func() Serializable { return &point{} }))
	err := reg.Register("Point", func() Serializable { return &point{} })
	require.ErrorIs(t, err, daqerr.Of(daqerr.AlreadyExists))
}

func TestUpdatePreservesIdentity(t *testing.T) {
	target := &point{X: 1, Y: 1}
	err := Update(target, map[string]interface{}{"__type": "Point", "x": int64(5), "y": int64(6)})
	require.NoError(t, err)
	require.Equal(t, int64(5), target.X)
	require.Equal(t, int64(6), target.Y)
}

func TestUpdateLeavesTargetUnchangedOnFailure(t *testing.T) {
	target := &point{X: 1, Y: 2}
	err := Update(target, map[string]interface{}{"__type": "Point", "x": int64(5)})
	require.Error(t, err)
	require.Equal(t, int64(1), target.X, "failed update must not partially mutate target")
	require.Equal(t, int64(2), target.Y)
}

func TestJSONRoundTrip(t *testing.T) {
	original := &point{X: 7, Y: 8}
	b, err := MarshalJSON(original)
	require.NoError(t, err)

	restored := &point{}
	require.NoError(t, UnmarshalJSON(b, restored))
	require.Equal(t, original, restored)
}

func TestYAMLRoundTrip(t *testing.T) {
	original := &point{X: 2, Y: 9}
	b, err := MarshalYAML(original)
	require.NoError(t, err)

	restored := &point{}
	require.NoError(t, UnmarshalYAML(b, restored))
	require.Equal(t, original, restored)
}

// TestValueKernelFactoryRoundTrip exercises §8 invariant 5 through the
// Registry itself, not just valuekernel's own Serialize/DecodeValue pair, so
// a real value-kernel object survives a full registry-mediated round trip —
// the same path configprotocol/wirevalue.go's valueRegistry uses.
func TestValueKernelFactoryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterValueKernelFactories(reg))

	cases := []valuekernel.Value{
		valuekernel.NewInt(7),
		valuekernel.NewString("hi"),
		valuekernel.NewStruct("Point"),
	}
	// give the struct case some fields to round trip.
	require.NoError(t, cases[2].(*valuekernel.Struct).SetField("x", valuekernel.NewInt(1)))

	for _, v := range cases {
		m := valuekernel.Serialize(v)
		restored, err := reg.Deserialize(m)
		require.NoError(t, err)

		rv, ok := restored.(valuekernel.Value)
		require.True(t, ok, "restored %T must implement valuekernel.Value", restored)
		require.True(t, v.Equals(rv))
	}
}

// TestValueKernelFactoriesExcludeLiveTypes confirms Func/Proc/Object have no
// factory: neither wraps data, so neither can be reconstructed from one.
func TestValueKernelFactoriesExcludeLiveTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterValueKernelFactories(reg))

	for _, typeID := range []string{"Func", "Proc", "Object"} {
		_, err := reg.Deserialize(map[string]interface{}{"__type": typeID})
		require.ErrorIs(t, err, daqerr.Of(daqerr.NotFound), "no factory registered for %s", typeID)
	}
}

func TestListDictFieldRoundTrip(t *testing.T) {
	l := valuekernel.NewList(valuekernel.IfaceList, valuekernel.NewInt(1), valuekernel.NewString("two"))

	// version <= 1: bare array.
	raw := ListField(l, 1)
	values, _, err := ParseListField(raw)
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.True(t, values[0].Equals(valuekernel.NewInt(1)))
	require.True(t, values[1].Equals(valuekernel.NewString("two")))

	// version >= 2: tagged object carrying the element interface id too.
	tagged := ListField(l, 2)
	values, iid, err := ParseListField(tagged)
	require.NoError(t, err)
	require.Equal(t, l.ElementInterface, iid)
	require.True(t, values[0].Equals(valuekernel.NewInt(1)))

	d := valuekernel.NewDict(valuekernel.IfaceList, valuekernel.IfaceList)
	require.NoError(t, d.Set(valuekernel.NewString("a"), valuekernel.NewInt(1)))

	pairs, err := ParseDictField(DictField(d))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.True(t, pairs[0].Key.Equals(valuekernel.NewString("a")))
	require.True(t, pairs[0].Value.Equals(valuekernel.NewInt(1)))
}

func TestListFieldVersioning(t *testing.T) {
	// Version <= 1 writers must produce a bare array; version >= 2 a tagged
	// object, per §4.2.
	require.NotPanics(t, func() {
		_ = VersionOf(map[string]interface{}{})
	})
	require.Equal(t, 1, VersionOf(map[string]interface{}{}))
	require.Equal(t, 2, VersionOf(map[string]interface{}{"__version": int64(2)}))

	l := valuekernel.NewList(valuekernel.IfaceList, valuekernel.NewInt(1))
	_, isArray := ListField(l, 1).([]interface{})
	require.True(t, isArray)
	_, isTagged := ListField(l, 2).(map[string]interface{})
	require.True(t, isTagged)
}
