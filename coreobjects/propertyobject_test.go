package coreobjects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects/eval"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/valuekernel"
)

func newTestObject(bus *coreevent.Bus) *PropertyObject {
	o := NewPropertyObject("", nil, bus, nil)
	_ = o.AddProperty(&Property{
		Name:      "Gain",
		ValueType: valuekernel.CoreFloat,
		Default:   func() valuekernel.Value { return valuekernel.NewFloat(1.0) },
	})
	_ = o.AddProperty(&Property{
		Name:      "Label",
		ValueType: valuekernel.CoreString,
		ReadOnly:  true,
		Default:   func() valuekernel.Value { return valuekernel.NewString("default") },
	})
	return o
}

func TestSetPropertyValueFiresPropertyValueChanged(t *testing.T) {
	bus := coreevent.NewBus()
	var events []coreevent.Event
	bus.Subscribe(func(e coreevent.Event) { events = append(events, e) })

	o := newTestObject(bus)
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewFloat(2.5)))

	require.Len(t, events, 1)
	require.Equal(t, coreevent.PropertyValueChanged, events[0].ID)
	require.Equal(t, "Gain", events[0].Params["Name"])

	v, err := o.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(2.5)))
}

func TestSetPropertyValueSameValueIsIgnored(t *testing.T) {
	o := newTestObject(nil)
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewFloat(3)))

	err := o.SetPropertyValue("Gain", valuekernel.NewFloat(3))
	require.ErrorIs(t, err, daqerr.Of(daqerr.Ignored))
}

func TestSetPropertyValueRejectsReadOnly(t *testing.T) {
	o := newTestObject(nil)
	err := o.SetPropertyValue("Label", valuekernel.NewString("x"))
	require.ErrorIs(t, err, daqerr.Of(daqerr.AccessDenied))

	require.NoError(t, o.SetProtectedPropertyValue("Label", valuekernel.NewString("x")))
}

func TestSetPropertyValueOnFrozenObjectFails(t *testing.T) {
	o := newTestObject(nil)
	o.Freeze()
	err := o.SetPropertyValue("Gain", valuekernel.NewFloat(9))
	require.ErrorIs(t, err, daqerr.Of(daqerr.Frozen))
}

func TestIntWidensToFloatProperty(t *testing.T) {
	o := newTestObject(nil)
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewInt(4)))
	v, err := o.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(4)))
}

func TestClearPropertyValueRevertsToDefaultAndFiresEvent(t *testing.T) {
	bus := coreevent.NewBus()
	var events []coreevent.Event
	bus.Subscribe(func(e coreevent.Event) { events = append(events, e) })

	o := newTestObject(bus)
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewFloat(9)))
	require.NoError(t, o.ClearPropertyValue("Gain"))

	v, err := o.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(1.0)))

	last := events[len(events)-1]
	require.Equal(t, coreevent.PropertyValueChanged, last.ID)
	require.True(t, last.Params["Value"].(valuekernel.Value).Equals(valuekernel.NewFloat(1.0)))
}

func TestBeginEndUpdateBuffersAndFlushesOnce(t *testing.T) {
	bus := coreevent.NewBus()
	var events []coreevent.Event
	bus.Subscribe(func(e coreevent.Event) { events = append(events, e) })

	o := newTestObject(bus)
	o.BeginUpdate()
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewFloat(2)))

	// No PropertyValueChanged yet; write is buffered.
	require.Empty(t, events)

	require.NoError(t, o.EndUpdate())

	require.Len(t, events, 2)
	require.Equal(t, coreevent.PropertyValueChanged, events[0].ID)
	require.Equal(t, coreevent.PropertyObjectUpdateEnd, events[1].ID)

	v, err := o.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(2)))
}

func TestNestedPathResolvesThroughChildObject(t *testing.T) {
	parent := NewPropertyObject("", nil, nil, nil)
	child := newTestObject(nil)
	parent.AddChildObject("Input", child)

	require.NoError(t, parent.SetPropertyValue("Input.Gain", valuekernel.NewFloat(7)))
	v, err := parent.GetPropertyValue("Input.Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(7)))
}

func TestIndexedPropertyPath(t *testing.T) {
	o := NewPropertyObject("", nil, nil, nil)
	require.NoError(t, o.AddProperty(&Property{
		Name:      "Items",
		ValueType: valuekernel.CoreList,
		Default: func() valuekernel.Value {
			return valuekernel.NewList(valuekernel.IfaceList, valuekernel.NewInt(1), valuekernel.NewInt(2))
		},
	}))

	require.NoError(t, o.SetPropertyValue("Items[1]", valuekernel.NewInt(99)))
	v, err := o.GetPropertyValue("Items[1]")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewInt(99)))
}

func TestReferencePropertyDelegatesToTarget(t *testing.T) {
	o := newTestObject(nil)

	ref, err := eval.Parse("%Gain")
	require.NoError(t, err)
	require.NoError(t, o.AddProperty(&Property{
		Name:               "GainAlias",
		ValueType:          valuekernel.CoreFloat,
		ReferencedProperty: ref,
	}))

	require.NoError(t, o.SetPropertyValue("GainAlias", valuekernel.NewFloat(5)))
	v, err := o.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.True(t, v.Equals(valuekernel.NewFloat(5)))
}

func TestLockedObjectRejectsWritesUnlessRemoteUpdate(t *testing.T) {
	o := newTestObject(nil)
	o.SetLocked(true)

	err := o.SetPropertyValue("Gain", valuekernel.NewFloat(2))
	require.ErrorIs(t, err, daqerr.Of(daqerr.AccessDenied))

	o.SetRemoteUpdate(true)
	require.NoError(t, o.SetPropertyValue("Gain", valuekernel.NewFloat(2)))
}

func TestCallPropertyInvokesConstCallableOnLockedObject(t *testing.T) {
	o := NewPropertyObject("", nil, nil, nil)
	require.NoError(t, o.AddProperty(&Property{
		Name:     "Double",
		Callable: true,
		Arity:    1,
		Const:    true,
		Default: func() valuekernel.Value {
			return valuekernel.NewFunc(1, func(args []valuekernel.Value) (valuekernel.Value, error) {
				n := args[0].(*valuekernel.Int)
				return valuekernel.NewInt(n.V * 2), nil
			})
		},
	}))
	o.SetLocked(true)

	result, err := o.CallProperty("Double", []valuekernel.Value{valuekernel.NewInt(21)})
	require.NoError(t, err)
	require.True(t, result.Equals(valuekernel.NewInt(42)))
}

func TestCallPropertyRejectsNonConstOnLockedObject(t *testing.T) {
	o := NewPropertyObject("", nil, nil, nil)
	require.NoError(t, o.AddProperty(&Property{
		Name:     "Reset",
		Callable: true,
		Arity:    0,
		Const:    false,
		Default: func() valuekernel.Value {
			return valuekernel.NewProc(0, func(args []valuekernel.Value) error { return nil })
		},
	}))
	o.SetLocked(true)

	_, err := o.CallProperty("Reset", nil)
	require.ErrorIs(t, err, daqerr.Of(daqerr.AccessDenied))
}

func TestValidatorRejectsValue(t *testing.T) {
	o := NewPropertyObject("", nil, nil, nil)
	alwaysFail, err := eval.Parse("1 == 2")
	require.NoError(t, err)

	require.NoError(t, o.AddProperty(&Property{
		Name:      "Checked",
		ValueType: valuekernel.CoreInt,
		Validator: alwaysFail,
		Default:   func() valuekernel.Value { return valuekernel.NewInt(0) },
	}))

	err = o.SetPropertyValue("Checked", valuekernel.NewInt(1))
	require.ErrorIs(t, err, daqerr.Of(daqerr.ValidateFailed))
}
