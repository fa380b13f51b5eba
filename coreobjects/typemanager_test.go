package coreobjects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/internal/daqerr"
)

func TestAddClassTwiceFails(t *testing.T) {
	tm := NewTypeManager(nil)
	require.NoError(t, tm.AddClass(&Class{Name: "Base"}))
	err := tm.AddClass(&Class{Name: "Base"})
	require.ErrorIs(t, err, daqerr.Of(daqerr.AlreadyExists))
}

func TestResolvedPropertiesMergesParentChain(t *testing.T) {
	tm := NewTypeManager(nil)
	require.NoError(t, tm.AddClass(&Class{
		Name:       "Base",
		Properties: []*Property{{Name: "A"}, {Name: "B"}},
	}))
	require.NoError(t, tm.AddClass(&Class{
		Name:       "Derived",
		Parent:     "Base",
		Properties: []*Property{{Name: "B"}, {Name: "C"}},
	}))

	props, err := tm.ResolvedProperties("Derived")
	require.NoError(t, err)

	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	require.Equal(t, []string{"A", "B", "C"}, names)
}

func TestResolvedPropertiesUnknownClassFails(t *testing.T) {
	tm := NewTypeManager(nil)
	_, err := tm.ResolvedProperties("Nope")
	require.ErrorIs(t, err, daqerr.Of(daqerr.NotFound))
}

func TestRemoveClassFiresTypeRemoved(t *testing.T) {
	bus := coreevent.NewBus()
	var events []coreevent.Event
	bus.Subscribe(func(e coreevent.Event) { events = append(events, e) })

	tm := NewTypeManager(bus)
	require.NoError(t, tm.AddClass(&Class{Name: "Base"}))
	require.NoError(t, tm.RemoveClass("Base"))

	require.Len(t, events, 2)
	require.Equal(t, coreevent.TypeAdded, events[0].ID)
	require.Equal(t, coreevent.TypeRemoved, events[1].ID)
	require.Equal(t, "Base", events[1].Params["TypeName"])
}
