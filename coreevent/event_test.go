package coreevent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	id      string
	enabled bool
}

func (f *fakeSender) GlobalID() string      { return f.id }
func (f *fakeSender) EventsEnabled() bool   { return f.enabled }

func TestPublishDeliversToAllListeners(t *testing.T) {
	bus := NewBus()
	var a, b []Event
	bus.Subscribe(func(e Event) { a = append(a, e) })
	bus.Subscribe(func(e Event) { b = append(b, e) })

	bus.Publish(Event{ID: ComponentAdded, Sender: &fakeSender{id: "/dev", enabled: true}})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, "ComponentAdded", a[0].Name)
}

func TestPublishDroppedWhenSenderDisabled(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Publish(Event{ID: PropertyValueChanged, Sender: &fakeSender{id: "/dev/prop", enabled: false}})

	require.Empty(t, got, "events must be dropped while the sending component is disabled")
}

func TestPublishWithNilSenderAlwaysDelivers(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Publish(Event{ID: TypeAdded, Params: map[string]interface{}{"Type": "MyClass"}})

	require.Len(t, got, 1)
	require.Equal(t, "MyClass", got[0].Params["Type"])
}

func TestEventNameDefaultsFromID(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(func(e Event) { got = e })

	bus.Publish(Event{ID: TagsChanged})
	require.Equal(t, "TagsChanged", got.Name)
}
