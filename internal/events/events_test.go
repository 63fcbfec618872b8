package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(TypePaymentConfirmed, func(e Event) error {
		got = append(got, e)
		return nil
	})

	bus.Publish(Event{Type: TypePaymentConfirmed, Payload: []byte(`{"order_ref":"CS-1"}`)})
	bus.Publish(Event{Type: TypeRefundRequired, Payload: []byte(`{}`)})

	require.Len(t, got, 1)
	assert.Equal(t, TypePaymentConfirmed, got[0].Type)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	var first, second int
	bus.Subscribe(TypeRefundRequired, func(Event) error { first++; return nil })
	bus.Subscribe(TypeRefundRequired, func(Event) error { second++; return nil })

	bus.Publish(Event{Type: TypeRefundRequired})

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestPublishJSON(t *testing.T) {
	bus := NewBus()

	var payload []byte
	bus.Subscribe(TypeVerdictConflict, func(e Event) error {
		payload = e.Payload
		return nil
	})

	require.NoError(t, bus.PublishJSON(TypeVerdictConflict, map[string]string{"order_ref": "CS-1"}))
	assert.JSONEq(t, `{"order_ref":"CS-1"}`, string(payload))
}

func TestPublishJSON_UnmarshalablePayload(t *testing.T) {
	bus := NewBus()
	assert.Error(t, bus.PublishJSON(TypeVerdictConflict, make(chan int)))
}
