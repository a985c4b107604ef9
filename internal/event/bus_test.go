package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("s1", 16)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: MessageAppended, SessionID: "s1", Data: i})
	}

	for i := 0; i < 5; i++ {
		evt := <-sub.Events()
		assert.Equal(t, i, evt.Data)
	}
	assert.Equal(t, uint64(0), sub.Dropped())
}

func TestSessionFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	s1 := bus.Subscribe("s1", 16)
	s2 := bus.Subscribe("s2", 16)
	all := bus.Subscribe("", 16)
	defer s1.Close()
	defer s2.Close()
	defer all.Close()

	bus.Publish(Event{Type: SessionStatus, SessionID: "s1"})
	bus.Publish(Event{Type: SessionStatus, SessionID: "s2"})

	evt := <-s1.Events()
	assert.Equal(t, "s1", evt.SessionID)
	select {
	case extra := <-s1.Events():
		t.Fatalf("unexpected event for s1: %+v", extra)
	default:
	}

	evt = <-s2.Events()
	assert.Equal(t, "s2", evt.SessionID)

	first := <-all.Events()
	second := <-all.Events()
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, "s2", second.SessionID)
}

func TestDropOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("s1", 2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: MessageAppended, SessionID: "s1", Data: i})
	}

	// Buffer of 2 kept only the newest two events.
	assert.Equal(t, uint64(3), sub.Dropped())
	evt := <-sub.Events()
	assert.Equal(t, 3, evt.Data)
	evt = <-sub.Events()
	assert.Equal(t, 4, evt.Data)
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("s1", 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: ToolCallStarted, SessionID: "s1", Data: i})
		}
		close(done)
	}()

	<-done
	assert.Greater(t, sub.Dropped(), uint64(0))
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("s1", 4)
	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after the subscriber left must not panic.
	bus.Publish(Event{Type: SessionStatus, SessionID: "s1"})
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	subs := make([]*Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		subs = append(subs, bus.Subscribe(fmt.Sprintf("s%d", i), 4))
	}

	require.NoError(t, bus.Close())

	for _, sub := range subs {
		_, open := <-sub.Events()
		assert.False(t, open)
	}

	// Idempotent, and post-close operations are inert.
	require.NoError(t, bus.Close())
	bus.Publish(Event{Type: SessionStatus, SessionID: "s0"})

	late := bus.Subscribe("s0", 4)
	_, open := <-late.Events()
	assert.False(t, open)
	late.Close()
}
