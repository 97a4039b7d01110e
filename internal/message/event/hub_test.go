package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishScopedByType(t *testing.T) {
	hub := NewHub()
	_, created, cancelA := hub.Subscribe(TypeMessageCreated, 8)
	defer cancelA()
	_, other, cancelB := hub.Subscribe("ticket.closed", 8)
	defer cancelB()

	hub.Publish(Event{Type: TypeMessageCreated})

	select {
	case <-created:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected message.created subscriber to receive event")
	}

	select {
	case <-other:
		t.Fatalf("did not expect ticket.closed subscriber to receive message.created")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestHubCancelUnsubscribe(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(TypeMessageCreated, 8)
	require.Equal(t, 1, hub.Count(TypeMessageCreated))
	cancel()
	cancel()
	assert.Equal(t, 0, hub.Count(TypeMessageCreated))

	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected stream to be closed after cancel")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for stream close")
	}

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(Event{Type: TypeMessageCreated})
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	var dropped atomic.Int32
	hub := NewHub(WithDropHook(func(Type) { dropped.Add(1) }))
	_, slow, cancelSlow := hub.Subscribe(TypeMessageCreated, 1)
	defer cancelSlow()
	_, fast, cancelFast := hub.Subscribe(TypeMessageCreated, 8)
	defer cancelFast()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			hub.Publish(Event{Type: TypeMessageCreated, Data: json.RawMessage(`{}`)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}

	assert.Len(t, slow, 1)
	assert.Len(t, fast, 3)
	assert.Equal(t, int32(2), dropped.Load())
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(TypeMessageCreated, 16)
	defer cancel()

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: TypeMessageCreated, Data: json.RawMessage([]byte{byte('0' + i)})})
	}
	for i := 0; i < 10; i++ {
		ev := <-stream
		assert.Equal(t, string([]byte{byte('0' + i)}), string(ev.Data))
	}
}

func TestHubConcurrentPublishReachesOpenSubscribers(t *testing.T) {
	hub := NewHub()
	const subscribers = 5
	const events = 20

	streams := make([]<-chan Event, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		_, ch, cancel := hub.Subscribe(TypeMessageCreated, events)
		defer cancel()
		streams = append(streams, ch)
	}

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Publish(Event{Type: TypeMessageCreated})
		}()
	}
	wg.Wait()

	for _, ch := range streams {
		assert.Len(t, ch, events)
	}
}

func TestHubCloseClosesStreamsAndRejectsSubscribers(t *testing.T) {
	hub := NewHub()
	_, stream, cancel := hub.Subscribe(TypeMessageCreated, 1)
	hub.Close()
	cancel()

	_, ok := <-stream
	assert.False(t, ok)

	id, late, _ := hub.Subscribe(TypeMessageCreated, 1)
	assert.Empty(t, id)
	_, ok = <-late
	assert.False(t, ok)
	hub.Publish(Event{Type: TypeMessageCreated})
}

func TestNilHubIsInert(t *testing.T) {
	var hub *Hub
	hub.Publish(Event{Type: TypeMessageCreated})
	_, ch, cancel := hub.Subscribe(TypeMessageCreated, 1)
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Count(TypeMessageCreated))
}

func TestNewMessageCreated(t *testing.T) {
	ev, err := NewMessageCreated(SourceInboxSend, map[string]string{"id": "t1"}, map[string]string{"id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, TypeMessageCreated, ev.Type)
	assert.JSONEq(t, `{"source":"inbox.send","ticket":{"id":"t1"},"message":{"id":"m1"}}`, string(ev.Data))
}
