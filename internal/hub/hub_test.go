package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeclash/backend/internal/game"
)

func TestHubPublishDeliversToSubscribers(t *testing.T) {
	h := New(zerolog.Nop())

	client := make(Client, 4)
	h.Subscribe("games:1", client)

	h.Publish("games:1", game.Event{Type: "ENTER", Payload: map[string]interface{}{"userId": float64(7)}})

	select {
	case message := <-client:
		var event game.Event
		require.NoError(t, json.Unmarshal(message, &event))
		assert.Equal(t, "ENTER", event.Type)
		payload, ok := event.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(7), payload["userId"])
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestHubTopicsAreIsolated(t *testing.T) {
	h := New(zerolog.Nop())

	room1 := make(Client, 1)
	room2 := make(Client, 1)
	h.Subscribe("games:1", room1)
	h.Subscribe("games:2", room2)

	h.Publish("games:1", game.Event{Type: "READY"})

	assert.Len(t, room1, 1)
	assert.Len(t, room2, 0)
}

func TestHubUnsubscribeClosesClient(t *testing.T) {
	h := New(zerolog.Nop())

	client := make(Client, 1)
	h.Subscribe("lobby", client)
	h.Unsubscribe("lobby", client)

	_, open := <-client
	assert.False(t, open)

	// A second unsubscribe of the same client must not panic.
	h.Unsubscribe("lobby", client)
}

func TestHubSlowClientDoesNotBlockPublish(t *testing.T) {
	h := New(zerolog.Nop())

	slow := make(Client) // no buffer, nobody reading
	fast := make(Client, 8)
	h.Subscribe("games:1", slow)
	h.Subscribe("games:1", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish("games:1", game.Event{Type: "SCORE"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow client")
	}
	assert.Len(t, fast, 5)
}

func TestHubPublishToEmptyTopicIsNoop(t *testing.T) {
	h := New(zerolog.Nop())
	h.Publish("games:404", game.Event{Type: "ENTER"})
}
