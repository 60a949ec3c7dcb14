package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// startHub runs a hub until the test ends and waits for it to stop.
func startHub(t testing.TB, st store.MessageStore, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, opts...)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

// connect registers a client and consumes its Connected event.
func connect(t testing.TB, hub *Hub, id, name string) *Client {
	t.Helper()

	c := NewClient(id, name)
	require.NoError(t, hub.RegisterClient(c))
	mustEvent[Connected](t, c.Events)
	return c
}

// join sends JoinRoom and waits for the confirmation.
func join(t testing.TB, c *Client, room string) JoinSuccess {
	t.Helper()

	c.Commands <- JoinRoom{Room: room}
	return mustEvent[JoinSuccess](t, c.Events)
}

// mustEvent returns the next event of type T, skipping any other events.
func mustEvent[T Event](t testing.TB, ch <-chan Event) T {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				var zero T
				t.Fatalf("events closed while waiting for %T", zero)
			}
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-timeout:
			var zero T
			t.Fatalf("expected event %T not received", zero)
		}
	}
}

// nextEvent returns the next event without filtering.
func nextEvent(t testing.TB, ch <-chan Event) Event {
	t.Helper()

	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

// noEvent asserts that nothing arrives on ch for a short while.
func noEvent(t testing.TB, ch <-chan Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %T: %+v", ev, ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// flush round-trips a ping so every earlier command of c has been handled
// and returns the events that arrived before the pong.
func flush(t testing.TB, c *Client) []Event {
	t.Helper()

	c.Commands <- Ping{}
	var seen []Event
	for {
		ev := nextEvent(t, c.Events)
		if _, ok := ev.(Pong); ok {
			return seen
		}
		seen = append(seen, ev)
	}
}

func participantNames(ps []Participant) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	return names
}
