package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
	"github.com/vovakirdan/wirechat-relay/internal/store/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubConnectAssignsPlaceholderName(t *testing.T) {
	hub := startHub(t, nil)

	c := NewClient("a", "")
	require.NoError(t, hub.RegisterClient(c))

	ev := mustEvent[Connected](t, c.Events)
	assert.Equal(t, "a", ev.UserID)
	assert.Equal(t, "Connected to the chat server. You can now join a room.", ev.Message)
	assert.False(t, ev.ServerTime.IsZero())

	c.Commands <- JoinRoom{Room: "lobby"}
	joined := mustEvent[JoinSuccess](t, c.Events)
	require.Len(t, joined.Participants, 1)
	assert.Regexp(t, `^User-[0-9a-f]{8}$`, joined.Participants[0].Name)
}

func TestHubLobbyScenario(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	joined := join(t, alice, "lobby")
	assert.Equal(t, "You have joined the room: lobby", joined.Message)
	assert.Equal(t, []string{"alice"}, participantNames(joined.Participants))
	assert.Empty(t, joined.History)

	joined = join(t, bob, "lobby")
	assert.Equal(t, []string{"alice", "bob"}, participantNames(joined.Participants))

	userJoined := mustEvent[UserJoined](t, alice.Events)
	assert.Equal(t, "bob has joined the room!", userJoined.Message)
	assert.Equal(t, "b", userJoined.UserID)
	assert.Equal(t, []string{"alice", "bob"}, participantNames(userJoined.Participants))

	alice.Commands <- SendMessage{Room: "lobby", Text: "hi"}
	sent := mustEvent[MessageSent](t, alice.Events)
	received := mustEvent[MessageReceived](t, bob.Events)
	assert.Equal(t, sent.Message, received.Message)
	assert.Equal(t, "alice", received.Message.Sender)
	assert.Equal(t, "hi", received.Message.Text)
	assert.Equal(t, "lobby", received.Message.Room)

	// The sender only sees message_sent.
	assert.Empty(t, flush(t, alice))

	bob.Commands <- LeaveRoom{Room: "lobby"}
	left := mustEvent[LeaveSuccess](t, bob.Events)
	assert.Equal(t, "You have left the room: lobby", left.Message)

	userLeft := mustEvent[UserLeft](t, alice.Events)
	assert.Equal(t, "bob has left the room.", userLeft.Message)
	assert.Equal(t, []string{"alice"}, participantNames(userLeft.Participants))
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, alice, "lobby")
	join(t, bob, "lobby")
	mustEvent[UserJoined](t, alice.Events)

	joined := join(t, bob, "lobby")
	assert.Equal(t, []string{"alice", "bob"}, participantNames(joined.Participants))

	// A re-join is still announced, but membership is unchanged.
	again := mustEvent[UserJoined](t, alice.Events)
	assert.Equal(t, []string{"alice", "bob"}, participantNames(again.Participants))
	assert.Len(t, hub.Participants("lobby"), 2)
}

func TestHubJoinUpdatesDisplayNameAndStatus(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- UpdateStatus{Status: "busy"}
	flush(t, alice)

	alice.Commands <- JoinRoom{Room: "lobby", Username: "Alice B."}
	joined := mustEvent[JoinSuccess](t, alice.Events)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, "Alice B.", joined.Participants[0].Name)
	assert.Equal(t, StatusOnline, joined.Participants[0].Status)
}

func TestHubJoinRequiresRoom(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- JoinRoom{}

	ev := mustEvent[ErrorEvent](t, alice.Events)
	assert.Equal(t, ErrCodeBadRequest, ev.Err.Code)
	assert.Equal(t, "Room ID is required.", ev.Err.Message)
	assert.ErrorIs(t, ev.Err, ErrBadRequest)
}

func TestHubLeaveIsIdempotent(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, alice, "lobby")
	join(t, bob, "lobby")

	bob.Commands <- LeaveRoom{Room: "lobby"}
	mustEvent[LeaveSuccess](t, bob.Events)
	mustEvent[UserLeft](t, alice.Events)

	bob.Commands <- LeaveRoom{Room: "lobby"}
	mustEvent[LeaveSuccess](t, bob.Events)
	bob.Commands <- LeaveRoom{Room: "nowhere"}
	mustEvent[LeaveSuccess](t, bob.Events)

	assert.Equal(t, []string{"alice"}, participantNames(hub.Participants("lobby")))
	flush(t, bob)
	noEvent(t, alice.Events)
}

func TestHubLastLeaveDestroysRoom(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	hub := startHub(t, nil, WithMetrics(m))

	alice := connect(t, hub, "a", "alice")
	join(t, alice, "lobby")
	alice.Commands <- SendMessage{Room: "lobby", Text: "hello"}
	mustEvent[MessageSent](t, alice.Events)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Rooms))

	alice.Commands <- LeaveRoom{Room: "lobby"}
	mustEvent[LeaveSuccess](t, alice.Events)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Rooms))

	// The room starts over with an empty cache.
	joined := join(t, alice, "lobby")
	assert.Empty(t, joined.History)
}

func TestHubMessagesKeepSendOrder(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, alice, "lobby")
	join(t, bob, "lobby")

	const n = 50
	for i := range n {
		alice.Commands <- SendMessage{Room: "lobby", Text: fmt.Sprintf("m%d", i)}
	}

	ids := make(map[string]struct{}, n)
	var last time.Time
	for i := range n {
		ev := mustEvent[MessageReceived](t, bob.Events)
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.Message.Text)
		assert.True(t, ev.Message.CreatedAt.After(last), "timestamps must increase")
		last = ev.Message.CreatedAt
		ids[ev.Message.ID] = struct{}{}
	}
	assert.Len(t, ids, n)

	// A late joiner sees the same order in the cached history.
	carol := connect(t, hub, "c", "carol")
	joined := join(t, carol, "lobby")
	require.Len(t, joined.History, n)
	for i, msg := range joined.History {
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Text)
	}
}

func TestHubConcurrentRoomsKeepOneOrder(t *testing.T) {
	hub := startHub(t, nil)

	observer := NewClientWithBuffer("o", "observer", 512)
	require.NoError(t, hub.RegisterClient(observer))
	mustEvent[Connected](t, observer.Events)
	join(t, observer, "r1")

	const (
		senders = 4
		perRoom = 25
	)
	clients := make([]*Client, senders)
	for i := range clients {
		clients[i] = NewClientWithBuffer(fmt.Sprintf("s%d", i), fmt.Sprintf("sender%d", i), 512)
		require.NoError(t, hub.RegisterClient(clients[i]))
		mustEvent[Connected](t, clients[i].Events)
		join(t, clients[i], "r1")
		join(t, clients[i], "r2")
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for range 2 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.Participants("r1")
					hub.Participants("r2")
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range perRoom {
				c.Commands <- SendMessage{Room: "r1", Text: fmt.Sprintf("s%d-r1-%d", i, n)}
				c.Commands <- SendMessage{Room: "r2", Text: fmt.Sprintf("s%d-r2-%d", i, n)}
			}
		}()
	}
	wg.Wait()

	total := senders * perRoom
	received := make([]Message, 0, total)
	for range total {
		received = append(received, mustEvent[MessageReceived](t, observer.Events).Message)
	}
	close(stop)
	readers.Wait()

	// Each sender's messages arrive in the order they were sent.
	next := make(map[string]int, senders)
	for _, msg := range received {
		assert.Equal(t, "r1", msg.Room)
		want := fmt.Sprintf("%s-r1-%d", msg.SenderID, next[msg.SenderID])
		assert.Equal(t, want, msg.Text)
		next[msg.SenderID]++
	}

	late := connect(t, hub, "late", "late")
	joined := join(t, late, "r1")
	require.Len(t, joined.History, total)
	for i, msg := range joined.History {
		assert.Equal(t, received[i].ID, msg.ID)
		assert.Equal(t, received[i].Text, msg.Text)
	}
}

func TestHubHistoryCacheIsBounded(t *testing.T) {
	hub := startHub(t, nil, WithHistoryLimits(3, 20))

	alice := connect(t, hub, "a", "alice")
	join(t, alice, "lobby")
	for i := range 5 {
		alice.Commands <- SendMessage{Room: "lobby", Text: fmt.Sprintf("m%d", i)}
		mustEvent[MessageSent](t, alice.Events)
	}

	bob := connect(t, hub, "b", "bob")
	joined := join(t, bob, "lobby")
	require.Len(t, joined.History, 3)
	assert.Equal(t, "m2", joined.History[0].Text)
	assert.Equal(t, "m4", joined.History[2].Text)
}

func TestHubMessageIDsUniqueWithFrozenClock(t *testing.T) {
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub := startHub(t, nil, WithClock(func() time.Time { return frozen }))

	alice := connect(t, hub, "a", "alice")
	join(t, alice, "lobby")

	alice.Commands <- SendMessage{Room: "lobby", Text: "one", AccountID: "acc-1"}
	first := mustEvent[MessageSent](t, alice.Events).Message
	alice.Commands <- SendMessage{Room: "lobby", Text: "two", AccountID: "acc-1"}
	second := mustEvent[MessageSent](t, alice.Events).Message

	assert.Equal(t, "msg-2024-05-01T12:00:00.000Z-acc-1", first.ID)
	assert.Equal(t, "msg-2024-05-01T12:00:00.001Z-acc-1", second.ID)
	assert.Equal(t, "2024-05-01T12:00:00.001Z", second.Timestamp())
}

func TestHubSendValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockMessageStore(ctrl)
	st.EXPECT().Insert(gomock.Any(), gomock.Any()).Times(0)

	hub := startHub(t, st)
	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, bob, "lobby")

	tests := []struct {
		name    string
		cmd     SendMessage
		code    string
		message string
	}{
		{"missing room", SendMessage{Text: "hi"}, ErrCodeBadRequest, "Room ID and message are required."},
		{"missing text", SendMessage{Room: "lobby"}, ErrCodeBadRequest, "Room ID and message are required."},
		{"unknown room", SendMessage{Room: "ghost", Text: "hi", AccountID: "acc"}, ErrCodeRoomNotFound, "Room does not exist or you are not in this room."},
		{"not a member", SendMessage{Room: "lobby", Text: "hi", AccountID: "acc"}, ErrCodeNotInRoom, "You are not in this room."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alice.Commands <- tt.cmd
			events := flush(t, alice)
			require.Len(t, events, 1)
			ev, ok := events[0].(ErrorEvent)
			require.True(t, ok, "expected error event, got %T", events[0])
			assert.Equal(t, tt.code, ev.Err.Code)
			assert.Equal(t, tt.message, ev.Err.Message)
		})
	}

	flush(t, bob)
	noEvent(t, bob.Events)
}

func TestHubDisconnectBroadcastsToEveryRoom(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	hub := startHub(t, nil, WithMetrics(m))

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	carol := connect(t, hub, "c", "carol")

	join(t, alice, "lobby")
	join(t, alice, "games")
	join(t, alice, "solo")
	join(t, bob, "lobby")
	join(t, carol, "games")
	flush(t, alice)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Connections))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Rooms))

	hub.UnregisterClient(alice)

	left := mustEvent[UserLeft](t, bob.Events)
	assert.Equal(t, "lobby", left.Room)
	assert.Equal(t, "alice has left the room.", left.Message)
	assert.Equal(t, []string{"bob"}, participantNames(left.Participants))

	left = mustEvent[UserLeft](t, carol.Events)
	assert.Equal(t, "games", left.Room)

	// Events are closed after the disconnect is processed.
	for range alice.Events {
	}

	flush(t, bob)
	flush(t, carol)
	noEvent(t, bob.Events)
	noEvent(t, carol.Events)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Rooms))
	assert.Empty(t, hub.Participants("solo"))

	// A second disconnect is a no-op.
	hub.UnregisterClient(alice)
	flush(t, bob)
}

func TestHubGetParticipants(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, alice, "lobby")
	join(t, bob, "lobby")

	// Non-members may ask too.
	carol := connect(t, hub, "c", "carol")
	carol.Commands <- GetParticipants{Room: "lobby"}
	ev := mustEvent[ParticipantsList](t, carol.Events)
	assert.Equal(t, "lobby", ev.Room)
	assert.Equal(t, []string{"alice", "bob"}, participantNames(ev.Participants))

	carol.Commands <- GetParticipants{Room: "ghost"}
	ev = mustEvent[ParticipantsList](t, carol.Events)
	assert.NotNil(t, ev.Participants)
	assert.Empty(t, ev.Participants)

	carol.Commands <- GetParticipants{}
	errEv := mustEvent[ErrorEvent](t, carol.Events)
	assert.Equal(t, "Room ID is required.", errEv.Err.Message)
}

func TestHubUpdateStatus(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	carol := connect(t, hub, "c", "carol")
	join(t, alice, "lobby")
	join(t, alice, "games")
	join(t, bob, "lobby")
	join(t, carol, "games")
	flush(t, alice)

	alice.Commands <- UpdateStatus{Status: "away"}

	for _, c := range []*Client{alice, bob, carol} {
		ev := mustEvent[StatusUpdated](t, c.Events)
		assert.Equal(t, "a", ev.UserID)
		assert.Equal(t, StatusOnline, ev.OldStatus)
		assert.Equal(t, StatusAway, ev.NewStatus)
	}

	// Alice is in two rooms and receives one notification per room.
	second := mustEvent[StatusUpdated](t, alice.Events)
	assert.Equal(t, StatusAway, second.NewStatus)

	alice.Commands <- UpdateStatus{Status: "sleeping"}
	errEv := mustEvent[ErrorEvent](t, alice.Events)
	assert.Equal(t, "Valid status is required (online, away, busy).", errEv.Err.Message)

	status := hub.Participants("lobby")[0].Status
	assert.Equal(t, StatusAway, status)
}

func TestHubUpdateStatusWithoutRooms(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- UpdateStatus{Status: "busy"}
	assert.Empty(t, flush(t, alice))
}

func TestHubPersistsMessagesWithAccount(t *testing.T) {
	st := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	hub := startHub(t, st, WithMetrics(m))

	alice := connect(t, hub, "a", "alice")
	join(t, alice, "lobby")

	alice.Commands <- SendMessage{Room: "lobby", Text: "kept", AccountID: "acc-1", Wallet: "0xabc"}
	mustEvent[MessageSent](t, alice.Events)
	alice.Commands <- SendMessage{Room: "lobby", Text: "relayed only"}
	mustEvent[MessageSent](t, alice.Events)

	require.Eventually(t, func() bool {
		recs, err := st.QueryByRoom(context.Background(), "lobby", 0)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := st.QueryByRoom(context.Background(), "lobby", 0)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", recs[0].SenderID)
	assert.Equal(t, "alice", recs[0].SenderName)
	assert.Equal(t, "kept", recs[0].Body)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Messages))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistDropped))
}

func TestHubShutdownPersistsEveryAcceptedMessage(t *testing.T) {
	for round := range 20 {
		st := memory.New()
		m := metrics.NewRelay(prometheus.NewRegistry())
		hub := NewHub(st, WithMetrics(m), WithPersistQueue(100000))

		ctx, cancel := context.WithCancel(context.Background())
		go hub.Run(ctx)

		alice := connect(t, hub, "a", "alice")
		join(t, alice, "lobby")

		sending := make(chan struct{})
		go func() {
			defer close(sending)
			for i := 0; ; i++ {
				select {
				case alice.Commands <- SendMessage{Room: "lobby", Text: fmt.Sprintf("m%d", i), AccountID: "acc"}:
				case <-hub.Done():
					return
				}
			}
		}()

		require.Eventually(t, func() bool {
			return testutil.ToFloat64(m.Messages) >= 20
		}, 2*time.Second, time.Millisecond)
		cancel()
		<-hub.Done()
		<-sending

		recs, err := st.QueryByRoom(context.Background(), "lobby", 0)
		require.NoError(t, err)
		accepted := testutil.ToFloat64(m.Messages)
		require.Equal(t, accepted, float64(len(recs))+testutil.ToFloat64(m.PersistDropped), "round %d", round)
	}
}

func TestHubStorageFailureDoesNotBlockDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockMessageStore(ctrl)
	st.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	hub := startHub(t, st, WithMetrics(m))

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	join(t, alice, "lobby")
	join(t, bob, "lobby")

	alice.Commands <- SendMessage{Room: "lobby", Text: "hi", AccountID: "acc-1"}
	mustEvent[MessageSent](t, alice.Events)
	mustEvent[MessageReceived](t, bob.Events)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PersistFailures) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubGetHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockMessageStore(ctrl)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st.EXPECT().QueryByRoom(gomock.Any(), "lobby", 20).Return([]store.Record{
		{ID: "r1", RoomID: "lobby", SenderID: "acc-1", SenderName: "alice", Body: "first", SentAt: at},
		{ID: "r2", RoomID: "lobby", SenderID: "acc-2", SenderName: "bob", Body: "second", SentAt: at.Add(time.Second)},
	}, nil)
	st.EXPECT().QueryByRoom(gomock.Any(), "ghost", 20).Return(nil, nil)
	st.EXPECT().QueryByRoom(gomock.Any(), "broken", 20).Return(nil, errors.New("connection reset"))

	hub := startHub(t, st)
	alice := connect(t, hub, "a", "alice")

	alice.Commands <- GetHistory{Room: "lobby"}
	ev := mustEvent[History](t, alice.Events)
	require.Len(t, ev.Messages, 2)
	assert.Equal(t, "first", ev.Messages[0].Text)
	assert.Equal(t, "alice", ev.Messages[0].Sender)
	assert.Equal(t, "acc-2", ev.Messages[1].AccountID)

	alice.Commands <- GetHistory{Room: "ghost"}
	ev = mustEvent[History](t, alice.Events)
	assert.NotNil(t, ev.Messages)
	assert.Empty(t, ev.Messages)

	alice.Commands <- GetHistory{Room: "broken"}
	ev = mustEvent[History](t, alice.Events)
	assert.Empty(t, ev.Messages)
}

func TestHubGetHistoryWithoutStore(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- GetHistory{Room: "lobby"}
	ev := mustEvent[History](t, alice.Events)
	assert.Equal(t, "lobby", ev.Room)
	assert.Empty(t, ev.Messages)

	assert.Empty(t, hub.RoomHistory(context.Background(), "lobby"))
}

func TestHubPing(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub := startHub(t, nil, WithClock(func() time.Time { return now }))

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- Ping{}
	ev := mustEvent[Pong](t, alice.Events)
	assert.Equal(t, now, ev.Time)
}

func TestHubDropsEventsForFullOutbox(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	hub := startHub(t, nil, WithMetrics(m))

	// The Connected event fills the outbox.
	slow := NewClientWithBuffer("s", "slow", 1)
	require.NoError(t, hub.RegisterClient(slow))
	slow.Commands <- Ping{}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsDropped) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := nextEvent(t, slow.Events).(Connected)
	assert.True(t, ok)
}

func TestHubRegisterAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	err := hub.RegisterClient(NewClient("a", "alice"))
	assert.ErrorIs(t, err, ErrHubStopped)
}
