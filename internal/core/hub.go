package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// Defaults applied by NewHub.
const (
	DefaultHistoryCacheLimit = 100
	DefaultHistoryQueryLimit = 20
	DefaultStoreTimeout      = 5 * time.Second
	DefaultPersistQueue      = 256
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithMetrics records hub activity on m.
func WithMetrics(m *metrics.Relay) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithHistoryLimits sets how many messages the cache keeps per room and
// how many durable messages a history request returns. Zero means no limit.
func WithHistoryLimits(cache, query int) Option {
	return func(h *Hub) {
		h.cacheLimit = cache
		h.queryLimit = query
	}
}

// WithStoreTimeout bounds each message store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.storeTimeout = d
		}
	}
}

// WithPersistQueue sets the capacity of the persistence queue.
func WithPersistQueue(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

type inbound struct {
	client *Client
	cmd    Command
}

type reply struct {
	client *Client
	event  Event
}

// Hub is the relay engine. A single Run goroutine processes every event,
// which serialises all state changes and gives each room one order for its
// history and its broadcasts. Store reads and writes happen on other
// goroutines.
type Hub struct {
	presence *Presence
	rooms    *Registry
	history  *HistoryCache
	store    store.MessageStore
	persist  *persister
	log      *zerolog.Logger
	metrics  *metrics.Relay
	now      func() time.Time

	cacheLimit   int
	queryLimit   int
	storeTimeout time.Duration
	queueSize    int

	clients    map[string]*Client // owned by the Run goroutine
	lastAt     time.Time
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	replies    chan reply
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a hub persisting to st. A nil st disables persistence and
// durable history.
func NewHub(st store.MessageStore, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		presence:     NewPresence(),
		rooms:        NewRegistry(),
		log:          &nop,
		now:          time.Now,
		cacheLimit:   DefaultHistoryCacheLimit,
		queryLimit:   DefaultHistoryQueryLimit,
		storeTimeout: DefaultStoreTimeout,
		queueSize:    DefaultPersistQueue,
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan inbound),
		replies:      make(chan reply),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.history = NewHistoryCache(h.cacheLimit)
	if st != nil {
		h.store = store.WithTimeout(st, h.storeTimeout)
		h.persist = newPersister(h.store, h.queueSize, h.storeTimeout, h.log, h.metrics)
	}
	return h
}

// Run processes events until ctx is cancelled. Queued persistence jobs are
// flushed before it returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.wg.Wait()

	// The persister outlives the loop so records enqueued by the last
	// dispatched commands are still written.
	persistCtx, stopPersist := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPersist()

	if h.persist != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.persist.run(persistCtx)
		}()
	}

	for {
		select {
		case c := <-h.register:
			h.handleConnect(c)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		case in := <-h.inbound:
			h.dispatch(ctx, in.client, in.cmd)
		case r := <-h.replies:
			h.send(r.client, r.event)
		case <-ctx.Done():
			h.log.Info().Int("connections", len(h.clients)).Msg("hub stopped")
			return
		}
	}
}

// Done is closed once Run has returned and queued writes are flushed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// RegisterClient connects c. Commands sent on c.Commands afterwards are
// processed in order; events arrive on c.Events.
func (h *Hub) RegisterClient(c *Client) error {
	select {
	case h.register <- c:
	case <-h.done:
		return ErrHubStopped
	}
	go h.pump(c)
	return nil
}

// UnregisterClient disconnects c. The hub closes c.Events once the
// disconnect has been processed.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Participants returns the current participants of room. Safe to call from
// any goroutine.
func (h *Hub) Participants(room string) []Participant {
	return h.participants(room)
}

// RoomHistory returns the durable history of room, or an empty list when
// the store is unavailable. Safe to call from any goroutine.
func (h *Hub) RoomHistory(ctx context.Context, room string) []Message {
	return h.loadHistory(ctx, room)
}

// pump forwards the client's commands to the event loop.
func (h *Hub) pump(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			select {
			case h.inbound <- inbound{client: c, cmd: cmd}:
			case <-c.gone:
				return
			case <-h.done:
				return
			}
		case <-c.gone:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd Command) {
	if h.clients[c.ID] != c {
		return
	}

	switch cmd := cmd.(type) {
	case JoinRoom:
		h.handleJoin(c, cmd)
	case LeaveRoom:
		h.handleLeave(c, cmd)
	case SendMessage:
		h.handleMessage(c, cmd)
	case GetParticipants:
		h.handleGetParticipants(c, cmd)
	case GetHistory:
		h.handleGetHistory(ctx, c, cmd)
	case UpdateStatus:
		h.handleUpdateStatus(c, cmd)
	case Ping:
		h.send(c, Pong{Time: h.now().UTC()})
	default:
		h.fail(c, coreError(ErrCodeInvalidMessage, fmt.Sprintf("unsupported command %T", cmd)))
	}
}

func (h *Hub) handleConnect(c *Client) {
	name := c.Name
	if name == "" {
		name = utils.PlaceholderName()
	}
	h.clients[c.ID] = c
	h.presence.Create(c.ID, name)
	h.metrics.SetConnections(len(h.clients))

	h.log.Info().Str("conn_id", c.ID).Str("name", name).Int("connections", len(h.clients)).Msg("client connected")
	h.send(c, Connected{
		UserID:     c.ID,
		Message:    "Connected to the chat server. You can now join a room.",
		ServerTime: h.now().UTC(),
	})
}

func (h *Hub) handleDisconnect(c *Client) {
	if h.clients[c.ID] != c {
		return
	}

	if conn, ok := h.presence.Get(c.ID); ok {
		// conn is a snapshot, so removing rooms below does not disturb the loop.
		for _, room := range conn.Rooms {
			h.presence.RemoveRoom(c.ID, room)
			if h.removeMember(room, c.ID) {
				continue
			}
			h.broadcast(room, UserLeft{
				Message:      conn.Name + " has left the room.",
				Room:         room,
				UserID:       c.ID,
				Username:     conn.Name,
				Participants: h.participants(room),
			}, c.ID)
		}
		h.presence.Delete(c.ID)
	}

	delete(h.clients, c.ID)
	close(c.gone)
	close(c.Events)
	h.metrics.SetConnections(len(h.clients))
	h.log.Info().Str("conn_id", c.ID).Int("connections", len(h.clients)).Msg("client disconnected")
}

func (h *Hub) handleJoin(c *Client, cmd JoinRoom) {
	if cmd.Room == "" {
		h.fail(c, validationError("Room ID is required."))
		return
	}

	if cmd.Username != "" {
		h.presence.SetDisplayName(c.ID, cmd.Username)
	}
	h.presence.SetStatus(c.ID, StatusOnline)

	h.rooms.EnsureRoom(cmd.Room)
	h.rooms.AddMember(cmd.Room, c.ID)
	h.presence.AddRoom(c.ID, cmd.Room)
	h.history.EnsureRoom(cmd.Room)
	h.metrics.SetRooms(h.rooms.Len())

	conn, _ := h.presence.Get(c.ID)
	participants := h.participants(cmd.Room)

	h.send(c, JoinSuccess{
		Message:      "You have joined the room: " + cmd.Room,
		Room:         cmd.Room,
		Participants: participants,
		History:      h.history.Snapshot(cmd.Room),
	})
	h.broadcast(cmd.Room, UserJoined{
		Message:      conn.Name + " has joined the room!",
		Room:         cmd.Room,
		UserID:       c.ID,
		Username:     conn.Name,
		Participants: participants,
	}, c.ID)

	h.log.Info().Str("conn_id", c.ID).Str("name", conn.Name).Str("room", cmd.Room).Msg("joined room")
}

func (h *Hub) handleLeave(c *Client, cmd LeaveRoom) {
	if cmd.Room == "" {
		h.fail(c, validationError("Room ID is required."))
		return
	}

	conn, _ := h.presence.Get(c.ID)
	member := conn.InRoom(cmd.Room)
	destroyed := false
	if member {
		h.presence.RemoveRoom(c.ID, cmd.Room)
		destroyed = h.removeMember(cmd.Room, c.ID)
	}

	h.send(c, LeaveSuccess{
		Message: "You have left the room: " + cmd.Room,
		Room:    cmd.Room,
	})
	if !member {
		return
	}

	if !destroyed {
		h.broadcast(cmd.Room, UserLeft{
			Message:      conn.Name + " has left the room.",
			Room:         cmd.Room,
			UserID:       c.ID,
			Username:     conn.Name,
			Participants: h.participants(cmd.Room),
		}, c.ID)
	}

	h.log.Info().Str("conn_id", c.ID).Str("room", cmd.Room).Msg("left room")
}

func (h *Hub) handleMessage(c *Client, cmd SendMessage) {
	switch {
	case cmd.Room == "" || cmd.Text == "":
		h.fail(c, validationError("Room ID and message are required."))
		return
	case !h.rooms.Exists(cmd.Room):
		h.fail(c, coreError(ErrCodeRoomNotFound, "Room does not exist or you are not in this room."))
		return
	case !h.rooms.IsMember(cmd.Room, c.ID):
		h.fail(c, coreError(ErrCodeNotInRoom, "You are not in this room."))
		return
	}

	conn, _ := h.presence.Get(c.ID)
	at := h.nextTimestamp()
	senderKey := cmd.AccountID
	if senderKey == "" {
		senderKey = c.ID
	}
	msg := Message{
		ID:        newMessageID(at, senderKey),
		Room:      cmd.Room,
		SenderID:  c.ID,
		Sender:    conn.Name,
		AccountID: cmd.AccountID,
		Text:      cmd.Text,
		CreatedAt: at,
	}

	h.history.Append(cmd.Room, msg)
	h.broadcast(cmd.Room, MessageReceived{Message: msg}, c.ID)
	h.metrics.MessageAccepted()
	h.persistMessage(msg, cmd.Wallet)
	h.send(c, MessageSent{Message: msg})
}

func (h *Hub) handleGetParticipants(c *Client, cmd GetParticipants) {
	if cmd.Room == "" {
		h.fail(c, validationError("Room ID is required."))
		return
	}
	h.send(c, ParticipantsList{Room: cmd.Room, Participants: h.participants(cmd.Room)})
}

func (h *Hub) handleGetHistory(ctx context.Context, c *Client, cmd GetHistory) {
	if cmd.Room == "" {
		h.fail(c, validationError("Room ID is required."))
		return
	}
	if h.store == nil {
		h.send(c, History{Room: cmd.Room, Messages: []Message{}})
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		msgs := h.loadHistory(ctx, cmd.Room)
		select {
		case h.replies <- reply{client: c, event: History{Room: cmd.Room, Messages: msgs}}:
		case <-ctx.Done():
		}
	}()
}

func (h *Hub) handleUpdateStatus(c *Client, cmd UpdateStatus) {
	status, ok := ParseStatus(cmd.Status)
	if !ok {
		h.fail(c, validationError("Valid status is required (online, away, busy)."))
		return
	}

	old, ok := h.presence.SetStatus(c.ID, status)
	if !ok {
		return
	}
	conn, _ := h.presence.Get(c.ID)
	for _, room := range conn.Rooms {
		h.broadcast(room, StatusUpdated{
			Room:         room,
			UserID:       c.ID,
			Username:     conn.Name,
			OldStatus:    old,
			NewStatus:    status,
			Participants: h.participants(room),
		}, "")
	}

	h.log.Info().Str("conn_id", c.ID).Str("old_status", string(old)).Str("new_status", string(status)).Msg("status updated")
}

// removeMember takes conn out of room and destroys the room together with
// its cached history once it is empty. Returns true if the room is gone.
func (h *Hub) removeMember(room, conn string) bool {
	if !h.rooms.RemoveMember(room, conn) {
		return false
	}
	h.rooms.DestroyRoom(room)
	h.history.Destroy(room)
	h.metrics.SetRooms(h.rooms.Len())
	return true
}

func (h *Hub) persistMessage(msg Message, wallet string) {
	if h.persist == nil {
		return
	}
	if wallet != "" {
		h.log.Debug().Str("conn_id", msg.SenderID).Str("wallet", wallet).Msg("wallet address ignored")
	}
	if msg.AccountID == "" {
		h.metrics.PersistSkipped()
		h.log.Warn().Str("conn_id", msg.SenderID).Str("room", msg.Room).Msg("message has no account id, not persisted")
		return
	}

	h.persist.enqueue(store.Record{
		ID:         utils.NewRecordID(msg.CreatedAt),
		RoomID:     msg.Room,
		SenderID:   msg.AccountID,
		SenderName: msg.Sender,
		Body:       msg.Text,
		SentAt:     msg.CreatedAt,
	})
}

func (h *Hub) loadHistory(ctx context.Context, room string) []Message {
	if h.store == nil {
		return []Message{}
	}

	recs, err := h.store.QueryByRoom(ctx, room, h.queryLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		return []Message{}
	}

	return lo.Map(recs, func(rec store.Record, _ int) Message {
		return Message{
			ID:        rec.ID,
			Room:      rec.RoomID,
			SenderID:  rec.SenderID,
			Sender:    rec.SenderName,
			AccountID: rec.SenderID,
			Text:      rec.Body,
			CreatedAt: rec.SentAt,
		}
	})
}

func (h *Hub) participants(room string) []Participant {
	return lo.FilterMap(h.rooms.Members(room), func(id string, _ int) (Participant, bool) {
		conn, ok := h.presence.Get(id)
		if !ok {
			return Participant{}, false
		}
		return Participant{ID: id, Name: conn.Name, Status: conn.Status}, true
	})
}

// nextTimestamp returns the current time at millisecond precision, strictly
// after the previous message's, so ids stay unique and ordered.
func (h *Hub) nextTimestamp() time.Time {
	at := h.now().UTC().Truncate(time.Millisecond)
	if !at.After(h.lastAt) {
		at = h.lastAt.Add(time.Millisecond)
	}
	h.lastAt = at
	return at
}

func (h *Hub) fail(c *Client, err *CoreError) {
	h.log.Debug().Str("conn_id", c.ID).Str("code", err.Code).Msg(err.Message)
	h.send(c, ErrorEvent{Err: err})
}

// send delivers ev to c without blocking. Events for clients that are no
// longer registered are discarded.
func (h *Hub) send(c *Client, ev Event) {
	if h.clients[c.ID] != c {
		return
	}
	select {
	case c.Events <- ev:
	default:
		h.metrics.EventDropped()
		h.log.Warn().Str("conn_id", c.ID).Int("event_kind", int(ev.Kind())).Msg("event dropped: client outbox full")
	}
}

// broadcast sends ev to every member of room except the given connection.
func (h *Hub) broadcast(room string, ev Event, except string) {
	for _, id := range h.rooms.Members(room) {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.send(c, ev)
		}
	}
}
