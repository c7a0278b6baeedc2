package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"roomchat/internal/storage"
)

const (
	defaultHistoryLimit = 50
	defaultStoreTimeout = 5 * time.Second

	throttleNotice = "You're sending messages too quickly. Please wait a moment and try again."
)

// HistoryStore persists chat messages and serves the recent history of a room.
type HistoryStore interface {
	RecentMessages(ctx context.Context, room string, limit int, ascending bool) ([]storage.Message, error)
	AppendMessage(ctx context.Context, msg storage.Message) error
}

// RelayConfig tunes every session created by a Relay.
type RelayConfig struct {
	HistoryLimit int
	StoreTimeout time.Duration
	// MessageRate is chat messages per second per connection; 0 disables throttling.
	MessageRate  float64
	MessageBurst int
}

// Relay holds what all chat sessions share: membership, routing, history and
// the appends still in flight.
type Relay struct {
	registry *ConnectionRegistry
	router   *RoomRouter
	store    HistoryStore
	metrics  *Metrics
	logger   *slog.Logger
	config   RelayConfig
	now      func() time.Time

	mutex   sync.Mutex
	pending int
	idle    chan struct{} // closed when pending drops to zero
	closing bool
}

func NewRelay(store HistoryStore, metrics *Metrics, logger *slog.Logger, config RelayConfig) *Relay {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaultStoreTimeout
	}
	if config.MessageBurst <= 0 {
		config.MessageBurst = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	relay := &Relay{
		registry: NewConnectionRegistry(),
		router:   NewRoomRouter(),
		store:    store,
		metrics:  metrics,
		logger:   logger.With("component", "relay"),
		config:   config,
		now:      time.Now,
	}
	metrics.Track(relay.registry, relay.router)
	return relay
}

func (relay *Relay) Registry() *ConnectionRegistry { return relay.registry }

func (relay *Relay) Router() *RoomRouter { return relay.router }

// NewSession attaches sender under id and returns the session that owns id
// until Disconnect.
func (relay *Relay) NewSession(id ConnID, sender Sender) *ChatSession {
	relay.router.Attach(id, sender)
	session := &ChatSession{
		relay:  relay,
		id:     id,
		logger: relay.logger.With("conn", string(id)),
	}
	if relay.config.MessageRate > 0 {
		session.limiter = rate.NewLimiter(rate.Limit(relay.config.MessageRate), relay.config.MessageBurst)
	}
	return session
}

// Wait blocks until every pending history append has finished or ctx is done.
func (relay *Relay) Wait(ctx context.Context) error {
	relay.mutex.Lock()
	if relay.pending == 0 {
		relay.mutex.Unlock()
		return nil
	}
	idle := relay.idle
	relay.mutex.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new appends and waits for the pending ones.
// Messages relayed after Close are delivered live but not stored.
func (relay *Relay) Close(ctx context.Context) error {
	relay.mutex.Lock()
	relay.closing = true
	relay.mutex.Unlock()
	return relay.Wait(ctx)
}

func (relay *Relay) beginAppend() bool {
	relay.mutex.Lock()
	defer relay.mutex.Unlock()
	if relay.closing {
		return false
	}
	if relay.pending == 0 {
		relay.idle = make(chan struct{})
	}
	relay.pending++
	return true
}

func (relay *Relay) endAppend() {
	relay.mutex.Lock()
	defer relay.mutex.Unlock()
	relay.pending--
	if relay.pending == 0 {
		close(relay.idle)
	}
}

func (relay *Relay) persist(msg storage.Message) {
	if relay.store == nil {
		return
	}
	if !relay.beginAppend() {
		relay.metrics.IncStoreFailure()
		relay.logger.Warn("relay closing, message not persisted", "room", msg.Room)
		return
	}
	go func() {
		defer relay.endAppend()
		ctx, cancel := context.WithTimeout(context.Background(), relay.config.StoreTimeout)
		defer cancel()
		if err := relay.store.AppendMessage(ctx, msg); err != nil {
			relay.metrics.IncStoreFailure()
			relay.logger.Error("append message failed", "room", msg.Room, "err", err)
			return
		}
		relay.metrics.IncPersisted()
	}()
}

func (relay *Relay) recentHistory(ctx context.Context, room string) []storage.Message {
	if relay.store == nil {
		return []storage.Message{}
	}
	ctx, cancel := context.WithTimeout(ctx, relay.config.StoreTimeout)
	defer cancel()
	history, err := relay.store.RecentMessages(ctx, room, relay.config.HistoryLimit, true)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		relay.logger.Debug("history query abandoned", "room", room)
		return []storage.Message{}
	}
	if err != nil {
		relay.metrics.IncStoreFailure()
		relay.logger.Error("load history failed", "room", room, "err", err)
		return []storage.Message{}
	}
	if history == nil {
		history = []storage.Message{}
	}
	return history
}

// ChatSession is the protocol state of one connection. Inbound events are
// meant to be handled by one goroutine at a time; Disconnect may be called
// from any goroutine, including while a join waits on the history store.
type ChatSession struct {
	relay   *Relay
	id      ConnID
	logger  *slog.Logger
	limiter *rate.Limiter

	// mutex orders membership changes against Disconnect. It is never held
	// across a store call.
	mutex       sync.Mutex
	closed      atomic.Bool
	cancelQuery context.CancelFunc
}

func (session *ChatSession) ID() ConnID { return session.id }

// Handle decodes one inbound frame and dispatches it.
func (session *ChatSession) Handle(ctx context.Context, payload []byte) {
	envelope, err := decodeFrame(payload)
	if err != nil {
		session.logger.Debug("dropping malformed frame", "err", err)
		return
	}
	switch envelope.Event {
	case EventJoinRoom:
		var request JoinRequest
		if err := json.Unmarshal(envelope.Data, &request); err != nil {
			session.logger.Debug("dropping malformed join", "err", err)
			return
		}
		session.JoinRoom(ctx, request.Username, request.Room)
	case EventChatMessage:
		var text string
		if err := json.Unmarshal(envelope.Data, &text); err != nil {
			session.logger.Debug("dropping malformed chat message", "err", err)
			return
		}
		session.SendChat(text)
	case EventTyping:
		session.Typing()
	default:
		session.logger.Debug("dropping unknown event", "event", envelope.Event)
	}
}

// JoinRoom moves the connection into room, leaving whatever room it was in.
// Username and room are taken exactly as sent.
func (session *ChatSession) JoinRoom(ctx context.Context, username, room string) {
	relay := session.relay
	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	session.mutex.Lock()
	if session.closed.Load() {
		session.mutex.Unlock()
		return
	}
	if previous, ok := relay.registry.Membership(session.id); ok {
		relay.router.Leave(session.id, previous.Room)
		session.broadcastNotice(previous.Room, fmt.Sprintf("%s has left the room.", previous.Username), "")
	}
	relay.router.Join(session.id, room)
	relay.registry.SetMembership(session.id, username, room)
	session.cancelQuery = cancel
	session.mutex.Unlock()
	session.logger.Info("joined room", "username", username, "room", room)

	history := relay.recentHistory(queryCtx, room)

	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.cancelQuery = nil
	if session.closed.Load() {
		session.logger.Debug("disconnected while loading history", "room", room)
		return
	}
	if frame, err := encodeFrame(EventLoadHistory, history); err == nil {
		relay.router.Unicast(session.id, frame)
	} else {
		session.logger.Error("encode history failed", "err", err)
	}

	session.broadcastNotice(room, fmt.Sprintf("%s has joined %s.", username, room), session.id)
}

// SendChat relays text to the whole room, sender included, then stores it.
func (session *ChatSession) SendChat(text string) {
	if session.closed.Load() {
		return
	}
	membership, ok := session.relay.registry.Membership(session.id)
	if !ok {
		return
	}
	relay := session.relay
	now := relay.now()
	if session.limiter != nil && !session.limiter.AllowN(now, 1) {
		relay.metrics.IncThrottled()
		session.unicastNotice(throttleNotice, now)
		return
	}

	msg := storage.Message{
		Room:        membership.Room,
		SentAt:      now.UnixMilli(),
		Username:    membership.Username,
		Text:        text,
		DisplayTime: now.Format(displayTimeLayout),
	}
	frame, err := encodeFrame(EventMessage, ChatMessage{User: msg.Username, Text: msg.Text, Timestamp: msg.DisplayTime})
	if err != nil {
		session.logger.Error("encode message failed", "err", err)
		return
	}
	relay.router.Broadcast(membership.Room, frame, "")
	relay.metrics.IncRelayed()
	relay.persist(msg)
}

// Typing tells the rest of the room that this user is typing.
func (session *ChatSession) Typing() {
	if session.closed.Load() {
		return
	}
	membership, ok := session.relay.registry.Membership(session.id)
	if !ok {
		return
	}
	frame, err := encodeFrame(EventTyping, membership.Username)
	if err != nil {
		return
	}
	session.relay.router.Broadcast(membership.Room, frame, session.id)
}

// Disconnect ends the session and abandons a history query still in flight.
// Calls after the first are no-ops.
func (session *ChatSession) Disconnect() {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if !session.closed.CompareAndSwap(false, true) {
		return
	}
	if session.cancelQuery != nil {
		session.cancelQuery()
		session.cancelQuery = nil
	}
	relay := session.relay
	if membership, ok := relay.registry.Remove(session.id); ok {
		relay.router.Leave(session.id, membership.Room)
		session.broadcastNotice(membership.Room, fmt.Sprintf("%s has left.", membership.Username), session.id)
		session.logger.Info("left room", "username", membership.Username, "room", membership.Room)
	}
	relay.router.Detach(session.id)
}

func (session *ChatSession) broadcastNotice(room, text string, except ConnID) {
	frame, err := encodeFrame(EventMessage, ChatMessage{
		User:      SystemUser,
		Text:      text,
		Timestamp: session.relay.now().Format(displayTimeLayout),
	})
	if err != nil {
		return
	}
	session.relay.router.Broadcast(room, frame, except)
}

func (session *ChatSession) unicastNotice(text string, now time.Time) {
	frame, err := encodeFrame(EventMessage, ChatMessage{User: SystemUser, Text: text, Timestamp: now.Format(displayTimeLayout)})
	if err != nil {
		return
	}
	session.relay.router.Unicast(session.id, frame)
}
