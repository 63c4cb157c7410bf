package ws

import (
	"context"
	"sync"
	"time"

	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/summary"
)

// Hub routes WebSocket clients to conversation subscriptions. A client views
// at most one conversation at a time: subscribing to a new one tears down the
// previous subscription and moves the presence gate with it.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	svc      *chat.Service
	log      *chatlog.Log
	summary  *summary.Index
	presence *presence.Registry

	register   chan *Client
	unregister chan *Client
	// draining is closed when shutdown starts: Register/Unregister stop
	// queueing and return immediately, since shutdown tears every client down
	// itself and no longer reads the channels.
	draining chan struct{}
}

func NewHub(svc *chat.Service, log *chatlog.Log, idx *summary.Index, reg *presence.Registry, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		svc:        svc,
		log:        log,
		summary:    idx,
		presence:   reg,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		draining:   make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Unblock pending and future Register/Unregister calls first: closing a
	// client below makes its readPump call Unregister, and with more clients
	// than the channel buffer that would otherwise deadlock the c.Wait() loop.
	close(h.draining)

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	h.presence.ForUser(c.userID).SetForeground(true)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Subscription teardown and socket close happen outside the lock.
	c.dropSubscription()
	c.Close()

	if lastClient {
		gate := h.presence.ForUser(c.userID)
		gate.ExitConversation()
		gate.SetForeground(false)
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSubscribeConversation:
		h.handleSubscribeConversation(ctx, c, msg)
	case EventSubscribeGroup:
		h.handleSubscribeGroup(ctx, c, msg)
	case EventUnsubscribeConversation, EventUnsubscribeGroup:
		c.dropSubscription()
		h.presence.ForUser(c.userID).ExitConversation()
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventSendGroupMessage:
		h.handleSendGroupMessage(ctx, c, msg)
	case EventMarkRead:
		h.handleMarkRead(c, msg)
	case EventForeground:
		h.presence.ForUser(c.userID).SetForeground(msg.Foreground)
	case EventListSummaries:
		h.handleListSummaries(ctx, c)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// handleSubscribeConversation opens a live snapshot feed for the conversation
// with peer. Every delivered snapshot also schedules read-state
// reconciliation: viewing the conversation is what marks it read.
func (h *Hub) handleSubscribeConversation(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSubscribeConversation", time.Now())()
	if msg.PeerID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "peer_id required"})
		return
	}
	conversationID := model.ConversationID(c.userID, msg.PeerID)
	sub, err := h.log.Subscribe(ctx, conversationID)
	if err != nil {
		logger.Errorf("ws subscribe %s user=%s: %v", conversationID, c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "subscribe failed"})
		return
	}
	c.replaceSubscription(sub.Close)
	h.presence.ForUser(c.userID).EnterConversation(model.KindIndividual, msg.PeerID)

	userID, peerID := c.userID, msg.PeerID
	go func() {
		for snap := range sub.C {
			h.sendToClient(c, OutgoingMessage{Type: EventConversationSnapshot, Payload: ConversationSnapshotPayload{
				ConversationID: conversationID,
				PeerID:         peerID,
				Messages:       snap,
			}})
			h.svc.MarkConversationRead(userID, peerID)
		}
	}()
}

// handleSubscribeGroup opens a live snapshot feed for the group. Group read
// receipts are recorded once at open, not per snapshot.
func (h *Hub) handleSubscribeGroup(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSubscribeGroup", time.Now())()
	if msg.GroupID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "group_id required"})
		return
	}
	g, err := h.svc.Group(ctx, msg.GroupID)
	if err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "group not found"})
		return
	}
	if !g.IsMember(c.userID) {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a member"})
		return
	}
	sub, err := h.log.SubscribeGroup(ctx, msg.GroupID)
	if err != nil {
		logger.Errorf("ws subscribe group %s user=%s: %v", msg.GroupID, c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "subscribe failed"})
		return
	}
	c.replaceSubscription(sub.Close)
	h.presence.ForUser(c.userID).EnterConversation(model.KindGroup, msg.GroupID)
	h.svc.MarkGroupRead(msg.GroupID, c.userID)

	groupID := msg.GroupID
	go func() {
		for snap := range sub.C {
			h.sendToClient(c, OutgoingMessage{Type: EventGroupSnapshot, Payload: GroupSnapshotPayload{
				GroupID:  groupID,
				Messages: snap,
			}})
		}
	}()
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if msg.PeerID == "" || msg.Body == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "peer_id and body required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	m, err := h.svc.SendText(ctx, c.userID, msg.PeerID, msg.Body, msg.ReplyToID)
	if err != nil {
		logger.Errorf("ws send user=%s peer=%s: %v", c.userID, msg.PeerID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send"})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventMessageSent, Payload: MessageSentPayload{MessageID: m.ID, PeerID: msg.PeerID}})
}

func (h *Hub) handleSendGroupMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendGroupMessage", time.Now())()
	if msg.GroupID == "" || msg.Body == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "group_id and body required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	m, err := h.svc.SendGroupText(ctx, msg.GroupID, c.userID, msg.Body, msg.ReplyToID, msg.MentionedUsers)
	if err != nil {
		logger.Errorf("ws group send user=%s group=%s: %v", c.userID, msg.GroupID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send"})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventMessageSent, Payload: MessageSentPayload{MessageID: m.ID, GroupID: msg.GroupID}})
}

func (h *Hub) handleMarkRead(c *Client, msg IncomingMessage) {
	switch {
	case msg.GroupID != "":
		h.svc.MarkGroupRead(msg.GroupID, c.userID)
	case msg.PeerID != "":
		h.svc.MarkConversationRead(c.userID, msg.PeerID)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "peer_id or group_id required"})
	}
}

func (h *Hub) handleListSummaries(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	items, err := h.summary.List(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws summaries user=%s: %v", c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to list summaries"})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventSummaries, Payload: SummariesPayload{Items: items}})
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.draining:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.draining:
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}
