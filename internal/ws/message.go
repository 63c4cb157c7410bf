package ws

import "github.com/chatsync/internal/model"

type EventType string

const (
	// Client -> server.
	EventSubscribeConversation   EventType = "subscribe_conversation"
	EventUnsubscribeConversation EventType = "unsubscribe_conversation"
	EventSubscribeGroup          EventType = "subscribe_group"
	EventUnsubscribeGroup        EventType = "unsubscribe_group"
	EventSendMessage             EventType = "send_message"
	EventSendGroupMessage        EventType = "send_group_message"
	EventMarkRead                EventType = "mark_read"
	EventForeground              EventType = "foreground"
	EventListSummaries           EventType = "list_summaries"

	// Server -> client.
	EventConversationSnapshot EventType = "conversation_snapshot"
	EventGroupSnapshot        EventType = "group_snapshot"
	EventSummaries            EventType = "summaries"
	EventMessageSent          EventType = "message_sent"
	EventError                EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// Conversation addressing: PeerID for individual threads, GroupID for
	// groups. mark_read uses whichever is set.
	PeerID  string `json:"peer_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`

	// For sends.
	Body           string   `json:"body,omitempty"`
	ReplyToID      string   `json:"reply_to_id,omitempty"`
	MentionedUsers []string `json:"mentioned_users,omitempty"`

	// For foreground.
	Foreground bool `json:"foreground,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ConversationSnapshotPayload carries the full ordered conversation state.
// Clients re-render from scratch on every emission.
type ConversationSnapshotPayload struct {
	ConversationID string          `json:"conversation_id"`
	PeerID         string          `json:"peer_id"`
	Messages       []model.Message `json:"messages"`
}

// GroupSnapshotPayload mirrors ConversationSnapshotPayload for groups.
type GroupSnapshotPayload struct {
	GroupID  string               `json:"group_id"`
	Messages []model.GroupMessage `json:"messages"`
}

// SummariesPayload carries the viewer's conversation list.
type SummariesPayload struct {
	Items []model.ConversationSummary `json:"items"`
}

// MessageSentPayload acknowledges a send with the store-assigned id.
type MessageSentPayload struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
}
