package model

import "time"

// ConversationSummary is the denormalized per-(viewer, peer) record backing
// the conversation list: last message preview plus unread counter. Two
// asymmetric copies exist per conversation — the sender's copy keeps its
// unread count, the receiver's copy is incremented atomically on the server.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	PeerID         string    `json:"peer_id"`
	LastMessage    string    `json:"last_message"`
	LastSenderID   string    `json:"last_sender_id"`
	Timestamp      time.Time `json:"timestamp"`
	UnreadCount    int64     `json:"unread_count"`
}
