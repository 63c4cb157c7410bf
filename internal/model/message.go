package model

import "time"

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

type ReadStatus string

const (
	ReadStatusSent      ReadStatus = "sent"
	ReadStatusDelivered ReadStatus = "delivered"
	ReadStatusRead      ReadStatus = "read"
)

// rank orders the read-status lifecycle; reconciliation only moves forward.
func (s ReadStatus) rank() int {
	switch s {
	case ReadStatusSent:
		return 0
	case ReadStatusDelivered:
		return 1
	case ReadStatusRead:
		return 2
	}
	return -1
}

// AtLeast reports whether s has already reached (or passed) other.
// Used to keep read-status patches monotonic: a READ message never
// regresses to SENT or DELIVERED.
func (s ReadStatus) AtLeast(other ReadStatus) bool {
	return s.rank() >= other.rank()
}

// PendingMediaURL is the sentinel stored in MediaURL while an image upload is
// in flight. A message carrying it must be rendered as in-flight, never as
// delivered content.
const PendingMediaURL = "PENDING"

// ImagePreviewLabel replaces the body in previews of image messages.
const ImagePreviewLabel = "Photo"

// ReplySnapshot is the denormalized copy of a replied-to message captured at
// reply-creation time. It does not track later edits or deletions of the
// original; that staleness is accepted.
type ReplySnapshot struct {
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
	MediaURL string `json:"media_url,omitempty"`
}

type Message struct {
	// ID is assigned by the remote log at append time. It is monotonically
	// increasing within a conversation and is the ordering source of truth;
	// Timestamp is a display convenience.
	ID         string         `json:"id"`
	SenderID   string         `json:"sender_id"`
	ReceiverID string         `json:"receiver_id"`
	Body       string         `json:"body"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       MessageKind    `json:"kind"`
	MediaURL   string         `json:"media_url,omitempty"`
	Status     ReadStatus     `json:"status"`
	ReplyToID  string         `json:"reply_to_id,omitempty"`
	ReplyTo    *ReplySnapshot `json:"reply_to,omitempty"`
}

// MediaPending reports whether the message is an in-flight media placeholder.
func (m *Message) MediaPending() bool {
	return m.Kind == MessageKindImage && m.MediaURL == PendingMediaURL
}

// PreviewBody is the text shown in conversation-list previews.
func (m *Message) PreviewBody() string {
	if m.Kind == MessageKindImage {
		return ImagePreviewLabel
	}
	return m.Body
}

// ReplySnapshotOf captures the denormalized preview of m for use in replies.
func ReplySnapshotOf(m *Message) *ReplySnapshot {
	const maxPreview = 120
	body := m.PreviewBody()
	if len(body) > maxPreview {
		body = body[:maxPreview-3] + "..."
	}
	return &ReplySnapshot{
		SenderID: m.SenderID,
		Body:     body,
		MediaURL: m.MediaURL,
	}
}
