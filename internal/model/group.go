package model

import "time"

// GroupMessage is a message in a multi-party thread. Read state is tracked
// per member in ReadBy instead of a single status; the sender's own id is
// implicitly excluded from unread computations.
type GroupMessage struct {
	ID              string               `json:"id"`
	GroupID         string               `json:"group_id"`
	SenderID        string               `json:"sender_id"`
	Body            string               `json:"body"`
	Timestamp       time.Time            `json:"timestamp"`
	Kind            MessageKind          `json:"kind"`
	MediaURL        string               `json:"media_url,omitempty"`
	ReadBy          map[string]time.Time `json:"read_by,omitempty"`
	MentionedUsers  []string             `json:"mentioned_users,omitempty"`
	IsSystemMessage bool                 `json:"is_system_message,omitempty"`
	ReplyToID       string               `json:"reply_to_id,omitempty"`
	ReplyTo         *ReplySnapshot       `json:"reply_to,omitempty"`
}

// ReadByUser reports whether userID has read the message. The sender is
// always considered to have read their own message.
func (m *GroupMessage) ReadByUser(userID string) bool {
	if userID == m.SenderID {
		return true
	}
	_, ok := m.ReadBy[userID]
	return ok
}

// Mentions reports whether userID appears in the message's mention set.
func (m *GroupMessage) Mentions(userID string) bool {
	for _, id := range m.MentionedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Group is the membership record for a multi-party thread.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
	Admins    []string  `json:"admins,omitempty"`
}

// IsMember reports whether userID belongs to the group.
func (g *Group) IsMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}
