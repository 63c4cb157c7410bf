// Package store defines the contract with the shared remote data store: an
// ordered append-only log per conversation with atomic increment and per-path
// listener primitives. Implementations: postgres (primary), pebble (local
// dev), memory (tests and -dev).
package store

import (
	"context"
	"time"

	"github.com/chatsync/internal/model"
)

// Store is the remote-log boundary. All message mutations are field patches
// (status, media URL) or deletes of still-pending placeholders; messages are
// otherwise immutable once appended.
//
// Append assigns the message id: a key that is monotonically increasing
// within one conversation and is the ordering source of truth. Client-side
// timestamps are a display convenience only.
type Store interface {
	// Individual conversations.
	AppendMessage(ctx context.Context, conversationID string, m *model.Message) (string, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
	// SetMessageStatus is monotonic: a patch that would move the status
	// backwards is a no-op, so overlapping reconciliations are safe.
	SetMessageStatus(ctx context.Context, conversationID, messageID string, status model.ReadStatus) error
	SetMessageMediaURL(ctx context.Context, conversationID, messageID, url string) error

	// Groups.
	PutGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	AppendGroupMessage(ctx context.Context, groupID string, m *model.GroupMessage) (string, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error)
	DeleteGroupMessage(ctx context.Context, groupID, messageID string) error
	SetGroupMessageMediaURL(ctx context.Context, groupID, messageID, url string) error
	// MarkGroupMessagesRead records readBy[userID] = at for every listed
	// message in one atomic multi-path update (one round-trip, not N).
	// Messages already read by userID are left untouched.
	MarkGroupMessagesRead(ctx context.Context, groupID, userID string, messageIDs []string, at time.Time) error

	// Conversation summaries, keyed by (viewer, peer). BumpSummary writes the
	// last-message fields and increments the unread counter with a
	// server-side atomic increment; PutSummary leaves the counter untouched.
	PutSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error
	BumpSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error
	GetSummary(ctx context.Context, viewerID, peerID string) (*model.ConversationSummary, error)
	ListSummaries(ctx context.Context, viewerID string) ([]model.ConversationSummary, error)
	ResetUnread(ctx context.Context, viewerID, peerID string) error

	// Watches. The returned handle must be released with Close on every exit
	// path; remote listener registrations do not garbage-collect themselves.
	WatchConversation(conversationID string) (*Watch, error)
	WatchGroup(groupID string) (*Watch, error)

	Close() error
}
