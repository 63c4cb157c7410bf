// Package summary maintains the denormalized per-user conversation list
// index: last message preview plus unread counter, one record per
// (viewer, counterpart) pair. The two copies written per send are asymmetric
// on purpose — the unread counter belongs to the receiving side only.
package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

type Index struct {
	store store.Store
}

func New(st store.Store) *Index {
	return &Index{store: st}
}

// RecordSend updates both participants' summaries after a successful append:
// the sender's copy keeps its unread count, the receiver's copy is bumped via
// the store's server-side atomic increment (never read-modify-write, so
// concurrent senders cannot lose updates). Called for media placeholders too,
// before the upload completes, so the list reflects the pending send.
func (x *Index) RecordSend(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("summary.RecordSend", time.Now())()
	conversationID := model.ConversationID(m.SenderID, m.ReceiverID)
	preview := m.PreviewBody()

	senderCopy := &model.ConversationSummary{
		ConversationID: conversationID,
		PeerID:         m.ReceiverID,
		LastMessage:    preview,
		LastSenderID:   m.SenderID,
		Timestamp:      m.Timestamp,
	}
	if err := x.store.PutSummary(ctx, m.SenderID, senderCopy); err != nil {
		return fmt.Errorf("summary sender copy: %w", err)
	}

	receiverCopy := &model.ConversationSummary{
		ConversationID: conversationID,
		PeerID:         m.SenderID,
		LastMessage:    preview,
		LastSenderID:   m.SenderID,
		Timestamp:      m.Timestamp,
	}
	if err := x.store.BumpSummary(ctx, m.ReceiverID, receiverCopy); err != nil {
		return fmt.Errorf("summary receiver copy: %w", err)
	}
	return nil
}

// MarkRead zeroes the viewer's unread counter for the conversation with peer.
func (x *Index) MarkRead(ctx context.Context, viewerID, peerID string) error {
	if err := x.store.ResetUnread(ctx, viewerID, peerID); err != nil {
		return fmt.Errorf("summary mark read: %w", err)
	}
	return nil
}

// List returns the viewer's conversation summaries, newest first.
func (x *Index) List(ctx context.Context, viewerID string) ([]model.ConversationSummary, error) {
	return x.store.ListSummaries(ctx, viewerID)
}

// UnreadCount returns the viewer's unread counter for one conversation.
// A missing summary means no messages yet: zero.
func (x *Index) UnreadCount(ctx context.Context, viewerID, peerID string) (int64, error) {
	s, err := x.store.GetSummary(ctx, viewerID, peerID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.UnreadCount, nil
}
