// Package readstate converges per-message and per-conversation read state:
// which party has observed which messages. Reconciliation is a background
// side effect of viewing a conversation — it must never block snapshot
// delivery and its failures must never surface to the user, since a missed
// run only delays read-receipt visibility.
package readstate

import (
	"context"
	"fmt"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

type Reconciler struct {
	store store.Store
}

func New(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// ReconcileConversation marks every message addressed to the viewer as READ
// and resets the viewer's unread counter for the conversation. Patches are
// monotonic and idempotent, so overlapping runs triggered by back-to-back
// snapshots are safe without locking.
func (r *Reconciler) ReconcileConversation(ctx context.Context, viewerID, peerID string) error {
	conversationID := model.ConversationID(viewerID, peerID)
	msgs, err := r.store.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", conversationID, err)
	}
	var firstErr error
	for i := range msgs {
		m := &msgs[i]
		if m.ReceiverID != viewerID || m.Status.AtLeast(model.ReadStatusRead) {
			continue
		}
		// Placeholder media is not content yet; it is marked read once
		// finalized and observed in a later snapshot.
		if m.MediaPending() {
			continue
		}
		if err := r.store.SetMessageStatus(ctx, conversationID, m.ID, model.ReadStatusRead); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("reconcile %s msg %s: %w", conversationID, m.ID, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if err := r.store.ResetUnread(ctx, viewerID, peerID); err != nil {
		return fmt.Errorf("reconcile %s reset unread: %w", conversationID, err)
	}
	return nil
}

// ReconcileGroup records the viewer's read receipt for every group message
// they have not yet read, in a single atomic multi-path update. Triggered on
// demand when the viewer opens or resumes the group, not continuously.
func (r *Reconciler) ReconcileGroup(ctx context.Context, groupID, viewerID string) error {
	msgs, err := r.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return fmt.Errorf("reconcile group %s: %w", groupID, err)
	}
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		if msgs[i].SenderID == viewerID {
			continue
		}
		if msgs[i].ReadByUser(viewerID) {
			continue
		}
		ids = append(ids, msgs[i].ID)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.store.MarkGroupMessagesRead(ctx, groupID, viewerID, ids, time.Now().UTC()); err != nil {
		return fmt.Errorf("reconcile group %s: %w", groupID, err)
	}
	return nil
}

// GroupUnreadCount counts group messages the viewer has not read. The
// viewer's own messages never count as unread.
func (r *Reconciler) GroupUnreadCount(ctx context.Context, groupID, viewerID string) (int, error) {
	msgs, err := r.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("group unread %s: %w", groupID, err)
	}
	n := 0
	for i := range msgs {
		if msgs[i].SenderID == viewerID {
			continue
		}
		if !msgs[i].ReadByUser(viewerID) {
			n++
		}
	}
	return n, nil
}
