// Package media implements optimistic image sends. The message row is
// appended first with a pending-media sentinel so both participants see the
// send immediately; the upload then runs keyed by the assigned message id, and
// either finalizes the row with the real URL or rolls the placeholder back.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chatsync/internal/blob"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
	"github.com/chatsync/internal/summary"
)

type Coordinator struct {
	store   store.Store
	log     *chatlog.Log
	summary *summary.Index
	blobs   blob.Store
}

func NewCoordinator(st store.Store, log *chatlog.Log, idx *summary.Index, blobs blob.Store) *Coordinator {
	return &Coordinator{store: st, log: log, summary: idx, blobs: blobs}
}

// SendImage appends an image placeholder to the conversation with receiverID,
// updates both summaries, then uploads the image and finalizes the message
// with the stored URL. If the upload or the finalize fails the placeholder is
// deleted and the error is returned; the summary bump is deliberately left in
// place, the next send overwrites it.
func (c *Coordinator) SendImage(ctx context.Context, senderID, receiverID, caption string, image io.Reader) (string, error) {
	defer logger.DeferLogDuration("media.SendImage", time.Now())()

	image, err := blob.SniffImage(image)
	if err != nil {
		return "", err
	}

	conversationID := model.ConversationID(senderID, receiverID)
	placeholder := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       caption,
		Kind:       model.MessageKindImage,
		MediaURL:   model.PendingMediaURL,
	}
	id, err := c.log.Append(ctx, conversationID, placeholder)
	if err != nil {
		return "", fmt.Errorf("media placeholder append: %w", err)
	}
	placeholder.ID = id

	if err := c.summary.RecordSend(ctx, placeholder); err != nil {
		// Summary divergence is not worth killing the send over; the next
		// message in the conversation repairs it.
		logger.Errorf("media summary update: %v", err)
	}

	url, err := c.blobs.Put(ctx, blob.MessageImageKey(id), image)
	if err != nil {
		c.rollback(ctx, conversationID, id)
		return "", fmt.Errorf("media upload: %w", err)
	}
	if err := c.store.SetMessageMediaURL(ctx, conversationID, id, url); err != nil {
		c.rollback(ctx, conversationID, id)
		return "", fmt.Errorf("media finalize: %w", err)
	}
	return id, nil
}

// SendGroupImage is the group-chat variant of SendImage. Group lists carry no
// per-peer summary index, so only the message log is touched.
func (c *Coordinator) SendGroupImage(ctx context.Context, groupID string, m *model.GroupMessage, image io.Reader) (string, error) {
	defer logger.DeferLogDuration("media.SendGroupImage", time.Now())()

	g, err := c.store.GetGroup(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("media group send: %w", err)
	}
	if !g.IsMember(m.SenderID) {
		return "", fmt.Errorf("media group send: %s is not a member of %s", m.SenderID, groupID)
	}

	image, err = blob.SniffImage(image)
	if err != nil {
		return "", err
	}

	m.Kind = model.MessageKindImage
	m.MediaURL = model.PendingMediaURL
	id, err := c.log.AppendGroup(ctx, groupID, m)
	if err != nil {
		return "", fmt.Errorf("media group placeholder append: %w", err)
	}
	m.ID = id

	url, err := c.blobs.Put(ctx, blob.GroupImageKey(groupID, id), image)
	if err != nil {
		c.rollbackGroup(ctx, groupID, id)
		return "", fmt.Errorf("media group upload: %w", err)
	}
	if err := c.store.SetGroupMessageMediaURL(ctx, groupID, id, url); err != nil {
		c.rollbackGroup(ctx, groupID, id)
		return "", fmt.Errorf("media group finalize: %w", err)
	}
	return id, nil
}

// rollback removes the placeholder so no permanently-pending message survives
// a failed upload. A rollback failure is logged, not returned: the caller
// already has the upload error.
func (c *Coordinator) rollback(ctx context.Context, conversationID, messageID string) {
	if err := c.store.DeleteMessage(ctx, conversationID, messageID); err != nil {
		logger.Errorf("media rollback %s/%s: %v", conversationID, messageID, err)
	}
}

func (c *Coordinator) rollbackGroup(ctx context.Context, groupID, messageID string) {
	if err := c.store.DeleteGroupMessage(ctx, groupID, messageID); err != nil {
		logger.Errorf("media group rollback %s/%s: %v", groupID, messageID, err)
	}
}
