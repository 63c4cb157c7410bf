package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

func (c *Client) PutGroup(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("store.PutGroup", time.Now())()
	_, err := c.pool.Exec(ctx,
		`INSERT INTO groups (id, name, created_by, created_at, members, admins)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = $2, members = $5, admins = $6`,
		g.ID, g.Name, g.CreatedBy, g.CreatedAt, g.Members, g.Admins,
	)
	if err != nil {
		return fmt.Errorf("store.PutGroup: %w", err)
	}
	return nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	defer logger.DeferLogDuration("store.GetGroup", time.Now())()
	g := &model.Group{}
	err := c.pool.QueryRow(ctx,
		`SELECT id, name, created_by, created_at, members, COALESCE(admins, '{}')
		 FROM groups WHERE id = $1`, groupID,
	).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.Members, &g.Admins)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.GetGroup: %w", err)
	}
	return g, nil
}

func (c *Client) AppendGroupMessage(ctx context.Context, groupID string, m *model.GroupMessage) (string, error) {
	defer logger.DeferLogDuration("store.AppendGroupMessage", time.Now())()
	var replySender, replyBody, replyMedia *string
	if m.ReplyTo != nil {
		replySender, replyBody, replyMedia = &m.ReplyTo.SenderID, &m.ReplyTo.Body, &m.ReplyTo.MediaURL
	}
	var seq int64
	err := c.pool.QueryRow(ctx,
		`INSERT INTO group_messages (group_id, sender_id, body, kind, media_url, mentioned, is_system, reply_to_id, reply_sender, reply_body, reply_media_url, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
		 RETURNING seq`,
		groupID, m.SenderID, m.Body, m.Kind, m.MediaURL, m.MentionedUsers, m.IsSystemMessage,
		m.ReplyToID, replySender, replyBody, replyMedia, m.Timestamp,
	).Scan(&seq)
	if err != nil {
		return "", &store.AppendError{Path: "groupMessages/" + groupID, Err: err}
	}
	return formatID(seq), nil
}

func (c *Client) ListGroupMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error) {
	defer logger.DeferLogDuration("store.ListGroupMessages", time.Now())()
	rows, err := c.pool.Query(ctx,
		`SELECT seq, sender_id, body, kind, media_url, COALESCE(mentioned, '{}'), is_system,
		        COALESCE(reply_to_id, ''), reply_sender, reply_body, reply_media_url, ts
		 FROM group_messages
		 WHERE group_id = $1
		 ORDER BY seq`, groupID,
	)
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListGroupMessages", Err: err}
	}
	defer rows.Close()

	messages := make([]model.GroupMessage, 0, 64)
	bySeq := make(map[int64]int, 64)
	for rows.Next() {
		var (
			m          model.GroupMessage
			seq        int64
			replySndr  *string
			replyBody  *string
			replyMedia *string
		)
		if err := rows.Scan(&seq, &m.SenderID, &m.Body, &m.Kind, &m.MediaURL, &m.MentionedUsers, &m.IsSystemMessage,
			&m.ReplyToID, &replySndr, &replyBody, &replyMedia, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("store.ListGroupMessages scan: %w", err)
		}
		m.ID = formatID(seq)
		m.GroupID = groupID
		if replySndr != nil {
			snap := &model.ReplySnapshot{SenderID: *replySndr}
			if replyBody != nil {
				snap.Body = *replyBody
			}
			if replyMedia != nil {
				snap.MediaURL = *replyMedia
			}
			m.ReplyTo = snap
		}
		bySeq[seq] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.TransientError{Op: "store.ListGroupMessages", Err: err}
	}

	// Attach read receipts in one pass.
	rcpt, err := c.pool.Query(ctx,
		`SELECT message_seq, user_id, read_at FROM group_read_receipts WHERE group_id = $1`, groupID,
	)
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListGroupMessages receipts", Err: err}
	}
	defer rcpt.Close()
	for rcpt.Next() {
		var (
			seq    int64
			userID string
			readAt time.Time
		)
		if err := rcpt.Scan(&seq, &userID, &readAt); err != nil {
			return nil, fmt.Errorf("store.ListGroupMessages receipts scan: %w", err)
		}
		idx, ok := bySeq[seq]
		if !ok {
			continue
		}
		if messages[idx].ReadBy == nil {
			messages[idx].ReadBy = make(map[string]time.Time, 4)
		}
		messages[idx].ReadBy[userID] = readAt
	}
	if err := rcpt.Err(); err != nil {
		return nil, &store.TransientError{Op: "store.ListGroupMessages receipts", Err: err}
	}
	return messages, nil
}

func (c *Client) DeleteGroupMessage(ctx context.Context, groupID, messageID string) error {
	defer logger.DeferLogDuration("store.DeleteGroupMessage", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM group_messages WHERE group_id = $1 AND seq = $2`, groupID, seq,
	)
	if err != nil {
		return fmt.Errorf("store.DeleteGroupMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) SetGroupMessageMediaURL(ctx context.Context, groupID, messageID, url string) error {
	defer logger.DeferLogDuration("store.SetGroupMessageMediaURL", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE group_messages SET media_url = $3 WHERE group_id = $1 AND seq = $2`,
		groupID, seq, url,
	)
	if err != nil {
		return fmt.Errorf("store.SetGroupMessageMediaURL: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkGroupMessagesRead writes all receipts in a single statement; ON CONFLICT
// DO NOTHING keeps the patch idempotent for messages already read.
func (c *Client) MarkGroupMessagesRead(ctx context.Context, groupID, userID string, messageIDs []string, at time.Time) error {
	defer logger.DeferLogDuration("store.MarkGroupMessagesRead", time.Now())()
	if len(messageIDs) == 0 {
		return nil
	}
	seqs := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		seq, err := parseID(id)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO group_read_receipts (group_id, message_seq, user_id, read_at)
		 SELECT $1, s, $2, $3 FROM unnest($4::bigint[]) AS s
		 ON CONFLICT DO NOTHING`,
		groupID, userID, at, seqs,
	)
	if err != nil {
		return fmt.Errorf("store.MarkGroupMessagesRead: %w", err)
	}
	return nil
}
