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

func (c *Client) PutSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	defer logger.DeferLogDuration("store.PutSummary", time.Now())()
	_, err := c.pool.Exec(ctx,
		`INSERT INTO conversation_summaries (viewer_id, peer_id, conversation_id, last_message, last_sender_id, ts, unread_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 0)
		 ON CONFLICT (viewer_id, peer_id) DO UPDATE
		 SET last_message = $4, last_sender_id = $5, ts = $6`,
		viewerID, s.PeerID, s.ConversationID, s.LastMessage, s.LastSenderID, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store.PutSummary: %w", err)
	}
	return nil
}

// BumpSummary increments unread_count server-side in the same statement that
// refreshes the preview, never read-modify-write, so concurrent senders
// cannot lose updates.
func (c *Client) BumpSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	defer logger.DeferLogDuration("store.BumpSummary", time.Now())()
	_, err := c.pool.Exec(ctx,
		`INSERT INTO conversation_summaries (viewer_id, peer_id, conversation_id, last_message, last_sender_id, ts, unread_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)
		 ON CONFLICT (viewer_id, peer_id) DO UPDATE
		 SET last_message = $4, last_sender_id = $5, ts = $6,
		     unread_count = conversation_summaries.unread_count + 1`,
		viewerID, s.PeerID, s.ConversationID, s.LastMessage, s.LastSenderID, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store.BumpSummary: %w", err)
	}
	return nil
}

func (c *Client) GetSummary(ctx context.Context, viewerID, peerID string) (*model.ConversationSummary, error) {
	defer logger.DeferLogDuration("store.GetSummary", time.Now())()
	s := &model.ConversationSummary{}
	err := c.pool.QueryRow(ctx,
		`SELECT conversation_id, peer_id, last_message, last_sender_id, ts, unread_count
		 FROM conversation_summaries WHERE viewer_id = $1 AND peer_id = $2`,
		viewerID, peerID,
	).Scan(&s.ConversationID, &s.PeerID, &s.LastMessage, &s.LastSenderID, &s.Timestamp, &s.UnreadCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.GetSummary: %w", err)
	}
	return s, nil
}

func (c *Client) ListSummaries(ctx context.Context, viewerID string) ([]model.ConversationSummary, error) {
	defer logger.DeferLogDuration("store.ListSummaries", time.Now())()
	rows, err := c.pool.Query(ctx,
		`SELECT conversation_id, peer_id, last_message, last_sender_id, ts, unread_count
		 FROM conversation_summaries
		 WHERE viewer_id = $1
		 ORDER BY ts DESC`, viewerID,
	)
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListSummaries", Err: err}
	}
	defer rows.Close()

	out := make([]model.ConversationSummary, 0, 16)
	for rows.Next() {
		var s model.ConversationSummary
		if err := rows.Scan(&s.ConversationID, &s.PeerID, &s.LastMessage, &s.LastSenderID, &s.Timestamp, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("store.ListSummaries scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.TransientError{Op: "store.ListSummaries", Err: err}
	}
	return out, nil
}

func (c *Client) ResetUnread(ctx context.Context, viewerID, peerID string) error {
	defer logger.DeferLogDuration("store.ResetUnread", time.Now())()
	_, err := c.pool.Exec(ctx,
		`UPDATE conversation_summaries SET unread_count = 0
		 WHERE viewer_id = $1 AND peer_id = $2`,
		viewerID, peerID,
	)
	if err != nil {
		return fmt.Errorf("store.ResetUnread: %w", err)
	}
	return nil
}
