// Package postgres implements store.Store on PostgreSQL. The BIGSERIAL seq
// column is the log's native append-order key: message ids are the padded seq,
// so id order is append order regardless of wall-clock timestamp collisions.
// Per-path listeners ride on LISTEN/NOTIFY driven by triggers, so mutations by
// any client of the shared store wake local watchers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

const (
	convChannel  = "conversation_changed"
	groupChannel = "group_changed"
)

// statusLifecycle orders read statuses for the monotonic patch guard.
var statusLifecycle = []string{"sent", "delivered", "read"}

type Client struct {
	pool     *pgxpool.Pool
	notifier *store.Notifier
	cancel   context.CancelFunc
	done     chan struct{}
}

// New wraps an existing pool and starts the notification listener.
func New(ctx context.Context, pool *pgxpool.Pool) (*Client, error) {
	listenCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		pool:     pool,
		notifier: store.NewNotifier(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.listen(listenCtx)
	return c, nil
}

func (c *Client) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// listen holds a dedicated connection with LISTEN on both channels and fans
// notifications out to local watches. Reconnects with backoff on error.
func (c *Client) listen(ctx context.Context) {
	defer close(c.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("store listener: %v (reconnect in %v)", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Client) listenOnce(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer conn.Release()

	raw := conn.Conn()
	if _, err := raw.Exec(ctx, "LISTEN "+convChannel); err != nil {
		return fmt.Errorf("listen %s: %w", convChannel, err)
	}
	if _, err := raw.Exec(ctx, "LISTEN "+groupChannel); err != nil {
		return fmt.Errorf("listen %s: %w", groupChannel, err)
	}

	for {
		n, err := raw.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		switch n.Channel {
		case convChannel:
			c.notifier.Notify("conversations/" + n.Payload)
		case groupChannel:
			c.notifier.Notify("groupMessages/" + n.Payload)
		}
	}
}

// formatID renders a seq as the externally visible message id. Padding keeps
// lexicographic order equal to numeric order.
func formatID(seq int64) string { return fmt.Sprintf("%012d", seq) }

func parseID(id string) (int64, error) {
	seq, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, store.ErrNotFound
	}
	return seq, nil
}

func (c *Client) AppendMessage(ctx context.Context, conversationID string, m *model.Message) (string, error) {
	defer logger.DeferLogDuration("store.AppendMessage", time.Now())()
	var replySender, replyBody, replyMedia *string
	if m.ReplyTo != nil {
		replySender, replyBody, replyMedia = &m.ReplyTo.SenderID, &m.ReplyTo.Body, &m.ReplyTo.MediaURL
	}
	var seq int64
	err := c.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, sender_id, receiver_id, body, kind, media_url, status, reply_to_id, reply_sender, reply_body, reply_media_url, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
		 RETURNING seq`,
		conversationID, m.SenderID, m.ReceiverID, m.Body, m.Kind, m.MediaURL, m.Status,
		m.ReplyToID, replySender, replyBody, replyMedia, m.Timestamp,
	).Scan(&seq)
	if err != nil {
		return "", &store.AppendError{Path: "conversations/" + conversationID, Err: err}
	}
	return formatID(seq), nil
}

const messageColumns = `seq, sender_id, receiver_id, body, kind, media_url, status,
		COALESCE(reply_to_id, ''), reply_sender, reply_body, reply_media_url, ts`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m          model.Message
		seq        int64
		replySndr  *string
		replyBody  *string
		replyMedia *string
	)
	err := row.Scan(&seq, &m.SenderID, &m.ReceiverID, &m.Body, &m.Kind, &m.MediaURL, &m.Status,
		&m.ReplyToID, &replySndr, &replyBody, &replyMedia, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.ID = formatID(seq)
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
	return &m, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("store.ListMessages", time.Now())()
	rows, err := c.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY seq`, conversationID,
	)
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListMessages", Err: err}
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 64)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store.ListMessages scan: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.TransientError{Op: "store.ListMessages", Err: err}
	}
	return messages, nil
}

func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("store.GetMessage", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(c.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM messages WHERE conversation_id = $1 AND seq = $2`, conversationID, seq,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.GetMessage: %w", err)
	}
	return m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	defer logger.DeferLogDuration("store.DeleteMessage", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND seq = $2`, conversationID, seq,
	)
	if err != nil {
		return fmt.Errorf("store.DeleteMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) SetMessageStatus(ctx context.Context, conversationID, messageID string, status model.ReadStatus) error {
	defer logger.DeferLogDuration("store.SetMessageStatus", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	// The lifecycle guard makes the patch monotonic and idempotent: writing a
	// status the message already reached affects zero rows and is a no-op.
	tag, err := c.pool.Exec(ctx,
		`UPDATE messages SET status = $3
		 WHERE conversation_id = $1 AND seq = $2
		   AND array_position($4::text[], status) < array_position($4::text[], $3::text)`,
		conversationID, seq, status, statusLifecycle,
	)
	if err != nil {
		return fmt.Errorf("store.SetMessageStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := c.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM messages WHERE conversation_id = $1 AND seq = $2)`,
			conversationID, seq,
		).Scan(&exists); err != nil {
			return fmt.Errorf("store.SetMessageStatus exists: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

func (c *Client) SetMessageMediaURL(ctx context.Context, conversationID, messageID, url string) error {
	defer logger.DeferLogDuration("store.SetMessageMediaURL", time.Now())()
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE messages SET media_url = $3 WHERE conversation_id = $1 AND seq = $2`,
		conversationID, seq, url,
	)
	if err != nil {
		return fmt.Errorf("store.SetMessageMediaURL: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) WatchConversation(conversationID string) (*store.Watch, error) {
	return c.notifier.Watch("conversations/" + conversationID), nil
}

func (c *Client) WatchGroup(groupID string) (*store.Watch, error) {
	return c.notifier.Watch("groupMessages/" + groupID), nil
}
