package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

func (c *Client) readSummary(viewerID, peerID string) (*model.ConversationSummary, error) {
	data, closer, err := c.db.Get(summaryKey(viewerID, peerID))
	if err == pebble.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.TransientError{Op: "store.readSummary", Err: err}
	}
	defer closer.Close()
	var s model.ConversationSummary
	if err := decode("conversationSummaries/"+viewerID, data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) writeSummary(viewerID string, s *model.ConversationSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store.writeSummary marshal: %w", err)
	}
	if err := c.db.Set(summaryKey(viewerID, s.PeerID), data, pebble.Sync); err != nil {
		return fmt.Errorf("store.writeSummary: %w", err)
	}
	return nil
}

func (c *Client) PutSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	cur, err := c.readSummary(viewerID, s.PeerID)
	switch {
	case err == nil:
		cp.UnreadCount = cur.UnreadCount
	case err == store.ErrNotFound:
		cp.UnreadCount = 0
	default:
		return err
	}
	return c.writeSummary(viewerID, &cp)
}

func (c *Client) BumpSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	cur, err := c.readSummary(viewerID, s.PeerID)
	switch {
	case err == nil:
		cp.UnreadCount = cur.UnreadCount + 1
	case err == store.ErrNotFound:
		cp.UnreadCount = 1
	default:
		return err
	}
	return c.writeSummary(viewerID, &cp)
}

func (c *Client) GetSummary(ctx context.Context, viewerID, peerID string) (*model.ConversationSummary, error) {
	return c.readSummary(viewerID, peerID)
}

func (c *Client) ListSummaries(ctx context.Context, viewerID string) ([]model.ConversationSummary, error) {
	iter, err := c.db.NewIter(prefixBounds(summaryPrefix(viewerID)))
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListSummaries", Err: err}
	}
	defer iter.Close()

	out := make([]model.ConversationSummary, 0, 16)
	for iter.First(); iter.Valid(); iter.Next() {
		var s model.ConversationSummary
		if err := decode("conversationSummaries/"+viewerID, iter.Value(), &s); err != nil {
			logger.Errorf("store: skipping malformed record %s: %v", iter.Key(), err)
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (c *Client) ResetUnread(ctx context.Context, viewerID, peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.readSummary(viewerID, peerID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.UnreadCount == 0 {
		return nil
	}
	cur.UnreadCount = 0
	return c.writeSummary(viewerID, cur)
}
