package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

func (c *Client) PutGroup(ctx context.Context, g *model.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("store.PutGroup marshal: %w", err)
	}
	if err := c.db.Set(groupRecKey(g.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("store.PutGroup: %w", err)
	}
	return nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	data, closer, err := c.db.Get(groupRecKey(groupID))
	if err == pebble.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.TransientError{Op: "store.GetGroup", Err: err}
	}
	defer closer.Close()
	var g model.Group
	if err := decode("groups/"+groupID, data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) AppendGroupMessage(ctx context.Context, groupID string, m *model.GroupMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.nextSeq("grp:"+groupID, groupMsgPrefix(groupID))
	if err != nil {
		return "", &store.AppendError{Path: groupPath(groupID), Err: err}
	}
	cp := *m
	cp.ID = formatID(seq)
	cp.GroupID = groupID
	data, err := json.Marshal(&cp)
	if err != nil {
		return "", &store.AppendError{Path: groupPath(groupID), Err: err}
	}
	if err := c.db.Set(groupMsgKey(groupID, seq), data, pebble.Sync); err != nil {
		return "", &store.AppendError{Path: groupPath(groupID), Err: err}
	}
	c.notifier.Notify(groupPath(groupID))
	return cp.ID, nil
}

func (c *Client) ListGroupMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error) {
	iter, err := c.db.NewIter(prefixBounds(groupMsgPrefix(groupID)))
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListGroupMessages", Err: err}
	}
	defer iter.Close()

	out := make([]model.GroupMessage, 0, 64)
	for iter.First(); iter.Valid(); iter.Next() {
		var m model.GroupMessage
		if err := decode(groupPath(groupID), iter.Value(), &m); err != nil {
			logger.Errorf("store: skipping malformed record %s: %v", iter.Key(), err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) DeleteGroupMessage(ctx context.Context, groupID, messageID string) error {
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	key := groupMsgKey(groupID, seq)
	if _, closer, err := c.db.Get(key); err == pebble.ErrNotFound {
		return store.ErrNotFound
	} else if err != nil {
		return &store.TransientError{Op: "store.DeleteGroupMessage", Err: err}
	} else {
		closer.Close()
	}
	if err := c.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("store.DeleteGroupMessage: %w", err)
	}
	c.notifier.Notify(groupPath(groupID))
	return nil
}

func (c *Client) patchGroupMessage(groupID, messageID string, patch func(*model.GroupMessage) bool) error {
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := groupMsgKey(groupID, seq)
	data, closer, err := c.db.Get(key)
	if err == pebble.ErrNotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return &store.TransientError{Op: "store.patchGroupMessage", Err: err}
	}
	var m model.GroupMessage
	decodeErr := decode(groupPath(groupID), data, &m)
	closer.Close()
	if decodeErr != nil {
		return decodeErr
	}
	if !patch(&m) {
		return nil
	}
	out, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("store.patchGroupMessage marshal: %w", err)
	}
	if err := c.db.Set(key, out, pebble.Sync); err != nil {
		return fmt.Errorf("store.patchGroupMessage: %w", err)
	}
	c.notifier.Notify(groupPath(groupID))
	return nil
}

func (c *Client) SetGroupMessageMediaURL(ctx context.Context, groupID, messageID, url string) error {
	return c.patchGroupMessage(groupID, messageID, func(m *model.GroupMessage) bool {
		m.MediaURL = url
		return true
	})
}

// MarkGroupMessagesRead applies all receipt writes in one pebble batch, the
// local equivalent of the remote store's atomic multi-path update.
func (c *Client) MarkGroupMessagesRead(ctx context.Context, groupID, userID string, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.db.NewBatch()
	defer batch.Close()
	changed := false
	for _, id := range messageIDs {
		seq, err := parseID(id)
		if err != nil {
			continue
		}
		key := groupMsgKey(groupID, seq)
		data, closer, err := c.db.Get(key)
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return &store.TransientError{Op: "store.MarkGroupMessagesRead", Err: err}
		}
		var m model.GroupMessage
		decodeErr := decode(groupPath(groupID), data, &m)
		closer.Close()
		if decodeErr != nil {
			logger.Errorf("store: skipping malformed record %s: %v", key, decodeErr)
			continue
		}
		if _, already := m.ReadBy[userID]; already {
			continue
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]time.Time, 4)
		}
		m.ReadBy[userID] = at
		out, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("store.MarkGroupMessagesRead marshal: %w", err)
		}
		if err := batch.Set(key, out, nil); err != nil {
			return fmt.Errorf("store.MarkGroupMessagesRead batch: %w", err)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("store.MarkGroupMessagesRead commit: %w", err)
	}
	c.notifier.Notify(groupPath(groupID))
	return nil
}
