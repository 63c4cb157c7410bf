// Package pebble implements store.Store on an embedded Pebble database for
// local development without PostgreSQL. Keys carry a zero-padded per-log
// sequence so iteration order is append order; change signals are in-process
// (a single dev process is the only writer).
package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

type Client struct {
	db       *pebble.DB
	notifier *store.Notifier

	// mu serializes seq allocation and read-modify-write patches. The dev
	// store has a single writer process, so a process-wide mutex is enough
	// to stand in for the remote store's atomicity.
	mu   sync.Mutex
	seqs map[string]int64
}

func Open(path string) (*Client, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open %s: %w", path, err)
	}
	return &Client{
		db:       db,
		notifier: store.NewNotifier(),
		seqs:     make(map[string]int64),
	}, nil
}

func (c *Client) Close() error { return c.db.Close() }

// seg escapes a caller-supplied id for use as a key segment. Ids may contain
// the ':' separator; escaping keeps one log's keys out of another's prefix
// scan (and the encoding is injective, so distinct ids never collide).
func seg(id string) string { return url.QueryEscape(id) }

func msgKey(conversationID string, seq int64) []byte {
	return []byte(fmt.Sprintf("conv:%s:msg:%020d", seg(conversationID), seq))
}

func msgPrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:msg:", seg(conversationID)))
}

func groupMsgKey(groupID string, seq int64) []byte {
	return []byte(fmt.Sprintf("grp:%s:msg:%020d", seg(groupID), seq))
}

func groupMsgPrefix(groupID string) []byte {
	return []byte(fmt.Sprintf("grp:%s:msg:", seg(groupID)))
}

func groupRecKey(groupID string) []byte { return []byte("grpmeta:" + seg(groupID)) }

func summaryKey(viewerID, peerID string) []byte {
	return []byte(fmt.Sprintf("summary:%s:%s", seg(viewerID), seg(peerID)))
}

func summaryPrefix(viewerID string) []byte {
	return []byte(fmt.Sprintf("summary:%s:", seg(viewerID)))
}

func convPath(conversationID string) string { return "conversations/" + conversationID }
func groupPath(groupID string) string       { return "groupMessages/" + groupID }

// nextSeq allocates the next append-order key for a log, recovering the
// high-water mark from disk on first use after restart.
func (c *Client) nextSeq(logKey string, prefix []byte) (int64, error) {
	if last, ok := c.seqs[logKey]; ok {
		c.seqs[logKey] = last + 1
		return last + 1, nil
	}
	iter, err := c.db.NewIter(prefixBounds(prefix))
	if err != nil {
		return 0, fmt.Errorf("seq recover iter: %w", err)
	}
	defer iter.Close()
	var last int64
	if iter.Last() && iter.Valid() {
		key := iter.Key()
		if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &last); err != nil {
			return 0, fmt.Errorf("seq recover parse %q: %w", key, err)
		}
	}
	c.seqs[logKey] = last + 1
	return last + 1, nil
}

func prefixBounds(prefix []byte) *pebble.IterOptions {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			upper = upper[:i+1]
			break
		}
	}
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: upper}
}

func formatID(seq int64) string { return fmt.Sprintf("%012d", seq) }

func parseID(id string) (int64, error) {
	var seq int64
	if _, err := fmt.Sscanf(id, "%d", &seq); err != nil {
		return 0, store.ErrNotFound
	}
	return seq, nil
}

// decode enforces the fail-closed schema policy: a malformed record yields a
// typed DecodeError; list operations skip it with a logged warning rather
// than silently dropping or aborting the whole snapshot.
func decode(path string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &store.DecodeError{Path: path, Err: err}
	}
	return nil
}

func (c *Client) AppendMessage(ctx context.Context, conversationID string, m *model.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.nextSeq("conv:"+conversationID, msgPrefix(conversationID))
	if err != nil {
		return "", &store.AppendError{Path: convPath(conversationID), Err: err}
	}
	cp := *m
	cp.ID = formatID(seq)
	data, err := json.Marshal(&cp)
	if err != nil {
		return "", &store.AppendError{Path: convPath(conversationID), Err: err}
	}
	if err := c.db.Set(msgKey(conversationID, seq), data, pebble.Sync); err != nil {
		return "", &store.AppendError{Path: convPath(conversationID), Err: err}
	}
	c.notifier.Notify(convPath(conversationID))
	return cp.ID, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	iter, err := c.db.NewIter(prefixBounds(msgPrefix(conversationID)))
	if err != nil {
		return nil, &store.TransientError{Op: "store.ListMessages", Err: err}
	}
	defer iter.Close()

	out := make([]model.Message, 0, 64)
	for iter.First(); iter.Valid(); iter.Next() {
		var m model.Message
		if err := decode(convPath(conversationID), iter.Value(), &m); err != nil {
			logger.Errorf("store: skipping malformed record %s: %v", iter.Key(), err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	seq, err := parseID(messageID)
	if err != nil {
		return nil, err
	}
	data, closer, err := c.db.Get(msgKey(conversationID, seq))
	if err == pebble.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.TransientError{Op: "store.GetMessage", Err: err}
	}
	defer closer.Close()
	var m model.Message
	if err := decode(convPath(conversationID), data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	key := msgKey(conversationID, seq)
	if _, closer, err := c.db.Get(key); err == pebble.ErrNotFound {
		return store.ErrNotFound
	} else if err != nil {
		return &store.TransientError{Op: "store.DeleteMessage", Err: err}
	} else {
		closer.Close()
	}
	if err := c.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("store.DeleteMessage: %w", err)
	}
	c.notifier.Notify(convPath(conversationID))
	return nil
}

// patchMessage rewrites one record under the write mutex.
func (c *Client) patchMessage(conversationID, messageID string, patch func(*model.Message) bool) error {
	seq, err := parseID(messageID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := msgKey(conversationID, seq)
	data, closer, err := c.db.Get(key)
	if err == pebble.ErrNotFound {
		return store.ErrNotFound
	}
	if err != nil {
		return &store.TransientError{Op: "store.patchMessage", Err: err}
	}
	var m model.Message
	decodeErr := decode(convPath(conversationID), data, &m)
	closer.Close()
	if decodeErr != nil {
		return decodeErr
	}
	if !patch(&m) {
		return nil
	}
	out, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("store.patchMessage marshal: %w", err)
	}
	if err := c.db.Set(key, out, pebble.Sync); err != nil {
		return fmt.Errorf("store.patchMessage: %w", err)
	}
	c.notifier.Notify(convPath(conversationID))
	return nil
}

func (c *Client) SetMessageStatus(ctx context.Context, conversationID, messageID string, status model.ReadStatus) error {
	return c.patchMessage(conversationID, messageID, func(m *model.Message) bool {
		if m.Status.AtLeast(status) {
			return false
		}
		m.Status = status
		return true
	})
}

func (c *Client) SetMessageMediaURL(ctx context.Context, conversationID, messageID, url string) error {
	return c.patchMessage(conversationID, messageID, func(m *model.Message) bool {
		m.MediaURL = url
		return true
	})
}

func (c *Client) WatchConversation(conversationID string) (*store.Watch, error) {
	return c.notifier.Watch(convPath(conversationID)), nil
}

func (c *Client) WatchGroup(groupID string) (*store.Watch, error) {
	return c.notifier.Watch(groupPath(groupID)), nil
}
