// Package memory implements store.Store with in-process maps. It backs tests
// and the -dev mode of the sync service, where no external store is running.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

type convLog struct {
	seq  int64
	msgs []model.Message // append order == id order
}

type groupLog struct {
	seq  int64
	msgs []model.GroupMessage
}

type Client struct {
	mu        sync.RWMutex
	convs     map[string]*convLog
	groups    map[string]*model.Group
	groupLogs map[string]*groupLog
	summaries map[string]map[string]*model.ConversationSummary // viewer -> peer -> summary
	notifier  *store.Notifier
}

func New() *Client {
	return &Client{
		convs:     make(map[string]*convLog),
		groups:    make(map[string]*model.Group),
		groupLogs: make(map[string]*groupLog),
		summaries: make(map[string]map[string]*model.ConversationSummary),
		notifier:  store.NewNotifier(),
	}
}

func (c *Client) Close() error { return nil }

func convKey(conversationID string) string { return "conversations/" + conversationID }
func groupKey(groupID string) string       { return "groupMessages/" + groupID }

// nextID formats a per-log sequence number so that lexicographic order of ids
// matches append order, mirroring the remote log's native ordering key.
func nextID(seq int64) string { return fmt.Sprintf("%012d", seq) }

func (c *Client) AppendMessage(ctx context.Context, conversationID string, m *model.Message) (string, error) {
	c.mu.Lock()
	log, ok := c.convs[conversationID]
	if !ok {
		log = &convLog{}
		c.convs[conversationID] = log
	}
	log.seq++
	id := nextID(log.seq)
	cp := *m
	cp.ID = id
	log.msgs = append(log.msgs, cp)
	c.mu.Unlock()

	c.notifier.Notify(convKey(conversationID))
	return id, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, ok := c.convs[conversationID]
	if !ok {
		return []model.Message{}, nil
	}
	out := make([]model.Message, len(log.msgs))
	copy(out, log.msgs)
	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, ok := c.convs[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			cp := log.msgs[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	c.mu.Lock()
	log, ok := c.convs[conversationID]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	found := false
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			log.msgs = append(log.msgs[:i], log.msgs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	c.notifier.Notify(convKey(conversationID))
	return nil
}

func (c *Client) SetMessageStatus(ctx context.Context, conversationID, messageID string, status model.ReadStatus) error {
	c.mu.Lock()
	log, ok := c.convs[conversationID]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	changed := false
	found := false
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			found = true
			// Monotonic: never move the status backwards.
			if !log.msgs[i].Status.AtLeast(status) {
				log.msgs[i].Status = status
				changed = true
			}
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	if changed {
		c.notifier.Notify(convKey(conversationID))
	}
	return nil
}

func (c *Client) SetMessageMediaURL(ctx context.Context, conversationID, messageID, url string) error {
	c.mu.Lock()
	log, ok := c.convs[conversationID]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	found := false
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			log.msgs[i].MediaURL = url
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	c.notifier.Notify(convKey(conversationID))
	return nil
}

func (c *Client) PutGroup(ctx context.Context, g *model.Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *g
	c.groups[g.ID] = &cp
	return nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (c *Client) AppendGroupMessage(ctx context.Context, groupID string, m *model.GroupMessage) (string, error) {
	c.mu.Lock()
	log, ok := c.groupLogs[groupID]
	if !ok {
		log = &groupLog{}
		c.groupLogs[groupID] = log
	}
	log.seq++
	id := nextID(log.seq)
	cp := *m
	cp.ID = id
	cp.GroupID = groupID
	if cp.ReadBy != nil {
		cp.ReadBy = copyReadBy(cp.ReadBy)
	}
	log.msgs = append(log.msgs, cp)
	c.mu.Unlock()

	c.notifier.Notify(groupKey(groupID))
	return id, nil
}

func (c *Client) ListGroupMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, ok := c.groupLogs[groupID]
	if !ok {
		return []model.GroupMessage{}, nil
	}
	out := make([]model.GroupMessage, len(log.msgs))
	for i := range log.msgs {
		out[i] = log.msgs[i]
		out[i].ReadBy = copyReadBy(log.msgs[i].ReadBy)
	}
	return out, nil
}

func (c *Client) DeleteGroupMessage(ctx context.Context, groupID, messageID string) error {
	c.mu.Lock()
	log, ok := c.groupLogs[groupID]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	found := false
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			log.msgs = append(log.msgs[:i], log.msgs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	c.notifier.Notify(groupKey(groupID))
	return nil
}

func (c *Client) SetGroupMessageMediaURL(ctx context.Context, groupID, messageID, url string) error {
	c.mu.Lock()
	log, ok := c.groupLogs[groupID]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	found := false
	for i := range log.msgs {
		if log.msgs[i].ID == messageID {
			log.msgs[i].MediaURL = url
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	c.notifier.Notify(groupKey(groupID))
	return nil
}

func (c *Client) MarkGroupMessagesRead(ctx context.Context, groupID, userID string, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = struct{}{}
	}

	c.mu.Lock()
	log, ok := c.groupLogs[groupID]
	changed := false
	if ok {
		for i := range log.msgs {
			if _, hit := want[log.msgs[i].ID]; !hit {
				continue
			}
			if log.msgs[i].ReadBy == nil {
				log.msgs[i].ReadBy = make(map[string]time.Time)
			}
			if _, already := log.msgs[i].ReadBy[userID]; !already {
				log.msgs[i].ReadBy[userID] = at
				changed = true
			}
		}
	}
	c.mu.Unlock()

	if changed {
		c.notifier.Notify(groupKey(groupID))
	}
	return nil
}

func (c *Client) PutSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	byPeer, ok := c.summaries[viewerID]
	if !ok {
		byPeer = make(map[string]*model.ConversationSummary)
		c.summaries[viewerID] = byPeer
	}
	cur, ok := byPeer[s.PeerID]
	cp := *s
	if ok {
		// Unread counter is owned by Bump/Reset; Put leaves it untouched.
		cp.UnreadCount = cur.UnreadCount
	} else {
		cp.UnreadCount = 0
	}
	byPeer[s.PeerID] = &cp
	return nil
}

func (c *Client) BumpSummary(ctx context.Context, viewerID string, s *model.ConversationSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	byPeer, ok := c.summaries[viewerID]
	if !ok {
		byPeer = make(map[string]*model.ConversationSummary)
		c.summaries[viewerID] = byPeer
	}
	cp := *s
	if cur, ok := byPeer[s.PeerID]; ok {
		cp.UnreadCount = cur.UnreadCount + 1
	} else {
		cp.UnreadCount = 1
	}
	byPeer[s.PeerID] = &cp
	return nil
}

func (c *Client) GetSummary(ctx context.Context, viewerID, peerID string) (*model.ConversationSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byPeer, ok := c.summaries[viewerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	s, ok := byPeer[peerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *Client) ListSummaries(ctx context.Context, viewerID string) ([]model.ConversationSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byPeer := c.summaries[viewerID]
	out := make([]model.ConversationSummary, 0, len(byPeer))
	for _, s := range byPeer {
		out = append(out, *s)
	}
	// Newest conversation first, like the list screen renders it.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (c *Client) ResetUnread(ctx context.Context, viewerID, peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byPeer, ok := c.summaries[viewerID]; ok {
		if s, ok := byPeer[peerID]; ok {
			s.UnreadCount = 0
		}
	}
	return nil
}

func (c *Client) WatchConversation(conversationID string) (*store.Watch, error) {
	return c.notifier.Watch(convKey(conversationID)), nil
}

func (c *Client) WatchGroup(groupID string) (*store.Watch, error) {
	return c.notifier.Watch(groupKey(groupID)), nil
}

// WatchCount reports live watches for a conversation path (test hook for the
// acquire/release contract).
func (c *Client) WatchCount(conversationID string) int {
	return c.notifier.WatchCount(convKey(conversationID))
}

func copyReadBy(in map[string]time.Time) map[string]time.Time {
	if in == nil {
		return nil
	}
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
