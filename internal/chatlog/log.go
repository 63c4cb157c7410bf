// Package chatlog exposes the append/subscribe surface of a conversation's
// remote message log. A subscription re-emits the full current ordered
// snapshot on every remote mutation; consumers re-render from scratch per
// emission. Subscriptions are scoped resources: every Subscribe must be paired
// with Close, which releases the remote listener registration.
package chatlog

import (
	"context"
	"sort"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

type Log struct {
	store store.Store
}

func New(st store.Store) *Log {
	return &Log{store: st}
}

// Append writes a message to the conversation log and returns the id assigned
// by the store. A failed append means "not sent": no partial state remains.
func (l *Log) Append(ctx context.Context, conversationID string, m *model.Message) (string, error) {
	defer logger.DeferLogDuration("chatlog.Append", time.Now())()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.ReadStatusSent
	}
	return l.store.AppendMessage(ctx, conversationID, m)
}

// AppendGroup writes a message to a group log.
func (l *Log) AppendGroup(ctx context.Context, groupID string, m *model.GroupMessage) (string, error) {
	defer logger.DeferLogDuration("chatlog.AppendGroup", time.Now())()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return l.store.AppendGroupMessage(ctx, groupID, m)
}

// Messages returns the current ordered snapshot without subscribing.
func (l *Log) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs, err := l.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	orderMessages(msgs)
	return msgs, nil
}

// GroupMessages returns the current ordered group snapshot.
func (l *Log) GroupMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error) {
	msgs, err := l.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, err
	}
	orderGroupMessages(msgs)
	return msgs, nil
}

// orderMessages sorts by timestamp ascending for display. The input arrives
// in the log's native append order and the sort is stable, so messages with
// colliding timestamps keep their append order: the native key, not the
// wall clock, is the ordering source of truth.
func orderMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

func orderGroupMessages(msgs []model.GroupMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
