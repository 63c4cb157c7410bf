// Package chat is the orchestration layer shared by the HTTP handlers and the
// WebSocket hub: one send touches the message log, the summary index and the
// notification dispatcher in a fixed order, and that order lives here only.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/readstate"
	"github.com/chatsync/internal/store"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/task"
)

// Notifier receives successful sends for presence-gated push delivery.
// Implemented by notify.Dispatcher; nil disables notifications.
type Notifier interface {
	MessageReceived(ctx context.Context, m *model.Message)
	GroupMessageReceived(ctx context.Context, g *model.Group, m *model.GroupMessage)
}

type Service struct {
	store      store.Store
	log        *chatlog.Log
	summary    *summary.Index
	reconciler *readstate.Reconciler
	notifier   Notifier
	tasks      *task.Runner
}

func NewService(st store.Store, log *chatlog.Log, idx *summary.Index, rec *readstate.Reconciler, notifier Notifier, tasks *task.Runner) *Service {
	return &Service{store: st, log: log, summary: idx, reconciler: rec, notifier: notifier, tasks: tasks}
}

// SendText appends a text message, updates both summaries and schedules the
// notification. When replyToID names an existing message its preview is
// denormalized onto the new message at send time.
func (s *Service) SendText(ctx context.Context, senderID, receiverID, body, replyToID string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendText", time.Now())()
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("chat send: empty body")
	}
	conversationID := model.ConversationID(senderID, receiverID)
	m := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Kind:       model.MessageKindText,
	}
	if replyToID != "" {
		m.ReplyToID = replyToID
		if original, err := s.store.GetMessage(ctx, conversationID, replyToID); err == nil {
			m.ReplyTo = model.ReplySnapshotOf(original)
		} else if !errors.Is(err, store.ErrNotFound) {
			logger.Errorf("chat reply preview %s/%s: %v", conversationID, replyToID, err)
		}
	}
	id, err := s.log.Append(ctx, conversationID, m)
	if err != nil {
		return nil, err
	}
	m.ID = id
	if err := s.summary.RecordSend(ctx, m); err != nil {
		logger.Errorf("chat summary update: %v", err)
	}
	s.notifyMessage(m)
	return m, nil
}

// SendGroupText appends a text message to a group the sender belongs to.
func (s *Service) SendGroupText(ctx context.Context, groupID, senderID, body, replyToID string, mentions []string) (*model.GroupMessage, error) {
	defer logger.DeferLogDuration("chat.SendGroupText", time.Now())()
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("chat group send: empty body")
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("chat group send: %w", err)
	}
	if !g.IsMember(senderID) {
		return nil, fmt.Errorf("chat group send: %s is not a member of %s", senderID, groupID)
	}
	m := &model.GroupMessage{
		GroupID:        groupID,
		SenderID:       senderID,
		Body:           body,
		Kind:           model.MessageKindText,
		MentionedUsers: mentions,
	}
	if replyToID != "" {
		m.ReplyToID = replyToID
		m.ReplyTo = s.groupReplySnapshot(ctx, groupID, replyToID)
	}
	id, err := s.log.AppendGroup(ctx, groupID, m)
	if err != nil {
		return nil, err
	}
	m.ID = id
	s.notifyGroupMessage(g, m)
	return m, nil
}

// CreateGroup writes the membership record and a system message announcing
// the creation. The creator is always a member and an admin.
func (s *Service) CreateGroup(ctx context.Context, name, creatorID string, members []string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("chat create group: empty name")
	}
	seen := map[string]struct{}{creatorID: {}}
	all := []string{creatorID}
	for _, id := range members {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		all = append(all, id)
	}
	g := &model.Group{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: time.Now().UTC(),
		Members:   all,
		Admins:    []string{creatorID},
	}
	if err := s.store.PutGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("chat create group: %w", err)
	}
	sys := &model.GroupMessage{
		GroupID:         g.ID,
		SenderID:        creatorID,
		Body:            fmt.Sprintf("%s created the group %q", creatorID, name),
		Kind:            model.MessageKindText,
		IsSystemMessage: true,
	}
	if _, err := s.log.AppendGroup(ctx, g.ID, sys); err != nil {
		logger.Errorf("chat create group system message: %v", err)
	}
	return g, nil
}

// Group returns the membership record.
func (s *Service) Group(ctx context.Context, groupID string) (*model.Group, error) {
	return s.store.GetGroup(ctx, groupID)
}

// MarkConversationRead schedules read-state reconciliation for the
// conversation with peer. Fire-and-forget: the caller's snapshot delivery is
// never blocked and reconciliation failure is invisible to the viewer.
func (s *Service) MarkConversationRead(viewerID, peerID string) {
	s.tasks.Submit("reconcile "+model.ConversationID(viewerID, peerID), func(ctx context.Context) error {
		return s.reconciler.ReconcileConversation(ctx, viewerID, peerID)
	})
}

// MarkGroupRead schedules the viewer's group read receipts.
func (s *Service) MarkGroupRead(groupID, viewerID string) {
	s.tasks.Submit("reconcile group "+groupID, func(ctx context.Context) error {
		return s.reconciler.ReconcileGroup(ctx, groupID, viewerID)
	})
}

// groupReplySnapshot resolves a reply preview from the group log. An
// unresolvable id yields a reply without a preview, not an error.
func (s *Service) groupReplySnapshot(ctx context.Context, groupID, messageID string) *model.ReplySnapshot {
	msgs, err := s.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		logger.Errorf("chat group reply preview %s/%s: %v", groupID, messageID, err)
		return nil
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return model.ReplySnapshotOf(&model.Message{
				SenderID: msgs[i].SenderID,
				Body:     msgs[i].Body,
				Kind:     msgs[i].Kind,
				MediaURL: msgs[i].MediaURL,
			})
		}
	}
	return nil
}

func (s *Service) notifyMessage(m *model.Message) {
	if s.notifier == nil {
		return
	}
	msg := *m
	s.tasks.Submit("notify "+m.ReceiverID, func(ctx context.Context) error {
		s.notifier.MessageReceived(ctx, &msg)
		return nil
	})
}

func (s *Service) notifyGroupMessage(g *model.Group, m *model.GroupMessage) {
	if s.notifier == nil {
		return
	}
	msg := *m
	s.tasks.Submit("notify group "+g.ID, func(ctx context.Context) error {
		s.notifier.GroupMessageReceived(ctx, g, &msg)
		return nil
	})
}
