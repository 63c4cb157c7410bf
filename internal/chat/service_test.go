package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/readstate"
	"github.com/chatsync/internal/store/memory"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/task"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []model.Message
	groups   []model.GroupMessage
}

func (n *captureNotifier) MessageReceived(ctx context.Context, m *model.Message) {
	n.mu.Lock()
	n.messages = append(n.messages, *m)
	n.mu.Unlock()
}

func (n *captureNotifier) GroupMessageReceived(ctx context.Context, g *model.Group, m *model.GroupMessage) {
	n.mu.Lock()
	n.groups = append(n.groups, *m)
	n.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *memory.Client, *captureNotifier, *task.Runner) {
	t.Helper()
	st := memory.New()
	log := chatlog.New(st)
	notifier := &captureNotifier{}
	tasks := task.NewRunner(5 * time.Second)
	t.Cleanup(tasks.Shutdown)
	svc := NewService(st, log, summary.New(st), readstate.New(st), notifier, tasks)
	return svc, st, notifier, tasks
}

func TestSendTextAppendsAndNotifies(t *testing.T) {
	svc, st, notifier, tasks := newTestService(t)
	ctx := context.Background()

	m, err := svc.SendText(ctx, "alice", "bob", "  hello  ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.ID == "" {
		t.Fatal("message not assigned an id")
	}
	if m.Body != "hello" {
		t.Fatalf("body = %q, want trimmed %q", m.Body, "hello")
	}

	msgs, _ := st.ListMessages(ctx, model.ConversationID("alice", "bob"))
	if len(msgs) != 1 {
		t.Fatalf("stored messages = %d, want 1", len(msgs))
	}
	n, _ := summary.New(st).UnreadCount(ctx, "bob", "alice")
	if n != 1 {
		t.Fatalf("receiver unread = %d, want 1", n)
	}

	tasks.Wait()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.messages) != 1 || notifier.messages[0].ID != m.ID {
		t.Fatalf("notifier calls = %+v, want the sent message", notifier.messages)
	}
}

func TestSendTextRejectsEmptyBody(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.SendText(context.Background(), "alice", "bob", "   ", ""); err == nil {
		t.Fatal("empty body accepted")
	}
}

func TestSendTextCapturesReplySnapshot(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	original, err := svc.SendText(ctx, "bob", "alice", strings.Repeat("x", 300), "")
	if err != nil {
		t.Fatalf("send original: %v", err)
	}
	reply, err := svc.SendText(ctx, "alice", "bob", "agreed", original.ID)
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if reply.ReplyToID != original.ID {
		t.Fatalf("reply_to_id = %q, want %q", reply.ReplyToID, original.ID)
	}
	if reply.ReplyTo == nil {
		t.Fatal("reply snapshot not captured")
	}
	if reply.ReplyTo.SenderID != "bob" {
		t.Fatalf("snapshot sender = %q, want bob", reply.ReplyTo.SenderID)
	}
	if !strings.HasSuffix(reply.ReplyTo.Body, "...") {
		t.Fatalf("long original not truncated in snapshot: %q", reply.ReplyTo.Body)
	}
}

func TestSendTextUnknownReplyIDTolerated(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	m, err := svc.SendText(context.Background(), "alice", "bob", "hi", "000000999999")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.ReplyTo != nil {
		t.Fatal("snapshot fabricated for an unknown reply id")
	}
	if m.ReplyToID != "000000999999" {
		t.Fatalf("reply id dropped: %q", m.ReplyToID)
	}
}

func TestCreateGroupDedupsAndAnnounces(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "team", "alice", []string{"bob", "alice", "bob", "", "carol"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(g.Members) != len(want) {
		t.Fatalf("members = %v, want %v", g.Members, want)
	}
	for i, id := range want {
		if g.Members[i] != id {
			t.Fatalf("members = %v, want %v", g.Members, want)
		}
	}
	if len(g.Admins) != 1 || g.Admins[0] != "alice" {
		t.Fatalf("admins = %v, want creator only", g.Admins)
	}

	msgs, _ := st.ListGroupMessages(ctx, g.ID)
	if len(msgs) != 1 || !msgs[0].IsSystemMessage {
		t.Fatalf("expected one system message announcing creation, got %+v", msgs)
	}
}

func TestSendGroupTextEnforcesMembership(t *testing.T) {
	svc, _, notifier, tasks := newTestService(t)
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "team", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	if _, err := svc.SendGroupText(ctx, g.ID, "mallory", "hi", "", nil); err == nil {
		t.Fatal("non-member send accepted")
	}

	m, err := svc.SendGroupText(ctx, g.ID, "bob", "standup?", "", []string{"alice"})
	if err != nil {
		t.Fatalf("member send: %v", err)
	}
	if m.ID == "" || len(m.MentionedUsers) != 1 {
		t.Fatalf("unexpected group message: %+v", m)
	}

	tasks.Wait()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.groups) != 1 || notifier.groups[0].ID != m.ID {
		t.Fatalf("group notifier calls = %+v", notifier.groups)
	}
}

func TestMarkConversationReadRunsReconciliation(t *testing.T) {
	svc, st, _, tasks := newTestService(t)
	ctx := context.Background()

	sent, err := svc.SendText(ctx, "alice", "bob", "hello", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	svc.MarkConversationRead("bob", "alice")
	tasks.Wait()

	m, _ := st.GetMessage(ctx, model.ConversationID("alice", "bob"), sent.ID)
	if m.Status != model.ReadStatusRead {
		t.Fatalf("status after mark read = %s, want read", m.Status)
	}
	n, _ := summary.New(st).UnreadCount(ctx, "bob", "alice")
	if n != 0 {
		t.Fatalf("unread after mark read = %d, want 0", n)
	}
}
