package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
)

type recordedCall struct {
	userID string
	title  string
	body   string
	data   map[string]string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeSender) Notify(ctx context.Context, userID, title, body string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{userID: userID, title: title, body: body, data: data})
	return nil
}

func (f *fakeSender) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func TestMessageReceivedNotifiesBackgroundedReceiver(t *testing.T) {
	reg := presence.NewRegistry()
	reg.ForUser("bob").SetForeground(false)
	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)

	d.MessageReceived(context.Background(), &model.Message{ID: "1", SenderID: "alice", ReceiverID: "bob", Body: "hey"})

	calls := sender.snapshot()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].userID != "bob" || calls[0].title != "alice" || calls[0].body != "hey" {
		t.Fatalf("unexpected notification: %+v", calls[0])
	}
}

func TestMessageReceivedSuppressedWhenConversationOpen(t *testing.T) {
	reg := presence.NewRegistry()
	g := reg.ForUser("bob")
	g.SetForeground(true)
	g.EnterConversation(model.KindIndividual, "alice")
	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)

	d.MessageReceived(context.Background(), &model.Message{ID: "1", SenderID: "alice", ReceiverID: "bob", Body: "hey"})

	if n := len(sender.snapshot()); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
}

func TestMessageReceivedImageUsesPreviewLabel(t *testing.T) {
	reg := presence.NewRegistry()
	reg.ForUser("bob").SetForeground(false)
	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)

	d.MessageReceived(context.Background(), &model.Message{
		ID: "1", SenderID: "alice", ReceiverID: "bob",
		Kind: model.MessageKindImage, MediaURL: "/api/media/chatImages/1.jpg",
	})

	calls := sender.snapshot()
	if len(calls) != 1 || calls[0].body != model.ImagePreviewLabel {
		t.Fatalf("image notification body = %+v, want %q", calls, model.ImagePreviewLabel)
	}
}

func TestNilSenderIsNoop(t *testing.T) {
	d := NewDispatcher(presence.NewRegistry(), nil)
	d.MessageReceived(context.Background(), &model.Message{SenderID: "a", ReceiverID: "b"})
	d.GroupMessageReceived(context.Background(), &model.Group{ID: "g"}, &model.GroupMessage{SenderID: "a"})
}

func TestGroupMessageReceivedPerMemberGating(t *testing.T) {
	reg := presence.NewRegistry()
	// bob has the group open and foregrounded: suppressed.
	bg := reg.ForUser("bob")
	bg.SetForeground(true)
	bg.EnterConversation(model.KindGroup, "g1")
	// carol is backgrounded: notified. dave is unknown: notified.
	reg.ForUser("carol").SetForeground(false)

	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)
	group := &model.Group{ID: "g1", Name: "team", Members: []string{"alice", "bob", "carol", "dave"}}
	d.GroupMessageReceived(context.Background(), group, &model.GroupMessage{ID: "1", SenderID: "alice", Body: "standup?"})

	calls := sender.snapshot()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2 (carol and dave)", len(calls))
	}
	got := map[string]bool{}
	for _, c := range calls {
		got[c.userID] = true
		if c.title != "team" {
			t.Fatalf("group notification title = %q, want group name", c.title)
		}
	}
	if !got["carol"] || !got["dave"] {
		t.Fatalf("notified users = %v, want carol and dave", got)
	}
}

func TestGroupMentionFlaggedInPayload(t *testing.T) {
	reg := presence.NewRegistry()
	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)
	group := &model.Group{ID: "g1", Name: "team", Members: []string{"alice", "bob", "carol"}}

	d.GroupMessageReceived(context.Background(), group, &model.GroupMessage{
		ID: "1", SenderID: "alice", Body: "ping", MentionedUsers: []string{"bob"},
	})

	for _, c := range sender.snapshot() {
		mentioned := c.data["mentioned"] == "true"
		if c.userID == "bob" && !mentioned {
			t.Fatal("mention flag missing for mentioned member")
		}
		if c.userID == "carol" && mentioned {
			t.Fatal("mention flag set for unmentioned member")
		}
	}
}

func TestGroupSystemMessageDoesNotNotify(t *testing.T) {
	reg := presence.NewRegistry()
	sender := &fakeSender{}
	d := NewDispatcher(reg, sender)
	group := &model.Group{ID: "g1", Name: "team", Members: []string{"alice", "bob"}}

	d.GroupMessageReceived(context.Background(), group, &model.GroupMessage{ID: "1", SenderID: "alice", Body: "alice created the group", IsSystemMessage: true})

	if n := len(sender.snapshot()); n != 0 {
		t.Fatalf("system message produced %d notifications", n)
	}
}
