package media

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chatsync/internal/blob"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
	"github.com/chatsync/internal/store/memory"
	"github.com/chatsync/internal/summary"
)

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x42}, 64)...)

func newCoordinator(st store.Store, blobs blob.Store) *Coordinator {
	log := chatlog.New(st)
	return NewCoordinator(st, log, summary.New(st), blobs)
}

func TestSendImageFinalizes(t *testing.T) {
	st := memory.New()
	blobs := blob.NewMemoryStore()
	c := newCoordinator(st, blobs)
	ctx := context.Background()

	id, err := c.SendImage(ctx, "alice", "bob", "vacation", bytes.NewReader(jpegBytes))
	if err != nil {
		t.Fatalf("send image: %v", err)
	}

	m, err := st.GetMessage(ctx, model.ConversationID("alice", "bob"), id)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if m.MediaPending() {
		t.Fatal("message still carries the pending sentinel after a successful upload")
	}
	if m.MediaURL == "" || !strings.Contains(m.MediaURL, id) {
		t.Fatalf("media url %q does not reference message id %s", m.MediaURL, id)
	}
	if m.Body != "vacation" {
		t.Fatalf("caption = %q, want %q", m.Body, "vacation")
	}
	if blobs.Len() != 1 {
		t.Fatalf("stored blobs = %d, want 1", blobs.Len())
	}
}

func TestSendImageRejectsNonImage(t *testing.T) {
	st := memory.New()
	c := newCoordinator(st, blob.NewMemoryStore())
	ctx := context.Background()

	_, err := c.SendImage(ctx, "alice", "bob", "", strings.NewReader("definitely not an image"))
	if !errors.Is(err, blob.ErrBadImage) {
		t.Fatalf("err = %v, want ErrBadImage", err)
	}
	msgs, _ := st.ListMessages(ctx, model.ConversationID("alice", "bob"))
	if len(msgs) != 0 {
		t.Fatalf("messages appended for rejected image: %d", len(msgs))
	}
}

func TestSendImageUploadFailureRollsBack(t *testing.T) {
	st := memory.New()
	blobs := blob.NewMemoryStore()
	blobs.FailPut = errors.New("bucket unavailable")
	c := newCoordinator(st, blobs)
	ctx := context.Background()

	_, err := c.SendImage(ctx, "alice", "bob", "", bytes.NewReader(jpegBytes))
	if err == nil {
		t.Fatal("expected upload error")
	}
	msgs, _ := st.ListMessages(ctx, model.ConversationID("alice", "bob"))
	if len(msgs) != 0 {
		t.Fatalf("placeholder survived a failed upload: %d messages", len(msgs))
	}
	// The summary bump is intentionally kept.
	n, _ := summary.New(st).UnreadCount(ctx, "bob", "alice")
	if n != 1 {
		t.Fatalf("receiver unread = %d, want 1 (summary bump is not rolled back)", n)
	}
}

// failFinalizeStore forces the media-url finalize step to fail.
type failFinalizeStore struct {
	store.Store
}

func (s *failFinalizeStore) SetMessageMediaURL(ctx context.Context, conversationID, messageID, url string) error {
	return errors.New("finalize refused")
}

func TestSendImageFinalizeFailureRollsBack(t *testing.T) {
	mem := memory.New()
	st := &failFinalizeStore{Store: mem}
	c := newCoordinator(st, blob.NewMemoryStore())
	ctx := context.Background()

	_, err := c.SendImage(ctx, "alice", "bob", "", bytes.NewReader(jpegBytes))
	if err == nil {
		t.Fatal("expected finalize error")
	}
	msgs, _ := mem.ListMessages(ctx, model.ConversationID("alice", "bob"))
	if len(msgs) != 0 {
		t.Fatalf("placeholder survived a failed finalize: %d messages", len(msgs))
	}
}

func TestSendGroupImage(t *testing.T) {
	st := memory.New()
	c := newCoordinator(st, blob.NewMemoryStore())
	ctx := context.Background()

	if err := st.PutGroup(ctx, &model.Group{ID: "g1", Name: "team", Members: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("put group: %v", err)
	}

	m := &model.GroupMessage{SenderID: "alice", Body: "team photo"}
	id, err := c.SendGroupImage(ctx, "g1", m, bytes.NewReader(jpegBytes))
	if err != nil {
		t.Fatalf("send group image: %v", err)
	}

	if _, err := c.SendGroupImage(ctx, "g1", &model.GroupMessage{SenderID: "mallory"}, bytes.NewReader(jpegBytes)); err == nil {
		t.Fatal("non-member group image send accepted")
	}
	msgs, _ := st.ListGroupMessages(ctx, "g1")
	if len(msgs) != 1 {
		t.Fatalf("group messages = %d, want 1", len(msgs))
	}
	if msgs[0].ID != id || msgs[0].MediaURL == model.PendingMediaURL {
		t.Fatalf("group message not finalized: %+v", msgs[0])
	}
}
