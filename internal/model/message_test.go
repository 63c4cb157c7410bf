package model

import (
	"strings"
	"testing"
	"time"
)

func TestReadStatusAtLeast(t *testing.T) {
	cases := []struct {
		s, other ReadStatus
		want     bool
	}{
		{ReadStatusRead, ReadStatusSent, true},
		{ReadStatusRead, ReadStatusRead, true},
		{ReadStatusDelivered, ReadStatusRead, false},
		{ReadStatusSent, ReadStatusDelivered, false},
		{ReadStatusSent, ReadStatusSent, true},
	}
	for _, c := range cases {
		if got := c.s.AtLeast(c.other); got != c.want {
			t.Fatalf("%s.AtLeast(%s) = %v, want %v", c.s, c.other, got, c.want)
		}
	}
}

func TestMediaPending(t *testing.T) {
	m := &Message{Kind: MessageKindImage, MediaURL: PendingMediaURL}
	if !m.MediaPending() {
		t.Fatal("placeholder not reported as pending")
	}
	m.MediaURL = "/api/media/chatImages/000000000001.jpg"
	if m.MediaPending() {
		t.Fatal("finalized image still reported as pending")
	}
	text := &Message{Kind: MessageKindText, MediaURL: PendingMediaURL}
	if text.MediaPending() {
		t.Fatal("text message reported as pending media")
	}
}

func TestPreviewBody(t *testing.T) {
	text := &Message{Kind: MessageKindText, Body: "hello"}
	if got := text.PreviewBody(); got != "hello" {
		t.Fatalf("text preview = %q", got)
	}
	img := &Message{Kind: MessageKindImage, Body: "vacation shot"}
	if got := img.PreviewBody(); got != ImagePreviewLabel {
		t.Fatalf("image preview = %q, want %q", got, ImagePreviewLabel)
	}
}

func TestReplySnapshotTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	snap := ReplySnapshotOf(&Message{SenderID: "alice", Body: long, Kind: MessageKindText})
	if len(snap.Body) > 120 {
		t.Fatalf("reply preview length = %d, want <= 120", len(snap.Body))
	}
	if !strings.HasSuffix(snap.Body, "...") {
		t.Fatalf("truncated preview missing ellipsis: %q", snap.Body)
	}
	if snap.SenderID != "alice" {
		t.Fatalf("snapshot sender = %q", snap.SenderID)
	}
}

func TestGroupMessageReadByUser(t *testing.T) {
	m := &GroupMessage{
		SenderID: "alice",
		ReadBy:   map[string]time.Time{"bob": time.Now()},
	}
	if !m.ReadByUser("alice") {
		t.Fatal("sender must always count as having read their own message")
	}
	if !m.ReadByUser("bob") {
		t.Fatal("recorded receipt not reported")
	}
	if m.ReadByUser("carol") {
		t.Fatal("missing receipt reported as read")
	}
}

func TestGroupIsMember(t *testing.T) {
	g := &Group{Members: []string{"alice", "bob"}}
	if !g.IsMember("bob") || g.IsMember("mallory") {
		t.Fatal("membership check wrong")
	}
}
