package chatlog

import (
	"context"
	"testing"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store/memory"
)

func TestAppendAssignsDefaults(t *testing.T) {
	st := memory.New()
	l := New(st)
	ctx := context.Background()

	m := &model.Message{SenderID: "alice", ReceiverID: "bob", Body: "hi"}
	id, err := l.Append(ctx, "alice-bob", m)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatal("append returned empty id")
	}
	if m.Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}
	if m.Status != model.ReadStatusSent {
		t.Fatalf("status = %s, want sent", m.Status)
	}
}

func TestMessagesOrderedByTimestampStable(t *testing.T) {
	st := memory.New()
	l := New(st)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Third message has an earlier client timestamp; the two collisions must
	// keep append order because the log's native key breaks the tie.
	stamps := []time.Time{base, base, base.Add(-time.Minute)}
	bodies := []string{"first", "second", "early-clock"}
	for i := range stamps {
		if _, err := l.Append(ctx, "alice-bob", &model.Message{Body: bodies[i], Timestamp: stamps[i]}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := l.Messages(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	want := []string{"early-clock", "first", "second"}
	for i, w := range want {
		if msgs[i].Body != w {
			t.Fatalf("position %d = %q, want %q (full order %v)", i, msgs[i].Body, w, bodies)
		}
	}
}

func TestSubscribeEmitsInitialAndOnMutation(t *testing.T) {
	st := memory.New()
	l := New(st)
	ctx := context.Background()

	if _, err := l.Append(ctx, "alice-bob", &model.Message{Body: "existing"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sub, err := l.Subscribe(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case snap := <-sub.C:
		if len(snap) != 1 || snap[0].Body != "existing" {
			t.Fatalf("initial snapshot = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := l.Append(ctx, "alice-bob", &model.Message{Body: "fresh"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-sub.C:
			if len(snap) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("mutation snapshot never arrived")
		}
	}
}

func TestSubscriptionCloseReleasesWatch(t *testing.T) {
	st := memory.New()
	l := New(st)

	sub, err := l.Subscribe(context.Background(), "alice-bob")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := st.WatchCount("alice-bob"); n != 1 {
		t.Fatalf("watch count = %d, want 1", n)
	}
	sub.Close()
	if n := st.WatchCount("alice-bob"); n != 0 {
		t.Fatalf("watch count after close = %d, want 0", n)
	}
	// Channel must be closed so consumers ranging over it exit.
	if _, ok := <-sub.C; ok {
		// A final buffered snapshot may be pending; the channel must still
		// close right after.
		if _, ok := <-sub.C; ok {
			t.Fatal("snapshot channel not closed after Close")
		}
	}
}

func TestSubscriptionLatestWins(t *testing.T) {
	st := memory.New()
	l := New(st)
	ctx := context.Background()

	sub, err := l.Subscribe(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Do not read; pile up mutations so intermediate snapshots are replaced.
	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, "alice-bob", &model.Message{Body: "m"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Eventually a snapshot with all five messages must be observable.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub.C:
			if len(snap) == 5 {
				return
			}
		case <-deadline:
			t.Fatal("full snapshot never delivered")
		}
	}
}
