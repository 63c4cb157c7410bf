package push

import (
	"context"
	"fmt"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
)

func TestMemoryRegistryRegisterAndList(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	sub := &webpush.Subscription{Endpoint: "https://push.example/ep1"}
	if err := r.Register(ctx, "alice", sub); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Re-registering the same endpoint does not duplicate.
	if err := r.Register(ctx, "alice", sub); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	subs, err := r.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != sub.Endpoint {
		t.Fatalf("list = %+v, want one subscription", subs)
	}
}

func TestMemoryRegistryLimit(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	for i := 0; i < maxSubsPerUser; i++ {
		ep := fmt.Sprintf("https://push.example/ep%d", i)
		if err := r.Register(ctx, "alice", &webpush.Subscription{Endpoint: ep}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if err := r.Register(ctx, "alice", &webpush.Subscription{Endpoint: "https://push.example/overflow"}); err == nil {
		t.Fatal("registration beyond the per-user cap accepted")
	}
	// Known endpoints still update at the cap.
	if err := r.Register(ctx, "alice", &webpush.Subscription{Endpoint: "https://push.example/ep0"}); err != nil {
		t.Fatalf("update at cap: %v", err)
	}
}

func TestMemoryRegistryClear(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	r.Register(ctx, "alice", &webpush.Subscription{Endpoint: "ep1"})
	r.Register(ctx, "alice", &webpush.Subscription{Endpoint: "ep2"})

	if err := r.Clear(ctx, "alice", "ep1"); err != nil {
		t.Fatalf("clear one: %v", err)
	}
	subs, _ := r.List(ctx, "alice")
	if len(subs) != 1 || subs[0].Endpoint != "ep2" {
		t.Fatalf("after single clear: %+v", subs)
	}

	if err := r.Clear(ctx, "alice", ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	subs, _ = r.List(ctx, "alice")
	if len(subs) != 0 {
		t.Fatalf("after clear all: %+v", subs)
	}
}
