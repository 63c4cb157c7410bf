package identity

import (
	"context"
	"errors"
	"testing"
)

func TestContextProvider(t *testing.T) {
	p := ContextProvider{}

	ctx := WithUser(context.Background(), "alice")
	id, err := p.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if id != "alice" {
		t.Fatalf("id = %q, want alice", id)
	}

	if _, err := p.CurrentUserID(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("bare context err = %v, want ErrAuthRequired", err)
	}
}

func TestStaticProvider(t *testing.T) {
	id, err := StaticProvider("bob").CurrentUserID(context.Background())
	if err != nil {
		t.Fatalf("static provider: %v", err)
	}
	if id != "bob" {
		t.Fatalf("id = %q, want bob", id)
	}
}
