package model

import "testing"

func TestConversationIDSymmetric(t *testing.T) {
	a := ConversationID("alice", "bob")
	b := ConversationID("bob", "alice")
	if a != b {
		t.Fatalf("ConversationID not symmetric: %q vs %q", a, b)
	}
	if a != "alice-bob" {
		t.Fatalf("ConversationID = %q, want %q", a, "alice-bob")
	}
}

func TestConversationIDDeterministic(t *testing.T) {
	first := ConversationID("u42", "u7")
	for i := 0; i < 10; i++ {
		if got := ConversationID("u42", "u7"); got != first {
			t.Fatalf("ConversationID changed between calls: %q vs %q", got, first)
		}
	}
}

func TestConversationIDSelfChat(t *testing.T) {
	if got := ConversationID("alice", "alice"); got != "alice-alice" {
		t.Fatalf("self chat id = %q, want %q", got, "alice-alice")
	}
}
