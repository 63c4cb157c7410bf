package presence

import (
	"testing"

	"github.com/chatsync/internal/model"
)

func TestNewGateDefaults(t *testing.T) {
	g := NewGate()
	snap := g.Snapshot()
	if !snap.Foreground {
		t.Fatal("fresh gate should report foreground")
	}
	if snap.OpenID != "" || snap.OpenKind != "" {
		t.Fatalf("fresh gate has an open conversation: %+v", snap)
	}
}

func TestEnterConversationMutualExclusivity(t *testing.T) {
	g := NewGate()

	g.EnterConversation(model.KindIndividual, "bob")
	if !g.IsOpen(model.KindIndividual, "bob") {
		t.Fatal("individual conversation not open after enter")
	}

	g.EnterConversation(model.KindGroup, "g1")
	if g.IsOpen(model.KindIndividual, "bob") {
		t.Fatal("individual conversation still open after entering a group")
	}
	if !g.IsOpen(model.KindGroup, "g1") {
		t.Fatal("group not open after enter")
	}
}

func TestExitConversation(t *testing.T) {
	g := NewGate()
	g.EnterConversation(model.KindIndividual, "bob")
	g.ExitConversation()
	if g.IsOpen(model.KindIndividual, "bob") {
		t.Fatal("conversation open after exit")
	}
}

func TestIsOpenDiscriminatesKind(t *testing.T) {
	g := NewGate()
	g.EnterConversation(model.KindGroup, "bob")
	if g.IsOpen(model.KindIndividual, "bob") {
		t.Fatal("same id with different kind reported open")
	}
}

func TestSetForeground(t *testing.T) {
	g := NewGate()
	g.SetForeground(false)
	if g.Snapshot().Foreground {
		t.Fatal("foreground not cleared")
	}
	g.SetForeground(true)
	if !g.Snapshot().Foreground {
		t.Fatal("foreground not restored")
	}
}

func TestRegistryUnknownUserSnapshot(t *testing.T) {
	r := NewRegistry()
	snap := r.SnapshotFor("stranger")
	if snap.Foreground || snap.OpenID != "" {
		t.Fatalf("unknown user should have the zero snapshot, got %+v", snap)
	}
}

func TestRegistryReturnsSameGate(t *testing.T) {
	r := NewRegistry()
	r.ForUser("alice").EnterConversation(model.KindIndividual, "bob")
	if !r.ForUser("alice").IsOpen(model.KindIndividual, "bob") {
		t.Fatal("registry handed out a different gate for the same user")
	}
	if !r.SnapshotFor("alice").IsOpen(model.KindIndividual, "bob") {
		t.Fatal("snapshot does not reflect the user's gate")
	}
}
