// Package presence tracks the process-wide, ephemeral knowledge of whether
// the app is foregrounded and which conversation, if any, is on screen. The
// gate is injected as an interface rather than exposed as a singleton so the
// notification path can be tested against a fake snapshot.
package presence

import (
	"sync"

	"github.com/chatsync/internal/model"
)

// Snapshot is an immutable view of presence at one instant.
type Snapshot struct {
	Foreground bool
	// OpenKind/OpenID identify the visible conversation: the peer user id
	// for an individual chat, the group id for a group. Empty when no
	// conversation is open. At most one conversation is open at a time.
	OpenKind model.ConversationKind
	OpenID   string
}

// IsOpen reports whether the given conversation is the one on screen.
func (s Snapshot) IsOpen(kind model.ConversationKind, id string) bool {
	return s.OpenID != "" && s.OpenKind == kind && s.OpenID == id
}

// Gate is the write/read surface for presence. Mutations are cheap,
// thread-safe and last-write-wins; the gate cannot fail, only go stale if a
// caller forgets ExitConversation.
type Gate interface {
	EnterConversation(kind model.ConversationKind, id string)
	ExitConversation()
	SetForeground(foreground bool)
	IsOpen(kind model.ConversationKind, id string) bool
	Snapshot() Snapshot
}

type gate struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewGate returns a Gate with the app assumed foregrounded and no
// conversation open.
func NewGate() Gate {
	return &gate{snap: Snapshot{Foreground: true}}
}

// EnterConversation records the visible conversation. Writing the whole open
// cell enforces mutual exclusivity: an individual peer and a group id can
// never be recorded as open simultaneously, overlapping navigation is simply
// last-write-wins.
func (g *gate) EnterConversation(kind model.ConversationKind, id string) {
	g.mu.Lock()
	g.snap.OpenKind = kind
	g.snap.OpenID = id
	g.mu.Unlock()
}

func (g *gate) ExitConversation() {
	g.mu.Lock()
	g.snap.OpenKind = ""
	g.snap.OpenID = ""
	g.mu.Unlock()
}

func (g *gate) SetForeground(foreground bool) {
	g.mu.Lock()
	g.snap.Foreground = foreground
	g.mu.Unlock()
}

func (g *gate) IsOpen(kind model.ConversationKind, id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap.IsOpen(kind, id)
}

func (g *gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}
