// Package notify decides whether an incoming message surfaces a system
// notification, and dispatches the ones that should.
package notify

import (
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
)

// ShouldNotify applies the canonical suppression rule: suppress if and only
// if the app is foregrounded AND the relevant conversation is the one on
// screen; otherwise dispatch. For an individual message id is the sender's
// user id; for a group message it is the group id.
func ShouldNotify(kind model.ConversationKind, id string, snap presence.Snapshot) bool {
	if snap.Foreground && snap.IsOpen(kind, id) {
		return false
	}
	return true
}
