package notify

import (
	"context"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
)

// Sender delivers a system notification to one user's registered devices.
// Implemented by push.Sender; nil disables delivery.
type Sender interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string) error
}

// Dispatcher gates outbound notifications on per-user presence. Delivery
// failures are logged and swallowed: a lost notification never interrupts
// message flow.
type Dispatcher struct {
	presence *presence.Registry
	sender   Sender
}

func NewDispatcher(reg *presence.Registry, sender Sender) *Dispatcher {
	return &Dispatcher{presence: reg, sender: sender}
}

// MessageReceived notifies the receiver of an individual message unless their
// client is foregrounded with this conversation open.
func (d *Dispatcher) MessageReceived(ctx context.Context, m *model.Message) {
	if d.sender == nil {
		return
	}
	snap := d.presence.SnapshotFor(m.ReceiverID)
	if !ShouldNotify(model.KindIndividual, m.SenderID, snap) {
		return
	}
	data := map[string]string{"sender_id": m.SenderID, "message_id": m.ID}
	if err := d.sender.Notify(ctx, m.ReceiverID, m.SenderID, m.PreviewBody(), data); err != nil {
		logger.Errorf("notify %s: %v", m.ReceiverID, err)
	}
}

// GroupMessageReceived notifies every group member except the sender,
// applying the presence rule per member. System messages do not notify.
func (d *Dispatcher) GroupMessageReceived(ctx context.Context, g *model.Group, m *model.GroupMessage) {
	if d.sender == nil || m.IsSystemMessage {
		return
	}
	body := m.Body
	if m.Kind == model.MessageKindImage {
		body = model.ImagePreviewLabel
	}
	for _, uid := range g.Members {
		if uid == m.SenderID {
			continue
		}
		snap := d.presence.SnapshotFor(uid)
		if !ShouldNotify(model.KindGroup, g.ID, snap) {
			continue
		}
		data := map[string]string{"group_id": g.ID, "message_id": m.ID}
		if m.Mentions(uid) {
			data["mentioned"] = "true"
		}
		if err := d.sender.Notify(ctx, uid, g.Name, body, data); err != nil {
			logger.Errorf("notify group %s member %s: %v", g.ID, uid, err)
		}
	}
}
