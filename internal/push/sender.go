package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatsync/internal/logger"
)

// Sender delivers Web Push notifications to every subscription a user has
// registered. Endpoints that report Gone/Not Found are dropped from the
// registry so the next delivery does not retry a dead device.
type Sender struct {
	registry Registry
	vapid    *webpush.Options
}

// NewSender builds a Sender. When keys is nil push delivery is disabled:
// subscriptions are still accepted, Notify becomes a no-op.
func NewSender(registry Registry, keys *VAPIDKeys) *Sender {
	var opts *webpush.Options
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		opts = &webpush.Options{
			Subscriber:      "chatsync-push",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return &Sender{registry: registry, vapid: opts}
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool { return s.vapid != nil }

// PublicKey returns the VAPID public key clients subscribe with, or "" when
// push is disabled.
func (s *Sender) PublicKey() string {
	if s.vapid == nil {
		return ""
	}
	return s.vapid.VAPIDPublicKey
}

// Notify sends title/body/data to all of the user's subscriptions. Individual
// endpoint failures are logged and skipped; only registry errors surface.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) error {
	if s.vapid == nil {
		return nil
	}
	subs, err := s.registry.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("push notify: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{"title": title, "body": body, "data": data})
	if err != nil {
		return fmt.Errorf("push notify marshal: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := range subs {
		sub := &subs[i]
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, sub, s.vapid)
		if err != nil {
			logger.Errorf("push send %s: %v", truncateEndpoint(sub.Endpoint), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := s.registry.Clear(sendCtx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push drop gone subscription: %v", err)
			}
		}
	}
	return nil
}

func truncateEndpoint(endpoint string) string {
	if len(endpoint) > 50 {
		return endpoint[:50]
	}
	return endpoint
}
