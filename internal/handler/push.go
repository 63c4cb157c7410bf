package handler

import (
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/push"
)

// PushHandler manages the caller's Web Push subscriptions: register on login,
// clear on logout.
type PushHandler struct {
	registry push.Registry
	sender   *push.Sender
	users    identity.Provider
}

func NewPushHandler(reg push.Registry, sender *push.Sender, users identity.Provider) *PushHandler {
	return &PushHandler{registry: reg, sender: sender, users: users}
}

// VAPIDPublic returns the public key browsers subscribe with.
func (h *PushHandler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil || !h.sender.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.sender.PublicKey()))
}

type subscribeRequest struct {
	Subscription webpush.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sub := req.Subscription
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription (endpoint, keys.p256dh, keys.auth) required")
		return
	}
	if err := h.registry.Register(r.Context(), userID, &sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe clears one subscription by endpoint, or all of the caller's
// subscriptions when the endpoint is empty.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.registry.Clear(r.Context(), userID, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
