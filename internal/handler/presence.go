package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
)

// PresenceHandler mutates the caller's presence gate. Presence updates cannot
// fail; every endpoint answers ok once the input parses.
type PresenceHandler struct {
	registry *presence.Registry
	users    identity.Provider
}

func NewPresenceHandler(reg *presence.Registry, users identity.Provider) *PresenceHandler {
	return &PresenceHandler{registry: reg, users: users}
}

type enterRequest struct {
	Kind model.ConversationKind `json:"kind"`
	ID   string                 `json:"id"`
}

func (h *PresenceHandler) Enter(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if (req.Kind != model.KindIndividual && req.Kind != model.KindGroup) || req.ID == "" {
		writeError(w, http.StatusBadRequest, "kind (individual|group) and id required")
		return
	}
	h.registry.ForUser(userID).EnterConversation(req.Kind, req.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PresenceHandler) Exit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	h.registry.ForUser(userID).ExitConversation()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type foregroundRequest struct {
	Foreground bool `json:"foreground"`
}

func (h *PresenceHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req foregroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.registry.ForUser(userID).SetForeground(req.Foreground)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
