package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/summary"
)

// MessageHandler serves individual-conversation endpoints: send, history,
// mark-read, summaries.
type MessageHandler struct {
	svc     *chat.Service
	log     *chatlog.Log
	summary *summary.Index
	users   identity.Provider
}

func NewMessageHandler(svc *chat.Service, log *chatlog.Log, idx *summary.Index, users identity.Provider) *MessageHandler {
	return &MessageHandler{svc: svc, log: log, summary: idx, users: users}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	ReplyToID  string `json:"reply_to_id,omitempty"`
}

// Send appends a text message to the conversation with receiver_id.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ReceiverID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "receiver_id and body required")
		return
	}
	m, err := h.svc.SendText(r.Context(), userID, req.ReceiverID, req.Body, req.ReplyToID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// History returns the ordered snapshot of the conversation with peer.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	peerID := chi.URLParam(r, "peerId")
	conversationID := model.ConversationID(userID, peerID)
	msgs, err := h.log.Messages(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkRead schedules read-state reconciliation for the conversation with
// peer. Always answers ok: reconciliation outcome is never user-visible.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	peerID := chi.URLParam(r, "peerId")
	h.svc.MarkConversationRead(userID, peerID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Summaries returns the viewer's conversation list, newest first.
func (h *MessageHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	items, err := h.summary.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list summaries")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// UnreadCount returns the viewer's unread counter for one conversation.
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	peerID := chi.URLParam(r, "peerId")
	n, err := h.summary.UnreadCount(r.Context(), userID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get unread count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": n})
}
