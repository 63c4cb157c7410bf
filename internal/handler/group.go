package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/readstate"
)

// GroupHandler serves group-conversation endpoints.
type GroupHandler struct {
	svc        *chat.Service
	log        *chatlog.Log
	reconciler *readstate.Reconciler
	users      identity.Provider
}

func NewGroupHandler(svc *chat.Service, log *chatlog.Log, rec *readstate.Reconciler, users identity.Provider) *GroupHandler {
	return &GroupHandler{svc: svc, log: log, reconciler: rec, users: users}
}

type createGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), req.Name, userID, req.Members)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	g, err := h.svc.Group(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if !g.IsMember(userID) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type sendGroupMessageRequest struct {
	Body           string   `json:"body"`
	ReplyToID      string   `json:"reply_to_id,omitempty"`
	MentionedUsers []string `json:"mentioned_users,omitempty"`
}

func (h *GroupHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "groupId")
	var req sendGroupMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body required")
		return
	}
	m, err := h.svc.SendGroupText(r.Context(), groupID, userID, req.Body, req.ReplyToID, req.MentionedUsers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *GroupHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "groupId")
	g, err := h.svc.Group(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if !g.IsMember(userID) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	msgs, err := h.log.GroupMessages(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkRead schedules the viewer's read receipts for every unread group
// message in one atomic update.
func (h *GroupHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	h.svc.MarkGroupRead(chi.URLParam(r, "groupId"), userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *GroupHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	n, err := h.reconciler.GroupUnreadCount(r.Context(), chi.URLParam(r, "groupId"), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get unread count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}
