package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/blob"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/model"
)

// MediaHandler serves image upload and download. Uploads run the optimistic
// send flow: placeholder first, then upload, then finalize or roll back.
type MediaHandler struct {
	coordinator *media.Coordinator
	blobs       blob.Store
	users       identity.Provider
	maxSize     int64
}

func NewMediaHandler(c *media.Coordinator, blobs blob.Store, users identity.Provider, maxSize int64) *MediaHandler {
	return &MediaHandler{coordinator: c, blobs: blobs, users: users, maxSize: maxSize}
}

// file extracts the multipart image field.
func (h *MediaHandler) file(w http.ResponseWriter, r *http.Request) (io.ReadCloser, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return nil, false
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	return f, true
}

// SendImage uploads an image to the conversation with peer. The form carries
// the image as "file" and an optional "caption".
func (h *MediaHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	peerID := chi.URLParam(r, "peerId")
	f, ok := h.file(w, r)
	if !ok {
		return
	}
	defer f.Close()

	id, err := h.coordinator.SendImage(r.Context(), userID, peerID, r.FormValue("caption"), f)
	if errors.Is(err, blob.ErrBadImage) {
		writeError(w, http.StatusBadRequest, "file content is not a supported image")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send image")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": id})
}

// SendGroupImage is the group variant of SendImage.
func (h *MediaHandler) SendGroupImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.users)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "groupId")
	f, ok := h.file(w, r)
	if !ok {
		return
	}
	defer f.Close()

	m := &model.GroupMessage{
		GroupID:  groupID,
		SenderID: userID,
		Body:     r.FormValue("caption"),
	}
	id, err := h.coordinator.SendGroupImage(r.Context(), groupID, m, f)
	if errors.Is(err, blob.ErrBadImage) {
		writeError(w, http.StatusBadRequest, "file content is not a supported image")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send image")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message_id": id})
}

// Serve streams a stored media object. The wildcard path is the blob key.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	obj, err := h.blobs.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read media")
		return
	}
	defer obj.Close()

	// The blob key does not record the format, so detect it from the stored
	// bytes and replay them.
	head := make([]byte, 512)
	n, err := io.ReadFull(obj, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		writeError(w, http.StatusInternalServerError, "failed to read media")
		return
	}
	head = head[:n]
	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), obj)); err != nil {
		// Client went away mid-stream; nothing to answer.
		return
	}
}
