package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// requireUser resolves the acting user or answers 401. Write paths must fail
// before any store call when nobody is signed in.
func requireUser(w http.ResponseWriter, r *http.Request, users identity.Provider) (string, bool) {
	userID, err := users.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "sign-in required")
		return "", false
	}
	return userID, true
}
