package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/readstate"
	"github.com/chatsync/internal/store/memory"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/task"
)

type messageFixture struct {
	router *chi.Mux
	tasks  *task.Runner
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	st := memory.New()
	log := chatlog.New(st)
	idx := summary.New(st)
	tasks := task.NewRunner(time.Second)
	t.Cleanup(tasks.Shutdown)
	svc := chat.NewService(st, log, idx, readstate.New(st), nil, tasks)
	h := NewMessageHandler(svc, log, idx, identity.ContextProvider{})

	r := chi.NewRouter()
	r.Use(middleware.UserAuth)
	r.Post("/api/messages", h.Send)
	r.Get("/api/conversations/{peerId}/messages", h.History)
	r.Post("/api/conversations/{peerId}/read", h.MarkRead)
	r.Get("/api/conversations/{peerId}/unread", h.UnreadCount)
	return &messageFixture{router: r, tasks: tasks}
}

func (f *messageFixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, r)
	return rr
}

func TestSendRequiresUser(t *testing.T) {
	f := newMessageFixture(t)
	rr := f.do(t, http.MethodPost, "/api/messages", "", `{"receiver_id":"bob","body":"hi"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSendAndHistory(t *testing.T) {
	f := newMessageFixture(t)
	rr := f.do(t, http.MethodPost, "/api/messages", "alice", `{"receiver_id":"bob","body":"hi"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("send status = %d, want 201: %s", rr.Code, rr.Body)
	}
	var sent model.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decode send response: %v", err)
	}
	if sent.ID == "" || sent.SenderID != "alice" {
		t.Fatalf("unexpected message: %+v", sent)
	}

	rr = f.do(t, http.MethodGet, "/api/conversations/alice/messages", "bob", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", rr.Code, rr.Body)
	}
	var msgs []model.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Fatalf("history = %+v, want the sent message", msgs)
	}
}

func TestMarkReadDrivesUnreadToZero(t *testing.T) {
	f := newMessageFixture(t)
	if rr := f.do(t, http.MethodPost, "/api/messages", "alice", `{"receiver_id":"bob","body":"hi"}`); rr.Code != http.StatusCreated {
		t.Fatalf("send status = %d", rr.Code)
	}

	rr := f.do(t, http.MethodGet, "/api/conversations/alice/unread", "bob", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"unread_count":1`) {
		t.Fatalf("unread before read = %d %s", rr.Code, rr.Body)
	}

	if rr := f.do(t, http.MethodPost, "/api/conversations/alice/read", "bob", ""); rr.Code != http.StatusOK {
		t.Fatalf("mark read status = %d", rr.Code)
	}
	f.tasks.Wait()

	rr = f.do(t, http.MethodGet, "/api/conversations/alice/unread", "bob", "")
	if !strings.Contains(rr.Body.String(), `"unread_count":0`) {
		t.Fatalf("unread after read = %s", rr.Body)
	}
}
