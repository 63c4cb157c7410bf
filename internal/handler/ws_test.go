package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/readstate"
	"github.com/chatsync/internal/store/memory"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/task"
	"github.com/chatsync/internal/ws"
)

func newTestHub(t *testing.T) *ws.Hub {
	t.Helper()
	st := memory.New()
	log := chatlog.New(st)
	idx := summary.New(st)
	tasks := task.NewRunner(time.Second)
	t.Cleanup(tasks.Shutdown)
	svc := chat.NewService(st, log, idx, readstate.New(st), nil, tasks)
	return ws.NewHub(svc, log, idx, presence.NewRegistry(), 0)
}

// Shutdown must complete with more connected clients than the hub's internal
// queue buffers hold: every closed client reports back to the hub from its
// read loop, and those reports arrive while the hub is already tearing down.
func TestHubShutdownWithManyClients(t *testing.T) {
	hub := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	h := NewWSHandler(hub, identity.StaticProvider("load"), "*")
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	const clients = 80
	conns := make([]*websocket.Conn, 0, clients)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < clients; i++ {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conns = append(conns, c)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() < clients {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d clients registered", hub.ClientCount(), clients)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop: shutdown blocked on client teardown")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("clients still registered after shutdown: %d", n)
	}
}

func TestServeWSRequiresUser(t *testing.T) {
	hub := newTestHub(t)
	h := NewWSHandler(hub, identity.ContextProvider{}, "*")
	rr := httptest.NewRecorder()
	h.ServeWS(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
