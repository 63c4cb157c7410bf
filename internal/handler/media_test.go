package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/chatsync/internal/blob"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/store/memory"
	"github.com/chatsync/internal/summary"
)

func newMediaRouter(t *testing.T, blobs blob.Store) *chi.Mux {
	t.Helper()
	st := memory.New()
	c := media.NewCoordinator(st, chatlog.New(st), summary.New(st), blobs)
	h := NewMediaHandler(c, blobs, identity.ContextProvider{}, 1<<20)
	r := chi.NewRouter()
	r.Get("/api/media/*", h.Serve)
	return r
}

func TestServeDetectsContentType(t *testing.T) {
	blobs := blob.NewMemoryStore()
	ctx := context.Background()

	pngBytes := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x01}, 32)...)
	if _, err := blobs.Put(ctx, "chatImages/1.jpg", bytes.NewReader(pngBytes)); err != nil {
		t.Fatalf("put png: %v", err)
	}
	jpegBytes := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x02}, 32)...)
	if _, err := blobs.Put(ctx, "chatImages/2.jpg", bytes.NewReader(jpegBytes)); err != nil {
		t.Fatalf("put jpeg: %v", err)
	}

	r := newMediaRouter(t, blobs)
	cases := []struct {
		path string
		want string
		size int
	}{
		{"/api/media/chatImages/1.jpg", "image/png", len(pngBytes)},
		{"/api/media/chatImages/2.jpg", "image/jpeg", len(jpegBytes)},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tc.path, rr.Code)
		}
		if got := rr.Header().Get("Content-Type"); got != tc.want {
			t.Fatalf("%s content type = %q, want %q", tc.path, got, tc.want)
		}
		if rr.Body.Len() != tc.size {
			t.Fatalf("%s body = %d bytes, want %d", tc.path, rr.Body.Len(), tc.size)
		}
	}
}

func TestServeUnknownKey(t *testing.T) {
	r := newMediaRouter(t, blob.NewMemoryStore())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/media/chatImages/missing.jpg", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
