// Package blob stores media attachments. Chat images live under
// chatImages/<messageID>.jpg, group chat images under
// groupChatImages/<groupID>/<messageID>.jpg, so the attachment key is
// recoverable from the message alone.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
)

// ErrNotFound is returned when the requested key holds no object.
var ErrNotFound = errors.New("blob: not found")

// ErrBadImage is returned when uploaded bytes are not a recognized image.
var ErrBadImage = errors.New("blob: content is not a supported image")

// Store persists media objects under hierarchical keys.
type Store interface {
	// Put writes the object and returns a URL the client can fetch it at.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageImageKey is the attachment key for a direct chat image.
func MessageImageKey(messageID string) string {
	return path.Join("chatImages", messageID+".jpg")
}

// GroupImageKey is the attachment key for a group chat image.
func GroupImageKey(groupID, messageID string) string {
	return path.Join("groupChatImages", groupID, messageID+".jpg")
}

// SniffImage checks the leading bytes against known image signatures and
// returns a reader that replays them. Upload paths reject anything that does
// not look like an image before it reaches the store.
func SniffImage(r io.Reader) (io.Reader, error) {
	head := make([]byte, 12)
	n, err := io.ReadAtLeast(r, head, 3)
	if err != nil {
		return nil, fmt.Errorf("blob sniff: %w", ErrBadImage)
	}
	head = head[:n]
	if !matchImageMagic(head) {
		return nil, ErrBadImage
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}

func matchImageMagic(head []byte) bool {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF: // JPEG
		return true
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}): // PNG
		return true
	case len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a"))):
		return true
	case len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP")):
		return true
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")): // HEIC family
		return true
	}
	return false
}
