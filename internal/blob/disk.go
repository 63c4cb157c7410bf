package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps objects as plain files under a root directory. The served
// URL is /api/media/<key>.
type DiskStore struct {
	root    string
	maxSize int64
}

// NewDiskStore creates the store rooted at dir with a per-object size cap in
// bytes.
func NewDiskStore(dir string, maxSize int64) *DiskStore {
	return &DiskStore{root: dir, maxSize: maxSize}
}

// cleanKey rejects keys that would escape the root.
func (s *DiskStore) cleanKey(key string) (string, error) {
	key = filepath.ToSlash(filepath.Clean("/" + key))[1:]
	if key == "" || strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	path, err := s.cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob put mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	if err == nil && n > s.maxSize {
		err = fmt.Errorf("blob put: object exceeds %d bytes", s.maxSize)
	}
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob put rename: %w", err)
	}
	return "/api/media/" + key, nil
}

func (s *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob get: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	path, err := s.cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob delete: %w", err)
	}
	return nil
}
