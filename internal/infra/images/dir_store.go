package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStore writes images into a local directory, one file per record key.
// Serving them is the dashboard's concern.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewDirStore: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Put writes the image bytes under a sanitized file name derived from key.
func (s *DirStore) Put(_ context.Context, key, contentType string, body []byte) error {
	name := sanitizeKey(key) + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(s.dir, name), body, 0o644); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

// sanitizeKey keeps record keys filesystem-safe.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
