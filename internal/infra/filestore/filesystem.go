package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bloodlink/internal/domain"

	"github.com/google/uuid"
)

// FileSystemStore writes uploads under a root directory:
//
//	<root>/
//	  <ownerID>/
//	    <uuid>    (raw certificate bytes)
//
// Locators are "fs://<ownerID>/<uuid>".
type FileSystemStore struct {
	root string
}

func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) Upload(ctx context.Context, ownerID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ErrMissingFile
	}
	owner := sanitizeSegment(ownerID)
	if owner == "" {
		return "", fmt.Errorf("owner id is required")
	}
	id := uuid.NewString()
	dir := filepath.Join(s.root, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if err := os.WriteFile(filepath.Join(dir, id), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return "fs://" + owner + "/" + id, nil
}

func (s *FileSystemStore) Download(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rest, ok := strings.CutPrefix(locator, "fs://")
	if !ok {
		return nil, fmt.Errorf("unsupported locator: %s", locator)
	}
	owner, id, ok := strings.Cut(rest, "/")
	if !ok || sanitizeSegment(owner) != owner || sanitizeSegment(id) != id {
		return nil, fmt.Errorf("malformed locator: %s", locator)
	}
	data, err := os.ReadFile(filepath.Join(s.root, owner, id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return data, nil
}

// sanitizeSegment strips anything that could escape the store root.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return ""
	}
	if strings.ContainsAny(s, "/\\") {
		return ""
	}
	return s
}
