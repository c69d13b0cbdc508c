package domain

import "context"

// FileStore holds the raw certificate bytes. Both operations can fail; the
// core does not retry.
type FileStore interface {
	Upload(ctx context.Context, ownerID, name string, data []byte) (string, error)
	Download(ctx context.Context, locator string) ([]byte, error)
}
