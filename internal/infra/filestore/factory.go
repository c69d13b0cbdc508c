package filestore

import (
	"fmt"

	"bloodlink/internal/config"
	"bloodlink/internal/domain"
)

// NewFromConfig creates a FileStore implementation based on FILE_STORE_TYPE.
func NewFromConfig(cfg config.Config) (domain.FileStore, error) {
	switch cfg.FileStoreType {
	case "", "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FileStoreRoot == "" {
			return nil, fmt.Errorf("filesystem file store requires FILE_STORE_ROOT")
		}
		return NewFileSystemStore(cfg.FileStoreRoot)
	default:
		return nil, fmt.Errorf("unknown file store type: %s", cfg.FileStoreType)
	}
}
