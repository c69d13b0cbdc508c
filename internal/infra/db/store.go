package db

import (
	"errors"
	"fmt"

	"bloodlink/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("database unavailable")

type Store struct {
	DB *gorm.DB
}

// NewStore connects to postgres when POSTGRES_DSN is set; otherwise the
// service starts in no-db mode and callers fall back to in-memory stores.
func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := gdb.AutoMigrate(&CertificateModel{}); err != nil {
		return nil, fmt.Errorf("migrate certificates: %w", err)
	}

	return &Store{DB: gdb}, nil
}
