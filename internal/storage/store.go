package storage

import (
	"context"
	"fmt"
	"strings"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/interfaces"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

// Store is a KVStore that owns a connection.
type Store interface {
	interfaces.KVStore
	Close() error
}

// New opens the configured backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case BackendMySQL:
		return NewMySQLStore(cfg.MySQL)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
