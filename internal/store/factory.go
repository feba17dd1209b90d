package store

import (
	"fmt"

	"plot-go/internal/config"
	"plot-go/internal/plot"
)

// NewStoreFromConfig creates the persistence backend named by cfg.Type.
// sqlite is the already-open database used when cfg.Type is "sqlite".
// Backends without native capacity accounting are wrapped in a QuotaStore
// when cfg.MaxBytes is set.
func NewStoreFromConfig(cfg config.StoreConfig, sqlite plot.Store) (plot.Store, error) {
	var (
		s   plot.Store
		err error
	)
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.MaxBytes), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		s, err = NewFileSystemStore(cfg.FSRoot)
	case "sqlite":
		if sqlite == nil {
			return nil, fmt.Errorf("sqlite store requires an open database")
		}
		s = sqlite
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis store requires redis_url to be set")
		}
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = config.DefaultRedisPrefix
		}
		s, err = NewRedisStore(cfg.RedisURL, prefix)
	case "s3":
		s, err = NewS3StoreFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxBytes > 0 {
		q, err := NewQuotaStore(s, cfg.MaxBytes)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return s, nil
}
