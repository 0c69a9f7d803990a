package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/vaultchat/vaultchat/internal/config"
)

// Open builds the store selected by STORE_BACKEND.
func Open(cfg config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "fs":
		return NewFS(cfg.FSRoot)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return OpenSQLite(cfg.SQLitePath)
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(rdb), nil
	default:
		return nil, fmt.Errorf("blob: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
