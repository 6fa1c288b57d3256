package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	dsn := strings.TrimSpace(sc.DSN)

	out := storage.Config{
		Driver:    driver,
		Path:      path,
		DSN:       dsn,
		Addr:      strings.TrimSpace(sc.Addr),
		Username:  sc.Username,
		Password:  sc.Password,
		DB:        sc.DB,
		Database:  strings.TrimSpace(sc.Database),
		KeyPrefix: sc.KeyPrefix,
	}

	switch driver {
	case "", "memory", "mem":
		out.Driver = "memory"
	case "file":
		if path == "" {
			out.Path = "./data/reminders"
		}
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	case "postgres", "postgresql", "pg", "mongo", "mongodb":
		if dsn == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
	case "redis":
		if out.Addr == "" {
			out.Addr = "127.0.0.1:6379"
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}
