package storage

import (
	"context"
	"sort"
	"time"

	"remindbot/internal/reminder"
)

// ErrNotFound is returned when a reminder or guild time zone is absent.
var ErrNotFound = reminder.ErrNotFound

// Config configures storage.
//
// Driver values: "memory", "file", "redis", "sqlite", "postgres", "mongo".
// Empty means "memory".
type Config struct {
	Driver string

	// Path is the database file (sqlite) or the file prefix (file).
	Path string
	// DSN is the connection string (postgres, mongo).
	DSN string

	// Redis.
	Addr     string
	Username string
	Password string
	DB       int

	// Database is the mongo database name.
	Database string

	BusyTimeout time.Duration // sqlite only; 0 means default
	// KeyPrefix namespaces redis keys.
	KeyPrefix string
}

// Store is the persistence API of the bot.
type Store interface {
	reminder.Store
	Close() error
}

// Pinger is implemented by network-backed stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// sortAppendOrder orders reminders by creation time, then id.
func sortAppendOrder(rs []reminder.Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func cloneReminder(r reminder.Reminder) reminder.Reminder {
	if r.DaysOfWeek != nil {
		r.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	}
	return r
}
