package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqlStore is the relational backend shared by sqlite and postgres.
// Queries are written with '?' and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// reminderRow is the table shape of a reminder. Days are stored as "1,3".
type reminderRow struct {
	ID             string `db:"id"`
	GuildID        string `db:"guild_id"`
	ChannelID      string `db:"channel_id"`
	TimeOfDay      string `db:"time_of_day"`
	Timezone       string `db:"timezone"`
	Days           string `db:"days"`
	Message        string `db:"message"`
	MaxOccurrences int    `db:"max_occurrences"`
	SentCount      int    `db:"sent_count"`
	CreatedAt      int64  `db:"created_at"` // unix nanos
}

const reminderColumns = `id, guild_id, channel_id, time_of_day, timezone, days, message, max_occurrences, sent_count, created_at`

func toRow(r reminder.Reminder) reminderRow {
	return reminderRow{
		ID:             r.ID,
		GuildID:        r.GuildID,
		ChannelID:      r.ChannelID,
		TimeOfDay:      r.TimeOfDay,
		Timezone:       r.Timezone,
		Days:           reminder.FormatDays(r.DaysOfWeek),
		Message:        r.Message,
		MaxOccurrences: r.MaxOccurrences,
		SentCount:      r.SentCount,
		CreatedAt:      r.CreatedAt.UnixNano(),
	}
}

func (row reminderRow) toReminder() (reminder.Reminder, error) {
	days, err := reminder.ParseDays(row.Days)
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("reminder %s: %w", row.ID, err)
	}
	return reminder.Reminder{
		ID:             row.ID,
		GuildID:        row.GuildID,
		ChannelID:      row.ChannelID,
		TimeOfDay:      row.TimeOfDay,
		Timezone:       row.Timezone,
		DaysOfWeek:     days,
		Message:        row.Message,
		MaxOccurrences: row.MaxOccurrences,
		SentCount:      row.SentCount,
		CreatedAt:      time.Unix(0, row.CreatedAt).UTC(),
	}, nil
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqlStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("sqlite storage opened", logx.String("path", path))
	return st, nil
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	const maxRetries = 5
	const retryInterval = 2 * time.Second

	var db *sqlx.DB
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			break
		}
		log.Warn("postgres connect failed", logx.Err(err), logx.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to postgres after %d attempts: %w", maxRetries, err)
	}

	st := &sqlStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("postgres storage opened")
	return st, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrationsSQL)
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) GetReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	var row reminderRow
	q := s.db.Rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reminder.Reminder{}, ErrNotFound
		}
		return reminder.Reminder{}, err
	}
	return row.toReminder()
}

func (s *sqlStore) ListReminders(ctx context.Context, guildID string) ([]reminder.Reminder, error) {
	var rows []reminderRow
	var err error
	if guildID == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+reminderColumns+` FROM reminders ORDER BY created_at, id`)
	} else {
		q := s.db.Rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE guild_id = ? ORDER BY created_at, id`)
		err = s.db.SelectContext(ctx, &rows, q, guildID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]reminder.Reminder, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReminder()
		if err != nil {
			s.log.Warn("skipping corrupt row", logx.String("reminder_id", row.ID), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *sqlStore) PutReminder(ctx context.Context, r reminder.Reminder) error {
	_, err := s.db.NamedExecContext(ctx, `
	INSERT INTO reminders (`+reminderColumns+`)
	VALUES (:id, :guild_id, :channel_id, :time_of_day, :timezone, :days, :message, :max_occurrences, :sent_count, :created_at)
	ON CONFLICT (id) DO UPDATE SET
	  guild_id = excluded.guild_id,
	  channel_id = excluded.channel_id,
	  time_of_day = excluded.time_of_day,
	  timezone = excluded.timezone,
	  days = excluded.days,
	  message = excluded.message,
	  max_occurrences = excluded.max_occurrences,
	  sent_count = excluded.sent_count`, toRow(r))
	return err
}

func (s *sqlStore) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reminders WHERE id = ?`), id)
	return err
}

func (s *sqlStore) DeleteAllReminders(ctx context.Context, guildID string) (int, error) {
	var res sql.Result
	var err error
	if guildID == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM reminders`)
	} else {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reminders WHERE guild_id = ?`), guildID)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqlStore) GetGuildTimezone(ctx context.Context, guildID string) (string, error) {
	var tz string
	err := s.db.GetContext(ctx, &tz, s.db.Rebind(`SELECT timezone FROM guild_timezones WHERE guild_id = ?`), guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return tz, err
}

func (s *sqlStore) SetGuildTimezone(ctx context.Context, guildID, tz string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
	INSERT INTO guild_timezones (guild_id, timezone) VALUES (?, ?)
	ON CONFLICT (guild_id) DO UPDATE SET timezone = excluded.timezone`), guildID, tz)
	return err
}
