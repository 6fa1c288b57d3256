package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const defaultKeyPrefix = "remindbot:"

// redisStore keeps one JSON value per reminder plus sorted sets scored by
// creation time for append-order listing:
//
//	<prefix>reminder:<id>          JSON reminder
//	<prefix>reminders              zset of all ids
//	<prefix>guild:<guild>:reminders zset of the guild's ids
//	<prefix>tz:<guild>             time zone name
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis storage opened", logx.String("addr", addr), logx.Int("db", cfg.DB))
	return newRedisStore(rdb, cfg.KeyPrefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{rdb: rdb, prefix: prefix, log: log}
}

func (s *redisStore) reminderKey(id string) string { return s.prefix + "reminder:" + id }
func (s *redisStore) allKey() string               { return s.prefix + "reminders" }
func (s *redisStore) guildKey(g string) string     { return s.prefix + "guild:" + g + ":reminders" }
func (s *redisStore) tzKey(g string) string        { return s.prefix + "tz:" + g }

func (s *redisStore) Close() error                   { return s.rdb.Close() }
func (s *redisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *redisStore) GetReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	b, err := s.rdb.Get(ctx, s.reminderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, err
	}
	var r reminder.Reminder
	if err := json.Unmarshal(b, &r); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

func (s *redisStore) ListReminders(ctx context.Context, guildID string) ([]reminder.Reminder, error) {
	index := s.allKey()
	if guildID != "" {
		index = s.guildKey(guildID)
	}
	ids, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	rs, stale, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		// Index entries whose value is gone (interrupted delete).
		members := make([]any, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		if err := s.rdb.ZRem(ctx, index, members...).Err(); err != nil {
			s.log.Debug("stale index cleanup failed", logx.Err(err))
		}
	}
	sortAppendOrder(rs)
	return rs, nil
}

// load fetches ids with MGET. Missing values are returned as stale.
func (s *redisStore) load(ctx context.Context, ids []string) ([]reminder.Reminder, []string, error) {
	if len(ids) == 0 {
		return []reminder.Reminder{}, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.reminderKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}
	out := make([]reminder.Reminder, 0, len(vals))
	var stale []string
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var r reminder.Reminder
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			s.log.Warn("skipping corrupt record", logx.String("reminder_id", ids[i]), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, stale, nil
}

func (s *redisStore) PutReminder(ctx context.Context, r reminder.Reminder) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	score := float64(r.CreatedAt.UnixMilli())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.reminderKey(r.ID), b, 0)
		p.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: r.ID})
		p.ZAdd(ctx, s.guildKey(r.GuildID), redis.Z{Score: score, Member: r.ID})
		return nil
	})
	return err
}

func (s *redisStore) DeleteReminder(ctx context.Context, id string) error {
	r, err := s.GetReminder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.rdb.ZRem(ctx, s.allKey(), id).Err()
	}
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.reminderKey(id))
		p.ZRem(ctx, s.allKey(), id)
		p.ZRem(ctx, s.guildKey(r.GuildID), id)
		return nil
	})
	return err
}

func (s *redisStore) DeleteAllReminders(ctx context.Context, guildID string) (int, error) {
	rs, err := s.ListReminders(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if len(rs) == 0 {
		return 0, nil
	}
	var dels []*redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range rs {
			dels = append(dels, p.Del(ctx, s.reminderKey(r.ID)))
			p.ZRem(ctx, s.allKey(), r.ID)
			p.ZRem(ctx, s.guildKey(r.GuildID), r.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range dels {
		n += int(c.Val())
	}
	return n, nil
}

func (s *redisStore) GetGuildTimezone(ctx context.Context, guildID string) (string, error) {
	tz, err := s.rdb.Get(ctx, s.tzKey(guildID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return tz, err
}

func (s *redisStore) SetGuildTimezone(ctx context.Context, guildID, tz string) error {
	return s.rdb.Set(ctx, s.tzKey(guildID), tz, 0).Err()
}
