package storage

import (
	"context"
	"sync"

	"remindbot/internal/reminder"
)

type memoryStore struct {
	mu        sync.RWMutex
	reminders map[string]reminder.Reminder
	tz        map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{
		reminders: map[string]reminder.Reminder{},
		tz:        map[string]string{},
	}
}

func (s *memoryStore) GetReminder(_ context.Context, id string) (reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return reminder.Reminder{}, ErrNotFound
	}
	return cloneReminder(r), nil
}

func (s *memoryStore) ListReminders(_ context.Context, guildID string) ([]reminder.Reminder, error) {
	s.mu.RLock()
	out := make([]reminder.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		if guildID == "" || r.GuildID == guildID {
			out = append(out, cloneReminder(r))
		}
	}
	s.mu.RUnlock()
	sortAppendOrder(out)
	return out, nil
}

func (s *memoryStore) PutReminder(_ context.Context, r reminder.Reminder) error {
	s.mu.Lock()
	s.reminders[r.ID] = cloneReminder(r)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.reminders, id)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) DeleteAllReminders(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.reminders {
		if guildID == "" || r.GuildID == guildID {
			delete(s.reminders, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) GetGuildTimezone(_ context.Context, guildID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tz, ok := s.tz[guildID]
	if !ok {
		return "", ErrNotFound
	}
	return tz, nil
}

func (s *memoryStore) SetGuildTimezone(_ context.Context, guildID, tz string) error {
	s.mu.Lock()
	s.tz[guildID] = tz
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }
