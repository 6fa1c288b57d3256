package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type fakeStore struct {
	mu        sync.Mutex
	reminders map[string]Reminder
	tz        map[string]string
	failPut   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reminders: map[string]Reminder{}, tz: map[string]string{}}
}

func (f *fakeStore) GetReminder(_ context.Context, id string) (Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return Reminder{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListReminders(_ context.Context, guildID string) ([]Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Reminder, 0, len(f.reminders))
	for _, r := range f.reminders {
		if guildID == "" || r.GuildID == guildID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) PutReminder(_ context.Context, r Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return f.failPut
	}
	f.reminders[r.ID] = r
	return nil
}

func (f *fakeStore) DeleteReminder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reminders, id)
	return nil
}

func (f *fakeStore) DeleteAllReminders(_ context.Context, guildID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, r := range f.reminders {
		if guildID == "" || r.GuildID == guildID {
			delete(f.reminders, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetGuildTimezone(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tz, ok := f.tz[guildID]
	if !ok {
		return "", ErrNotFound
	}
	return tz, nil
}

func (f *fakeStore) SetGuildTimezone(_ context.Context, guildID, tz string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tz[guildID] = tz
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reminders)
}

type fakeScheduler struct {
	mu        sync.Mutex
	armed     map[string]bool
	registers int
	cancels   []string
	prunes    []string
	failWith  error
	// src, when set, is what Prune checks armed ids against.
	src *fakeStore
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{armed: map[string]bool{}} }

func (f *fakeScheduler) Register(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.registers++
	f.armed[id] = true
	return nil
}

func (f *fakeScheduler) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	ok := f.armed[id]
	delete(f.armed, id)
	return ok
}

func (f *fakeScheduler) Prune(ctx context.Context, guildID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunes = append(f.prunes, guildID)
	if f.src == nil {
		return 0, nil
	}
	n := 0
	for id := range f.armed {
		if _, err := f.src.GetReminder(ctx, id); errors.Is(err, ErrNotFound) {
			delete(f.armed, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeScheduler) isArmed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed[id]
}

type sent struct{ guild, channel, message string }

type fakeDeliverer struct {
	mu         sync.Mutex
	unresolved bool
	failSend   bool
	sent       []sent
}

func (f *fakeDeliverer) Resolve(context.Context, string, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unresolved
}

func (f *fakeDeliverer) Send(_ context.Context, guild, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{guild, channel, message})
	if f.failSend {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
