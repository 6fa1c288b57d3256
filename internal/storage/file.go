package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const (
	reminderKeyPrefix = "reminder_"
	tzKeyPrefix       = "tz_"

	fileCompactEvery = 500
)

// fileStore is a dependency-free key-value backend.
//
// Files:
//   - <prefix>.snapshot.json  (periodic snapshot, key -> JSON value)
//   - <prefix>.journal.jsonl  (append-only journal of puts and deletes)
//
// Keys are "reminder_<id>" and "tz_<guild>". The journal is compacted into
// the snapshot every fileCompactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	kv           map[string]json.RawMessage

	writes int
}

type journalRecord struct {
	Op    string          `json:"op"` // "put" | "del"
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	kv := map[string]json.RawMessage{}
	if err := loadSnapshot(snapPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, err := replayJournal(journalPath, kv)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Info("file storage opened", logx.String("prefix", prefix), logx.Int("keys", len(kv)), logx.Int("replayed", replayed))

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		kv:           kv,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journalFile.Close()
	s.journalFile = nil
	if cerr != nil {
		return cerr
	}
	return err
}

func (s *fileStore) GetReminder(_ context.Context, id string) (reminder.Reminder, error) {
	s.mu.Lock()
	raw, ok := s.kv[reminderKeyPrefix+id]
	s.mu.Unlock()
	if !ok {
		return reminder.Reminder{}, ErrNotFound
	}
	var r reminder.Reminder
	if err := json.Unmarshal(raw, &r); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

func (s *fileStore) ListReminders(_ context.Context, guildID string) ([]reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reminder.Reminder, 0, len(s.kv))
	for k, raw := range s.kv {
		if !strings.HasPrefix(k, reminderKeyPrefix) {
			continue
		}
		var r reminder.Reminder
		if err := json.Unmarshal(raw, &r); err != nil {
			s.log.Warn("skipping corrupt record", logx.String("key", k), logx.Err(err))
			continue
		}
		if guildID == "" || r.GuildID == guildID {
			out = append(out, r)
		}
	}
	sortAppendOrder(out)
	return out, nil
}

func (s *fileStore) PutReminder(_ context.Context, r reminder.Reminder) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(reminderKeyPrefix+r.ID, b)
}

func (s *fileStore) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reminderKeyPrefix + id
	if _, ok := s.kv[key]; !ok {
		return nil
	}
	return s.deleteLocked(key)
}

func (s *fileStore) DeleteAllReminders(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, raw := range s.kv {
		if !strings.HasPrefix(k, reminderKeyPrefix) {
			continue
		}
		if guildID != "" {
			var r reminder.Reminder
			if err := json.Unmarshal(raw, &r); err != nil || r.GuildID != guildID {
				continue
			}
		}
		keys = append(keys, k)
	}
	n := 0
	for _, k := range keys {
		if err := s.deleteLocked(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *fileStore) GetGuildTimezone(_ context.Context, guildID string) (string, error) {
	s.mu.Lock()
	raw, ok := s.kv[tzKeyPrefix+guildID]
	s.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	var tz string
	if err := json.Unmarshal(raw, &tz); err != nil {
		return "", err
	}
	return tz, nil
}

func (s *fileStore) SetGuildTimezone(_ context.Context, guildID, tz string) error {
	b, err := json.Marshal(tz)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(tzKeyPrefix+guildID, b)
}

func (s *fileStore) putLocked(key string, value []byte) error {
	if err := s.appendLocked(journalRecord{Op: "put", Key: key, Value: value}); err != nil {
		return err
	}
	s.kv[key] = value
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) deleteLocked(key string) error {
	if err := s.appendLocked(journalRecord{Op: "del", Key: key}); err != nil {
		return err
	}
	delete(s.kv, key)
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return errors.New("storage closed")
	}
	return json.NewEncoder(s.journalFile).Encode(rec)
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		// Best-effort; the journal still holds every write.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.kv); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]json.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]json.RawMessage
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

// replayJournal applies the journal on top of out. A torn final line from a
// crash is skipped.
func replayJournal(path string, out map[string]json.RawMessage) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		switch r.Op {
		case "put":
			out[r.Key] = r.Value
		case "del":
			delete(out, r.Key)
		default:
			continue
		}
		n++
	}
	return n, sc.Err()
}
