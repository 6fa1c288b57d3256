package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// FireFunc is called when a reminder's trigger elapses.
type FireFunc func(ctx context.Context, id string)

// Source is the storage the registry reads reminders from.
type Source interface {
	GetReminder(ctx context.Context, id string) (reminder.Reminder, error)
	ListReminders(ctx context.Context, guildID string) ([]reminder.Reminder, error)
}

// Trigger describes one armed reminder.
type Trigger struct {
	ID       string    `json:"id"`
	Expr     string    `json:"expr"`
	Timezone string    `json:"timezone"`
	Next     time.Time `json:"next"`
}

type entry struct {
	id       string
	guildID  string
	rc       reminder.Recurrence
	schedule cron.Schedule
	entryID  cron.EntryID
}

type Registry struct {
	// armMu serialises Register, Cancel and Prune so a cancel cannot slip
	// between the storage read and the insert of a register.
	armMu sync.Mutex
	mu    sync.Mutex

	log    logx.Logger
	store  Source
	parser cron.Parser
	c      *cron.Cron

	entries map[string]*entry
	handler FireFunc

	fireTimeout time.Duration
	baseCtx     context.Context
	cancel      context.CancelFunc
	started     bool
}

type Option func(*Registry)

// WithFireTimeout bounds a single fire (storage + delivery). 0 disables.
func WithFireTimeout(d time.Duration) Option {
	return func(r *Registry) { r.fireTimeout = d }
}

func New(store Source, log logx.Logger, opts ...Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "scheduler"))
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		log:         log,
		store:       store,
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries:     map[string]*entry{},
		fireTimeout: 2 * time.Minute,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	r.c = cron.New(cron.WithParser(r.parser), cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{log}))
	return r
}

// SetHandler sets the fire callback. Must be called before Start.
func (r *Registry) SetHandler(fn FireFunc) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.c.Start()
	r.log.Info("scheduler started", logx.Int("triggers", len(r.entries)))
}

// Stop halts the cron loop and waits for running fires, bounded by ctx.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	done := r.c.Stop().Done()
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("scheduler stop timed out; cancelling running fires")
	}
	r.cancel()
	r.log.Info("scheduler stopped")
}

// Register (re)arms the trigger for reminder id from its stored record.
// A missing reminder is not an error; any previous trigger is dropped.
func (r *Registry) Register(ctx context.Context, id string) error {
	r.armMu.Lock()
	defer r.armMu.Unlock()

	rem, err := r.store.GetReminder(ctx, id)
	if errors.Is(err, reminder.ErrNotFound) {
		r.disarm(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reminder %s: %w", id, err)
	}
	return r.arm(rem)
}

func (r *Registry) arm(rem reminder.Reminder) error {
	rc, err := reminder.Compile(rem)
	if err != nil {
		return fmt.Errorf("compile reminder %s: %w", rem.ID, err)
	}
	sched, err := r.parser.Parse(rc.Spec())
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", rc.Spec(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[rem.ID]; ok {
		r.c.Remove(prev.entryID)
	}
	e := &entry{id: rem.ID, guildID: rem.GuildID, rc: rc, schedule: sched}
	e.entryID = r.c.Schedule(sched, r.job(rem.ID))
	r.entries[rem.ID] = e

	r.log.Debug("trigger armed", logx.String("reminder_id", rem.ID), logx.String("expr", rc.Expr), logx.String("tz", rc.Timezone))
	return nil
}

// job builds the cron job for id. Panics in the handler are recovered and
// logged so one reminder cannot take the loop down.
func (r *Registry) job(id string) cron.Job {
	run := cron.FuncJob(func() {
		r.mu.Lock()
		h := r.handler
		r.mu.Unlock()
		if h == nil {
			r.log.Warn("trigger fired without handler", logx.String("reminder_id", id))
			return
		}
		ctx := r.baseCtx
		if r.fireTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.fireTimeout)
			defer cancel()
		}
		h(ctx, id)
	})
	return cron.NewChain(cron.Recover(cronLogger{r.log})).Then(run)
}

// Cancel disarms id. It reports whether a trigger existed. A fire already
// running is not interrupted.
func (r *Registry) Cancel(id string) bool {
	r.armMu.Lock()
	defer r.armMu.Unlock()
	return r.disarm(id)
}

func (r *Registry) disarm(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	r.c.Remove(e.entryID)
	delete(r.entries, id)
	r.log.Debug("trigger cancelled", logx.String("reminder_id", id))
	return true
}

// Prune drops every armed trigger of guildID ("" = all guilds) whose record
// is no longer stored, and returns how many were dropped. Triggers of
// reminders that still exist are left as they are.
func (r *Registry) Prune(ctx context.Context, guildID string) (int, error) {
	r.armMu.Lock()
	defer r.armMu.Unlock()

	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if guildID == "" || e.guildID == guildID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		_, err := r.store.GetReminder(ctx, id)
		if errors.Is(err, reminder.ErrNotFound) {
			if r.disarm(id) {
				n++
			}
			continue
		}
		if err != nil {
			return n, fmt.Errorf("load reminder %s: %w", id, err)
		}
	}
	return n, nil
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Triggers lists armed triggers sorted by id, with their next fire time.
func (r *Registry) Triggers() []Trigger {
	now := time.Now()
	r.mu.Lock()
	out := make([]Trigger, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Trigger{
			ID:       e.id,
			Expr:     e.rc.Expr,
			Timezone: e.rc.Timezone,
			Next:     e.schedule.Next(now),
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rehydrate arms a trigger for every stored reminder. Reminders that fail
// to compile are logged and skipped; their errors are joined in the result.
func (r *Registry) Rehydrate(ctx context.Context) (int, error) {
	r.armMu.Lock()
	defer r.armMu.Unlock()

	rs, err := r.store.ListReminders(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}
	var errs []error
	n := 0
	for _, rem := range rs {
		if err := r.arm(rem); err != nil {
			r.log.Warn("rehydrate: skipping reminder", logx.String("reminder_id", rem.ID), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		n++
	}
	r.log.Info("triggers rehydrated", logx.Int("armed", n), logx.Int("stored", len(rs)))
	return n, errors.Join(errs...)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron: "+msg, fields...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
