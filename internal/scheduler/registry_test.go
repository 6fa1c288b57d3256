package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func put(t *testing.T, st storage.Store, r reminder.Reminder) {
	t.Helper()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.MaxOccurrences == 0 {
		r.MaxOccurrences = reminder.Unbounded
	}
	if err := st.PutReminder(context.Background(), r); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestRegisterReplacesPriorTrigger(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	ctx := context.Background()
	put(t, st, reminder.Reminder{ID: "r1", GuildID: "g", ChannelID: "c", TimeOfDay: "09:30", Timezone: "UTC", Message: "m"})

	for i := 0; i < 3; i++ {
		if err := reg.Register(ctx, "r1"); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
	if got := len(reg.c.Entries()); got != 1 {
		t.Fatalf("cron entries = %d, want 1", got)
	}
}

func TestRegisterMissingIsNoop(t *testing.T) {
	t.Parallel()
	reg := New(storage.NewMemory(), logx.Nop())
	if err := reg.Register(context.Background(), "ghost"); err != nil {
		t.Fatalf("Register missing: %v", err)
	}
	if reg.Has("ghost") || reg.Len() != 0 {
		t.Fatal("missing reminder armed")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	put(t, st, reminder.Reminder{ID: "r1", GuildID: "g", ChannelID: "c", TimeOfDay: "09:30", Message: "m"})
	if err := reg.Register(context.Background(), "r1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Cancel("r1") {
		t.Fatal("Cancel returned false for armed trigger")
	}
	if reg.Cancel("r1") {
		t.Fatal("second Cancel returned true")
	}
	if reg.Cancel("never") {
		t.Fatal("Cancel of unknown id returned true")
	}
	if len(reg.c.Entries()) != 0 {
		t.Fatal("cron entry left behind")
	}
}

func TestTriggersNextRunInZone(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	put(t, st, reminder.Reminder{ID: "a", GuildID: "g", ChannelID: "c", TimeOfDay: "09:30", Timezone: "Europe/Rome", Message: "m"})
	put(t, st, reminder.Reminder{ID: "b", GuildID: "g", ChannelID: "c", TimeOfDay: "07:00", Timezone: "UTC", DaysOfWeek: []int{7}, Message: "m"})

	n, err := reg.Rehydrate(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Rehydrate = %d, %v", n, err)
	}
	trs := reg.Triggers()
	if len(trs) != 2 || trs[0].ID != "a" || trs[1].ID != "b" {
		t.Fatalf("Triggers = %+v", trs)
	}

	rome, _ := time.LoadLocation("Europe/Rome")
	next := trs[0].Next.In(rome)
	if next.Hour() != 9 || next.Minute() != 30 {
		t.Fatalf("next run %v is not 09:30 Rome time", next)
	}
	if trs[0].Expr != "30 9 * * *" {
		t.Fatalf("Expr = %q", trs[0].Expr)
	}

	sun := trs[1].Next.UTC()
	if sun.Weekday() != time.Sunday || sun.Hour() != 7 {
		t.Fatalf("day 7 trigger next = %v, want Sunday 07:00", sun)
	}
}

func TestRehydrateSkipsCorrupt(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	put(t, st, reminder.Reminder{ID: "ok", GuildID: "g", ChannelID: "c", TimeOfDay: "10:00", Message: "m"})
	put(t, st, reminder.Reminder{ID: "bad", GuildID: "g", ChannelID: "c", TimeOfDay: "10:00", Timezone: "Nowhere/City", Message: "m"})

	n, err := reg.Rehydrate(context.Background())
	if n != 1 {
		t.Fatalf("armed = %d, want 1", n)
	}
	if err == nil {
		t.Fatal("expected joined error for corrupt reminder")
	}
	if !reg.Has("ok") || reg.Has("bad") {
		t.Fatal("wrong reminders armed")
	}
}

func TestJobCallsHandlerAndRecoversPanics(t *testing.T) {
	t.Parallel()
	reg := New(storage.NewMemory(), logx.Nop())

	var calls atomic.Int32
	var gotID atomic.Value
	reg.SetHandler(func(ctx context.Context, id string) {
		calls.Add(1)
		gotID.Store(id)
		if _, ok := ctx.Deadline(); !ok {
			t.Error("fire context has no deadline")
		}
		if id == "boom" {
			panic("handler exploded")
		}
	})

	reg.job("r1").Run()
	if calls.Load() != 1 || gotID.Load() != "r1" {
		t.Fatalf("handler calls=%d id=%v", calls.Load(), gotID.Load())
	}
	reg.job("boom").Run() // must not panic
	if calls.Load() != 2 {
		t.Fatalf("handler calls=%d, want 2", calls.Load())
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	reg := New(storage.NewMemory(), logx.Nop())
	reg.Start()
	reg.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Stop(ctx)
	reg.Stop(ctx)
}

// deletingSource deletes and cancels the reminder right after a read, the
// way a concurrent /cancel would land between Register's read and insert.
type deletingSource struct {
	storage.Store
	reg  *Registry
	done chan struct{}
}

func (s *deletingSource) GetReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	rem, err := s.Store.GetReminder(ctx, id)
	if err != nil {
		return rem, err
	}
	go func() {
		defer close(s.done)
		_ = s.Store.DeleteReminder(context.Background(), id)
		s.reg.Cancel(id)
	}()
	// give the cancel a chance to run before the insert
	time.Sleep(20 * time.Millisecond)
	return rem, nil
}

func TestRegisterRacingCancelLeavesNoTrigger(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	put(t, st, reminder.Reminder{ID: "r1", GuildID: "g", ChannelID: "c", TimeOfDay: "09:30", Message: "m"})
	src := &deletingSource{Store: st, done: make(chan struct{})}
	reg := New(src, logx.Nop())
	src.reg = reg

	if err := reg.Register(context.Background(), "r1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case <-src.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never completed")
	}
	if reg.Has("r1") || len(reg.c.Entries()) != 0 {
		t.Fatalf("trigger armed for deleted reminder: has=%v entries=%d", reg.Has("r1"), len(reg.c.Entries()))
	}
}

func TestPruneDropsOnlyDeletedOfGuild(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	ctx := context.Background()
	put(t, st, reminder.Reminder{ID: "a", GuildID: "g1", ChannelID: "c", TimeOfDay: "09:30", Message: "m"})
	put(t, st, reminder.Reminder{ID: "b", GuildID: "g1", ChannelID: "c", TimeOfDay: "09:30", Message: "m"})
	put(t, st, reminder.Reminder{ID: "c", GuildID: "g2", ChannelID: "c", TimeOfDay: "09:30", Message: "m"})
	if n, err := reg.Rehydrate(ctx); err != nil || n != 3 {
		t.Fatalf("Rehydrate = %d, %v", n, err)
	}

	_ = st.DeleteReminder(ctx, "a")
	_ = st.DeleteReminder(ctx, "c")

	n, err := reg.Prune(ctx, "g1")
	if err != nil || n != 1 {
		t.Fatalf("Prune(g1) = %d, %v; want 1", n, err)
	}
	if reg.Has("a") || !reg.Has("b") || !reg.Has("c") {
		t.Fatalf("after Prune(g1): a=%v b=%v c=%v", reg.Has("a"), reg.Has("b"), reg.Has("c"))
	}
	if n, _ := reg.Prune(ctx, ""); n != 1 || reg.Has("c") {
		t.Fatalf("Prune(all) = %d, c armed=%v", n, reg.Has("c"))
	}
}
