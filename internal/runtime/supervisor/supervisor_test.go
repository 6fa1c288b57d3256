package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())

	boom := errors.New("boom")
	s.Go("a", func(ctx context.Context) error { return boom })
	s.Go("b", func(ctx context.Context) error { return context.Canceled })

	if err := s.Wait(waitCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want boom", err)
	}
	if s.Context().Err() != nil {
		t.Fatalf("context canceled without WithCancelOnError")
	}
	if c := s.Counters(); c.Started != 2 || c.Active != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(true))

	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })
	s.Go("failer", func(ctx context.Context) error { return errors.New("fail") })

	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatalf("expected error")
	}
	if s.Context().Err() == nil {
		t.Fatalf("context should be canceled")
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	s.Go("panicky", func(ctx context.Context) error { panic("oops") })

	if err := s.Wait(waitCtx(t)); err == nil || err.Error() != "panicky: panic: oops" {
		t.Fatalf("Wait() = %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())

	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithPublishFirstError(true))

	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatalf("published first error missing")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	st := s.Snapshot().Goroutines[0]
	if st.Name != "flaky" || st.Restarts != 2 || st.Started != 3 || st.Active != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())

	started := make(chan struct{}, 16)
	s.GoRestart("loop", func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		return nil
	}, WithStopOnCleanExit(false))

	<-started
	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if s.Err() != nil {
		t.Fatalf("clean shutdown recorded error %v", s.Err())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	s.Go0("blocker", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v", err)
	}
	s.Cancel()
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait() after cancel = %v", err)
	}
}

func TestRegistrySnapshots(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	app := NewSupervisor(context.Background())
	app.Go0("tick", func(ctx context.Context) { <-ctx.Done() })
	defer app.Stop(context.Background())
	r.Set("app", app)
	r.Set("gone", NewSupervisor(context.Background()))
	r.Set("gone", nil)

	got := r.Snapshots(map[string]*Supervisor{"router": NewSupervisor(context.Background()), "idle": nil})
	if len(got) != 2 {
		t.Fatalf("snapshots = %v", got)
	}
	if got["app"].Counters.Started != 1 {
		t.Fatalf("app snapshot = %+v", got["app"])
	}
	if _, ok := got["router"]; !ok {
		t.Fatalf("extra supervisor missing")
	}
}
