package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type fixture struct {
	srv   *Server
	store storage.Store
	reg   *scheduler.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := storage.NewMemory()
	reg := scheduler.New(st, logx.Nop())
	svc := reminder.NewService(st, reg, logx.Nop())
	return fixture{srv: New(Config{Addr: "127.0.0.1:0"}, svc, reg, logx.Nop()), store: st, reg: reg}
}

func (f fixture) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestDashboardPage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/dashboard", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<h1>Reminders</h1>") {
		t.Fatalf("page body missing heading")
	}
}

func TestCreateFromFormAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	form := url.Values{
		"guild_id": {"-100"},
		"channel":  {"-100:5"},
		"time":     {"9:05"},
		"message":  {"Water the plants"},
		"times":    {"3"},
		"days":     {"1,3"},
	}
	w := f.do(t, http.MethodPost, "/api/reminders", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	var created reminder.Reminder
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.TimeOfDay != "09:05" || created.Timezone != "UTC" || created.MaxOccurrences != 3 || created.SentCount != 0 {
		t.Fatalf("created = %+v", created)
	}
	if !f.reg.Has(created.ID) {
		t.Fatalf("created reminder should be armed")
	}

	w = f.do(t, http.MethodGet, "/api/reminders", nil, "")
	var list []reminder.Reminder
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	w = f.do(t, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"scheduled":1,"status":"ok"}` {
		t.Fatalf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateFromJSONUsesGuildTimezone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.store.SetGuildTimezone(t.Context(), "-100", "Europe/Rome"); err != nil {
		t.Fatalf("set tz: %v", err)
	}

	body := bytes.NewBufferString(`{"guild_id":"-100","channel":"-100","time":"18:00","message":"Go home"}`)
	w := f.do(t, http.MethodPost, "/api/reminders", body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var created reminder.Reminder
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Timezone != "Europe/Rome" || created.MaxOccurrences != reminder.Unbounded || len(created.DaysOfWeek) != 0 {
		t.Fatalf("created = %+v", created)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad time", `{"guild_id":"g","channel":"-1","time":"24:00","message":"x"}`},
		{"bad channel", `{"guild_id":"g","channel":"general","time":"10:00","message":"x"}`},
		{"bad days", `{"guild_id":"g","channel":"-1","time":"10:00","message":"x","days":"0"}`},
		{"bad times", `{"guild_id":"g","channel":"-1","time":"10:00","message":"x","times":-5}`},
		{"zero times", `{"guild_id":"g","channel":"-1","time":"10:00","message":"x","times":0}`},
		{"empty message", `{"guild_id":"g","channel":"-1","time":"10:00","message":"  "}`},
		{"malformed json", `{"guild_id":`},
	}
	for _, tc := range cases {
		w := f.do(t, http.MethodPost, "/api/reminders", bytes.NewBufferString(tc.body), "application/json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d body=%s", tc.name, w.Code, w.Body.String())
			continue
		}
		var e map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e["error"] == "" {
			t.Errorf("%s: error body = %s", tc.name, w.Body.String())
		}
	}
	if rs, _ := f.store.ListReminders(t.Context(), ""); len(rs) != 0 {
		t.Fatalf("bad input persisted %d reminders", len(rs))
	}
}

func TestCreateFormTimes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []struct {
		times    string
		wantCode int
		wantMax  int
	}{
		{"", http.StatusCreated, reminder.Unbounded},
		{"-1", http.StatusCreated, reminder.Unbounded},
		{"2", http.StatusCreated, 2},
		{"0", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		form := url.Values{"guild_id": {"g"}, "channel": {"-1"}, "time": {"10:00"}, "message": {"x"}, "times": {tc.times}}
		w := f.do(t, http.MethodPost, "/api/reminders", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
		if w.Code != tc.wantCode {
			t.Errorf("times=%q: status = %d body=%s", tc.times, w.Code, w.Body.String())
			continue
		}
		if w.Code != http.StatusCreated {
			continue
		}
		var created reminder.Reminder
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.MaxOccurrences != tc.wantMax {
			t.Errorf("times=%q: created = %+v, %v", tc.times, created, err)
		}
	}
}

func TestDeleteReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := bytes.NewBufferString(`{"guild_id":"g","channel":"-1","time":"10:00","message":"x"}`)
	w := f.do(t, http.MethodPost, "/api/reminders", body, "application/json")
	var created reminder.Reminder
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = f.do(t, http.MethodDelete, "/api/reminders/"+created.ID, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if f.reg.Has(created.ID) {
		t.Fatalf("deleted reminder still armed")
	}
	w = f.do(t, http.MethodDelete, "/api/reminders/"+created.ID, nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestTriggersAndCORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := bytes.NewBufferString(`{"guild_id":"g","channel":"-1","time":"10:00","message":"x","days":"7"}`)
	f.do(t, http.MethodPost, "/api/reminders", body, "application/json")

	req := httptest.NewRequest(http.MethodGet, "/api/triggers", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("triggers status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
	var ts []scheduler.Trigger
	if err := json.Unmarshal(w.Body.Bytes(), &ts); err != nil || len(ts) != 1 {
		t.Fatalf("triggers = %s", w.Body.String())
	}
	if ts[0].Expr != "0 10 * * 7" || ts[0].Next.Weekday().String() != "Sunday" {
		t.Fatalf("trigger = %+v", ts[0])
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	t.Parallel()

	cfg := corsConfig([]string{"https://ops.example.test"})
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 {
		t.Fatalf("cors config = %+v", cfg)
	}
	if !corsConfig(nil).AllowAllOrigins || !corsConfig([]string{"*"}).AllowAllOrigins {
		t.Fatalf("empty or wildcard origins should allow all")
	}
}

func TestActivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/activity", nil, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("no history: %d %s", w.Code, w.Body.String())
	}

	h := eventbus.NewHistory(10)
	h.Add(eventbus.Event{Type: eventbus.TypeReminderFired, ReminderID: "a", Outcome: "delivered"})
	h.Add(eventbus.Event{Type: eventbus.TypeReminderFired, ReminderID: "a", Outcome: "retired"})
	f.srv.SetActivity(h)

	w = f.do(t, http.MethodGet, "/api/activity?limit=1", nil, "")
	var got []eventbus.Event
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != "retired" {
		t.Fatalf("activity = %+v", got)
	}

	if w = f.do(t, http.MethodGet, "/api/activity?limit=zero", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestRuntimeView(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	sup := supervisor.NewSupervisor(context.Background())
	sup.Go0("dispatch", func(ctx context.Context) { <-ctx.Done() })
	defer sup.Stop(context.Background())

	f.srv.SetRuntime(func() map[string]supervisor.SupervisorSnapshot {
		return map[string]supervisor.SupervisorSnapshot{"app": sup.Snapshot()}
	})
	w := f.do(t, http.MethodGet, "/api/runtime", nil, "")
	var got map[string]supervisor.SupervisorSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	if got["app"].Counters.Started != 1 {
		t.Fatalf("runtime = %+v", got)
	}
}
