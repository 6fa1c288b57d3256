package reminders

import (
	"context"
	"strings"
	"sync"
	"testing"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	to     kit.ChatTarget
	text   string
	markup *tele.ReplyMarkup
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	edits    []string
	answered []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{to: to, text: text}
	if opt != nil {
		s.markup, _ = opt.Markup.(*tele.ReplyMarkup)
	}
	f.sent = append(f.sent, s)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, text)
	return nil
}

func (f *fakeAdapter) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type harness struct {
	mod   *Module
	ad    *fakeAdapter
	store storage.Store
	reg   *scheduler.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := storage.NewMemory()
	reg := scheduler.New(st, logx.Nop())
	svc := reminder.NewService(st, reg, logx.Nop())
	return &harness{mod: New(svc, logx.Nop()), ad: &fakeAdapter{}, store: st, reg: reg}
}

const (
	chatID = int64(-100500)
	userA  = int64(11)
	userB  = int64(22)
)

// command builds the request the router would hand to a handler.
func (h *harness) command(text string, from int64) *router.Request {
	toks := strings.Fields(text)
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, ThreadID: 4, FromID: from, Text: text}},
		Chat:    kit.ChatTarget{ChatID: chatID, ThreadID: 4},
		FromID:  from,
		Args:    toks[1:],
		Adapter: h.ad,
	}
}

func (h *harness) callback(from int64, payload string) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: chatID, ThreadID: 4, MessageID: 9, FromID: from}},
		Chat:    kit.ChatTarget{ChatID: chatID, ThreadID: 4},
		FromID:  from,
		Payload: payload,
		Adapter: h.ad,
	}
}

func TestParseCreateText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want createArgs
	}{
		{
			name: "plain",
			in:   "/create_reminder here 09:30 Daily stand-up, don't be late!",
			want: createArgs{Channel: "here", Time: "09:30", Message: "Daily stand-up, don't be late!"},
		},
		{
			name: "flags at the end",
			in:   "/create_reminder -100123:7 18:00 Go  home --times 2 --days 1,3",
			want: createArgs{Channel: "-100123:7", Time: "18:00", Message: "Go  home", Flags: map[string]string{"times": "2", "days": "1,3"}},
		},
		{
			name: "flags first and inline",
			in:   "/setreminder --tz=Europe/Rome --times -1 here 07:00 Buongiorno",
			want: createArgs{Channel: "here", Time: "07:00", Message: "Buongiorno", Flags: map[string]string{"tz": "Europe/Rome", "times": "-1"}},
		},
		{
			name: "flag inside message",
			in:   "/create_reminder here 07:00 water --days 6,7 the plants",
			want: createArgs{Channel: "here", Time: "07:00", Message: "water the plants", Flags: map[string]string{"days": "6,7"}},
		},
		{
			name: "unknown flags stay in the message",
			in:   "/create_reminder here 07:00 run --fast -x",
			want: createArgs{Channel: "here", Time: "07:00", Message: "run --fast -x"},
		},
		{
			name: "multi-line message",
			in:   "/create_reminder here 07:00 line one\nline two",
			want: createArgs{Channel: "here", Time: "07:00", Message: "line one\nline two"},
		},
		{
			name: "missing message",
			in:   "/create_reminder here 07:00",
			want: createArgs{Channel: "here", Time: "07:00"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parseCreateText(tc.in)
			if got.Channel != tc.want.Channel || got.Time != tc.want.Time || got.Message != tc.want.Message {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if len(got.Flags) != len(tc.want.Flags) {
				t.Fatalf("flags = %v, want %v", got.Flags, tc.want.Flags)
			}
			for k, v := range tc.want.Flags {
				if got.Flags[k] != v {
					t.Fatalf("flag %s = %q, want %q", k, got.Flags[k], v)
				}
			}
		})
	}
}

func TestCreateHereListAndCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if err := h.mod.handleCreate(ctx, h.command("/create_reminder here 09:30 Stand-up --times 2 --days 1,3", userA)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := h.ad.last().text; !strings.HasPrefix(got, "✅ Reminder created!") || !strings.Contains(got, "09:30 UTC") {
		t.Fatalf("create reply = %q", got)
	}
	rs, _ := h.store.ListReminders(ctx, "-100500")
	if len(rs) != 1 {
		t.Fatalf("stored = %d, want 1", len(rs))
	}
	r := rs[0]
	if r.ChannelID != "-100500:4" || r.MaxOccurrences != 2 || len(r.DaysOfWeek) != 2 || r.Message != "Stand-up" {
		t.Fatalf("stored reminder = %+v", r)
	}
	if !h.reg.Has(r.ID) {
		t.Fatalf("reminder should be armed")
	}

	if err := h.mod.handleList(ctx, h.command("/list_reminders", userA)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := h.ad.last().text; got != "1. Stand-up (09:30)" {
		t.Fatalf("list reply = %q", got)
	}

	if err := h.mod.handleCancelOne(ctx, h.command("/cancel_reminder 2", userA)); err != nil {
		t.Fatalf("cancel out of range: %v", err)
	}
	if got := h.ad.last().text; got != replyInvalidNumber {
		t.Fatalf("out of range reply = %q", got)
	}
	if err := h.mod.handleCancelOne(ctx, h.command("/cancel_reminder 1", userA)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.ad.last().text; got != "❌ Reminder cancelled." {
		t.Fatalf("cancel reply = %q", got)
	}
	if h.reg.Has(r.ID) {
		t.Fatalf("cancelled reminder must be disarmed")
	}
	_ = h.mod.handleList(ctx, h.command("/list_reminders", userA))
	if got := h.ad.last().text; got != "No reminders." {
		t.Fatalf("empty list reply = %q", got)
	}
}

func TestCreateValidationReplies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"/create_reminder here 25:00 late", "⚠️ hour must be 00-23"},
		{"/create_reminder here 09:00 hi --days 8", "⚠️ \"8\" is not a day number 1-7"},
		{"/create_reminder here 09:00 hi --times 0", "⚠️ must be >= 1"},
		{"/create_reminder here 09:00 hi --tz Mars/Base", "⚠️ unknown zone"},
		{"/create_reminder general 09:00 hi", "⚠️ channel must be here"},
		{"/create_reminder here", "Usage: /create_reminder"},
	}
	for _, tc := range cases {
		if err := h.mod.handleCreate(ctx, h.command(tc.text, userA)); err != nil {
			t.Fatalf("%q: handler error %v", tc.text, err)
		}
		if got := h.ad.last().text; !strings.HasPrefix(got, tc.want) {
			t.Errorf("%q reply = %q, want prefix %q", tc.text, got, tc.want)
		}
	}
	if rs, _ := h.store.ListReminders(ctx, ""); len(rs) != 0 {
		t.Fatalf("invalid input must not persist, got %d", len(rs))
	}
}

func TestSetTimezoneAppliesToNewReminders(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_ = h.mod.handleSetTimezone(ctx, h.command("/set_timezone Nowhere/City", userA))
	if got := h.ad.last().text; !strings.HasPrefix(got, "⚠️ unknown zone") {
		t.Fatalf("bad zone reply = %q", got)
	}
	_ = h.mod.handleSetTimezone(ctx, h.command("/set_timezone Europe/Rome", userA))
	if got := h.ad.last().text; got != "Timezone set to: Europe/Rome" {
		t.Fatalf("set reply = %q", got)
	}
	_ = h.mod.handleCreate(ctx, h.command("/create_reminder -100777 08:00 Caffè", userA))
	rs, _ := h.store.ListReminders(ctx, "-100500")
	if len(rs) != 1 || rs[0].Timezone != "Europe/Rome" || rs[0].ChannelID != "-100777" {
		t.Fatalf("reminders = %+v", rs)
	}
}

func TestCancelAllConfirmFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for _, txt := range []string{"/create_reminder here 08:00 one", "/create_reminder here 09:00 two"} {
		if err := h.mod.handleCreate(ctx, h.command(txt, userA)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := h.mod.handleCancelAll(ctx, h.command("/cancel_all_reminders", userA)); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	prompt := h.ad.last()
	if prompt.markup == nil || len(prompt.markup.InlineKeyboard) != 1 || len(prompt.markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("prompt should carry a Yes/No keyboard, got %+v", prompt.markup)
	}
	yes := prompt.markup.InlineKeyboard[0][0].Data
	token := strings.TrimPrefix(yes, "reminders:confirm_all:")
	if token == yes || token == "" {
		t.Fatalf("yes button data = %q", yes)
	}

	// nothing deleted yet; someone else cannot confirm
	if err := h.mod.handleConfirmAll(ctx, h.callback(userB, token), token); err != nil {
		t.Fatalf("foreign confirm: %v", err)
	}
	if rs, _ := h.store.ListReminders(ctx, ""); len(rs) != 2 {
		t.Fatalf("foreign confirm deleted reminders: %d left", len(rs))
	}
	if len(h.ad.answered) != 1 || h.ad.answered[0] != replyPromptGone {
		t.Fatalf("answered = %v", h.ad.answered)
	}

	if err := h.mod.handleConfirmAll(ctx, h.callback(userA, token), token); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rs, _ := h.store.ListReminders(ctx, ""); len(rs) != 0 {
		t.Fatalf("confirm left %d reminders", len(rs))
	}
	if h.reg.Len() != 0 {
		t.Fatalf("registry still has %d triggers", h.reg.Len())
	}
	if len(h.ad.edits) != 1 || !strings.HasPrefix(h.ad.edits[0], "✅ All reminders have been cancelled") {
		t.Fatalf("edits = %v", h.ad.edits)
	}

	// token is single-use
	_ = h.mod.handleConfirmAll(ctx, h.callback(userA, token), token)
	if got := h.ad.answered[len(h.ad.answered)-1]; got != replyPromptGone {
		t.Fatalf("reused token answer = %q", got)
	}
}

func TestCancelAllAbort(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_ = h.mod.handleCreate(ctx, h.command("/create_reminder here 08:00 keep me", userA))
	_ = h.mod.handleCancelAll(ctx, h.command("/cancel_all_reminders", userA))
	no := h.ad.last().markup.InlineKeyboard[0][1].Data
	token := strings.TrimPrefix(no, "reminders:abort_all:")

	if err := h.mod.handleAbortAll(ctx, h.callback(userA, token), token); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if len(h.ad.edits) != 1 || h.ad.edits[0] != "❎ Cancelled, no reminders were deleted." {
		t.Fatalf("edits = %v", h.ad.edits)
	}
	if rs, _ := h.store.ListReminders(ctx, ""); len(rs) != 1 {
		t.Fatalf("abort must not delete, %d left", len(rs))
	}
	// aborted token cannot be confirmed afterwards
	_ = h.mod.handleConfirmAll(ctx, h.callback(userA, token), token)
	if rs, _ := h.store.ListReminders(ctx, ""); len(rs) != 1 {
		t.Fatalf("confirm after abort deleted reminders")
	}
}

func TestHelpAndRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_ = h.mod.handleHelp(context.Background(), h.command("/help", userA))
	if got := h.ad.last().text; got != reminder.Help() {
		t.Fatalf("help reply = %q", got)
	}

	routes := map[string]string{}
	for _, c := range h.mod.Commands() {
		routes[c.Name] = strings.Join(c.Aliases, ",")
	}
	want := map[string]string{
		"set_timezone":         "settimezone",
		"create_reminder":      "setreminder",
		"list_reminders":       "reminderlist",
		"cancel_reminder":      "remindercanc",
		"cancel_all_reminders": "remindercancall",
		"help":                 "h",
	}
	for route, alias := range want {
		if routes[route] != alias {
			t.Errorf("route %s aliases = %q, want %q", route, routes[route], alias)
		}
	}
	for _, cb := range h.mod.Callbacks() {
		if cb.Access != router.CallbackAccessEveryone {
			t.Errorf("callback %s must be open to everyone", cb.Action)
		}
	}
}
