package reminders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/delivery"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	moduleName    = "reminders"
	actionConfirm = "confirm_all"
	actionAbort   = "abort_all"

	cmdTimeout = 15 * time.Second
)

const (
	replyStorageFailure = "Something went wrong while saving, please try again later."
	replyInvalidNumber  = "Invalid number."
	replyPromptGone     = "This prompt expired or belongs to someone else."
)

// Module wires reminder.Service to Telegram routes.
type Module struct {
	svc *reminder.Service
	log logx.Logger
}

func New(svc *reminder.Service, log logx.Logger) *Module {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Module{svc: svc, log: log.With(logx.String("comp", "bot.reminders"))}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "set_timezone",
			Aliases:     []string{"settimezone"},
			Description: "set the time zone for new reminders",
			Usage:       "/set_timezone <zone>  (e.g. UTC, Europe/Rome)",
			Access:      router.AccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleSetTimezone,
		},
		{
			Name:        "create_reminder",
			Aliases:     []string{"setreminder"},
			Description: "create a recurring reminder",
			Usage:       "/create_reminder <channel|here> <HH:MM> <message> [--times N] [--days 1,3] [--tz Zone]",
			Access:      router.AccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleCreate,
		},
		{
			Name:        "list_reminders",
			Aliases:     []string{"reminderlist"},
			Description: "show the saved reminders",
			Usage:       "/list_reminders",
			Access:      router.AccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleList,
		},
		{
			Name:        "cancel_reminder",
			Aliases:     []string{"remindercanc"},
			Description: "cancel one reminder by its list number",
			Usage:       "/cancel_reminder <n>",
			Access:      router.AccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleCancelOne,
		},
		{
			Name:        "cancel_all_reminders",
			Aliases:     []string{"remindercancall"},
			Description: "cancel every reminder (asks first)",
			Usage:       "/cancel_all_reminders",
			Access:      router.AccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleCancelAll,
		},
		{
			Name:        "help",
			Aliases:     []string{"h"},
			Description: "show help",
			Usage:       "/help",
			Access:      router.AccessEveryone,
			Handle:      m.handleHelp,
		},
	}
}

func (m *Module) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{
			Module:      moduleName,
			Action:      actionConfirm,
			Description: "confirm cancel-all",
			Access:      router.CallbackAccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleConfirmAll,
		},
		{
			Module:      moduleName,
			Action:      actionAbort,
			Description: "abort cancel-all",
			Access:      router.CallbackAccessEveryone,
			Timeout:     cmdTimeout,
			Handle:      m.handleAbortAll,
		},
	}
}

func guildOf(req *router.Request) string { return strconv.FormatInt(req.Chat.ChatID, 10) }

func requesterOf(req *router.Request) string { return strconv.FormatInt(req.FromID, 10) }

// reply sends text and logs (but swallows) transport errors.
func (m *Module) reply(ctx context.Context, req *router.Request, text string) {
	if _, err := tgui.Plain(text).Send(ctx, req.Adapter, req.Chat); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

// replyErr renders err for the user. Validation text is shown as is; any
// other failure gets a generic reply and is returned for the request log.
func (m *Module) replyErr(ctx context.Context, req *router.Request, err error) error {
	var ve *reminder.ValidationError
	if errors.As(err, &ve) {
		m.reply(ctx, req, "⚠️ "+ve.Msg)
		return nil
	}
	m.reply(ctx, req, replyStorageFailure)
	return err
}

func (m *Module) handleSetTimezone(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		m.reply(ctx, req, "Usage: /set_timezone <zone>  (e.g. UTC, Europe/Rome)")
		return nil
	}
	tz := strings.TrimSpace(req.Args[0])
	if err := m.svc.SetTimezone(ctx, guildOf(req), tz); err != nil {
		return m.replyErr(ctx, req, err)
	}
	m.reply(ctx, req, "Timezone set to: "+tz)
	return nil
}

func (m *Module) handleCreate(ctx context.Context, req *router.Request) error {
	a := parseCreateText(req.Text())
	if a.Channel == "" || a.Time == "" || strings.TrimSpace(a.Message) == "" {
		m.reply(ctx, req, "Usage: /create_reminder <channel|here> <HH:MM> <message> [--times N] [--days 1,3] [--tz Zone]")
		return nil
	}

	channel, err := channelRef(a.Channel, req.Chat)
	if err != nil {
		return m.replyErr(ctx, req, err)
	}
	var times *int
	if raw, ok := a.Flags["times"]; ok {
		n, err := reminder.ParseOccurrences(raw)
		if err != nil {
			return m.replyErr(ctx, req, err)
		}
		times = &n
	}
	days, err := reminder.ParseDays(a.Flags["days"])
	if err != nil {
		return m.replyErr(ctx, req, err)
	}

	r, err := m.svc.Create(ctx, reminder.CreateInput{
		GuildID:        guildOf(req),
		ChannelID:      channel,
		TimeOfDay:      a.Time,
		Message:        a.Message,
		MaxOccurrences: times,
		Days:           days,
		Timezone:       a.Flags["tz"],
	})
	if err != nil {
		return m.replyErr(ctx, req, err)
	}
	m.reply(ctx, req, "✅ Reminder created! "+describe(r))
	return nil
}

// channelRef accepts "here" or a "<chat_id>[:<thread_id>]" reference.
func channelRef(raw string, here kit.ChatTarget) (string, error) {
	if strings.EqualFold(raw, "here") {
		return delivery.FormatChannel(here), nil
	}
	to, err := delivery.ParseChannel(raw)
	if err != nil {
		return "", &reminder.ValidationError{Field: "channel", Msg: "channel must be here, <chat_id> or <chat_id>:<topic_id>"}
	}
	return delivery.FormatChannel(to), nil
}

func describe(r reminder.Reminder) string {
	days := "every day"
	if len(r.DaysOfWeek) > 0 {
		days = "days " + reminder.FormatDays(r.DaysOfWeek)
	}
	times := "no limit"
	if r.Bounded() {
		times = fmt.Sprintf("%d times", r.MaxOccurrences)
		if r.MaxOccurrences == 1 {
			times = "once"
		}
	}
	return fmt.Sprintf("(%s %s, %s, %s)", r.TimeOfDay, r.Timezone, days, times)
}

func (m *Module) handleList(ctx context.Context, req *router.Request) error {
	rs, err := m.svc.List(ctx, guildOf(req))
	if err != nil {
		return m.replyErr(ctx, req, err)
	}
	m.reply(ctx, req, reminder.RenderList(rs))
	return nil
}

func (m *Module) handleCancelOne(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		m.reply(ctx, req, "Usage: /cancel_reminder <n>")
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(req.Args[0]))
	if err != nil {
		m.reply(ctx, req, replyInvalidNumber)
		return nil
	}
	if _, err := m.svc.CancelOne(ctx, guildOf(req), n); err != nil {
		if errors.Is(err, reminder.ErrInvalidIndex) {
			m.reply(ctx, req, replyInvalidNumber)
			return nil
		}
		return m.replyErr(ctx, req, err)
	}
	m.reply(ctx, req, "❌ Reminder cancelled.")
	return nil
}

func (m *Module) handleCancelAll(ctx context.Context, req *router.Request) error {
	cf := m.svc.RequestCancelAll(guildOf(req), requesterOf(req))
	kb, err := tgui.YesNo("Yes, cancel all", "No, keep them", moduleName, actionConfirm, actionAbort, cf.Token)
	if err != nil {
		return m.replyErr(ctx, req, err)
	}
	msg := tgui.Plain("Are you sure you want to cancel ALL reminders?").WithKeyboard(kb)
	if _, err := msg.Send(ctx, req.Adapter, req.Chat); err != nil {
		return fmt.Errorf("send cancel-all prompt: %w", err)
	}
	return nil
}

func (m *Module) handleConfirmAll(ctx context.Context, req *router.Request, token string) error {
	n, err := m.svc.ConfirmCancelAll(ctx, token, requesterOf(req))
	switch {
	case errors.Is(err, reminder.ErrConfirmationExpired):
		m.answer(ctx, req, replyPromptGone)
		return nil
	case err != nil:
		m.answer(ctx, req, replyStorageFailure)
		return err
	}
	m.edit(ctx, req, fmt.Sprintf("✅ All reminders have been cancelled (%d).", n))
	return nil
}

func (m *Module) handleAbortAll(ctx context.Context, req *router.Request, token string) error {
	if err := m.svc.AbortCancelAll(token, requesterOf(req)); err != nil {
		m.answer(ctx, req, replyPromptGone)
		return nil
	}
	m.edit(ctx, req, "❎ Cancelled, no reminders were deleted.")
	return nil
}

// edit replaces the prompt in place and drops its buttons.
func (m *Module) edit(ctx context.Context, req *router.Request, text string) {
	cb := req.Update.Callback
	if cb == nil {
		m.reply(ctx, req, text)
		return
	}
	if err := tgui.Plain(text).Edit(ctx, req.Adapter, cb.Ref()); err != nil {
		req.Logger.Warn("edit prompt failed", logx.Err(err))
		m.reply(ctx, req, text)
	}
}

func (m *Module) answer(ctx context.Context, req *router.Request, text string) {
	cb := req.Update.Callback
	if cb == nil {
		m.reply(ctx, req, text)
		return
	}
	if err := req.Adapter.AnswerCallback(ctx, cb.ID, text); err != nil {
		req.Logger.Debug("answer callback failed", logx.Err(err))
	}
}

func (m *Module) handleHelp(ctx context.Context, req *router.Request) error {
	m.reply(ctx, req, reminder.Help())
	return nil
}
