package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "remindbot/pkg/logx"
)

// Service implements the reminder commands. It is shared by the Telegram
// command layer and the dashboard.
type Service struct {
	store    Store
	sched    Scheduler
	log      logx.Logger
	confirms *confirmations

	defaultTZ string
	newID     func() string
	now       func() time.Time
}

type Option func(*Service)

// WithConfirmTTL sets how long a cancel-all confirmation stays valid.
func WithConfirmTTL(d time.Duration) Option {
	return func(s *Service) { s.confirms = newConfirmations(d) }
}

// WithDefaultTimezone sets the zone used when a guild has none stored.
func WithDefaultTimezone(tz string) Option {
	return func(s *Service) {
		if strings.TrimSpace(tz) != "" {
			s.defaultTZ = strings.TrimSpace(tz)
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, sched Scheduler, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:     store,
		sched:     sched,
		log:       log,
		confirms:  newConfirmations(DefaultConfirmTTL),
		defaultTZ: DefaultTimezone,
		newID:     newReminderID,
		now:       time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// newReminderID returns a UUIDv7 so ids sort in creation order.
func newReminderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreateInput is a create request as it arrives from a command or form.
type CreateInput struct {
	GuildID   string
	ChannelID string
	TimeOfDay string
	Message   string
	// MaxOccurrences is nil when not given (unbounded); -1 is explicit unbounded.
	MaxOccurrences *int
	Days           []int
	// Timezone overrides the guild zone for this reminder only.
	Timezone string
}

// Create validates in, persists a new reminder and arms its trigger.
func (s *Service) Create(ctx context.Context, in CreateInput) (Reminder, error) {
	guildID := strings.TrimSpace(in.GuildID)
	if guildID == "" {
		return Reminder{}, invalid("guild", "missing guild")
	}
	channelID := strings.TrimSpace(in.ChannelID)
	if channelID == "" {
		return Reminder{}, invalid("channel", "missing channel")
	}
	tod, err := ParseTimeOfDay(in.TimeOfDay)
	if err != nil {
		return Reminder{}, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return Reminder{}, invalid("message", "message must not be empty")
	}
	maxOcc := Unbounded
	if in.MaxOccurrences != nil {
		maxOcc = *in.MaxOccurrences
	}
	if err := ValidateOccurrences(maxOcc); err != nil {
		return Reminder{}, err
	}
	for _, d := range in.Days {
		if d < 1 || d > 7 {
			return Reminder{}, invalid("days", "%d is not a day number 1-7", d)
		}
	}

	tz, err := s.effectiveTimezone(ctx, guildID, in.Timezone)
	if err != nil {
		return Reminder{}, err
	}

	r := Reminder{
		ID:             s.newID(),
		GuildID:        guildID,
		ChannelID:      channelID,
		TimeOfDay:      tod,
		Timezone:       tz,
		Message:        msg,
		MaxOccurrences: maxOcc,
		SentCount:      0,
		CreatedAt:      s.now().UTC(),
	}
	if len(in.Days) > 0 {
		r.DaysOfWeek = append([]int(nil), in.Days...)
	}

	if err := s.store.PutReminder(ctx, r); err != nil {
		return Reminder{}, storageErr("put reminder", err)
	}
	if err := s.sched.Register(ctx, r.ID); err != nil {
		// Unarmed records would sit silently until the next restart.
		if derr := s.store.DeleteReminder(ctx, r.ID); derr != nil {
			s.log.Warn("rollback after register failure", logx.String("reminder_id", r.ID), logx.Err(derr))
		}
		return Reminder{}, fmt.Errorf("schedule reminder: %w", err)
	}

	s.log.Info("reminder created",
		logx.String("reminder_id", r.ID),
		logx.String("guild_id", r.GuildID),
		logx.String("channel_id", r.ChannelID),
		logx.String("time", r.TimeOfDay),
		logx.String("tz", r.Timezone),
		logx.Int("times", r.MaxOccurrences),
	)
	return r, nil
}

func (s *Service) effectiveTimezone(ctx context.Context, guildID, override string) (string, error) {
	if tz := strings.TrimSpace(override); tz != "" {
		if err := ValidateTimezone(tz); err != nil {
			return "", err
		}
		return tz, nil
	}
	tz, err := s.store.GetGuildTimezone(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.defaultTZ, nil
	case err != nil:
		return "", storageErr("get guild timezone", err)
	case strings.TrimSpace(tz) == "":
		return s.defaultTZ, nil
	}
	return tz, nil
}

// SetTimezone stores the guild zone. Existing reminders keep their own zone.
func (s *Service) SetTimezone(ctx context.Context, guildID, tz string) error {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return invalid("guild", "missing guild")
	}
	tz = strings.TrimSpace(tz)
	if err := ValidateTimezone(tz); err != nil {
		return err
	}
	if err := s.store.SetGuildTimezone(ctx, guildID, tz); err != nil {
		return storageErr("set guild timezone", err)
	}
	s.log.Info("guild timezone set", logx.String("guild_id", guildID), logx.String("tz", tz))
	return nil
}

// Timezone returns the zone new reminders in guildID will get.
func (s *Service) Timezone(ctx context.Context, guildID string) (string, error) {
	return s.effectiveTimezone(ctx, guildID, "")
}

// List returns the reminders of guildID ("" = all) in append order.
func (s *Service) List(ctx context.Context, guildID string) ([]Reminder, error) {
	rs, err := s.store.ListReminders(ctx, guildID)
	if err != nil {
		return nil, storageErr("list reminders", err)
	}
	return rs, nil
}

// RenderList formats reminders as the numbered list users pick from.
func RenderList(rs []Reminder) string {
	if len(rs) == 0 {
		return "No reminders."
	}
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, r.Message, r.TimeOfDay)
	}
	return b.String()
}

// CancelOne deletes the reminder shown at 1-based index in List order.
func (s *Service) CancelOne(ctx context.Context, guildID string, index int) (Reminder, error) {
	rs, err := s.List(ctx, guildID)
	if err != nil {
		return Reminder{}, err
	}
	if index < 1 || index > len(rs) {
		return Reminder{}, ErrInvalidIndex
	}
	r := rs[index-1]
	if err := s.remove(ctx, r.ID); err != nil {
		return Reminder{}, err
	}
	s.log.Info("reminder cancelled", logx.String("reminder_id", r.ID), logx.String("guild_id", guildID), logx.Int("index", index))
	return r, nil
}

// CancelByID deletes one reminder by id. Missing ids are ErrNotFound.
func (s *Service) CancelByID(ctx context.Context, id string) error {
	if _, err := s.store.GetReminder(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("get reminder", err)
	}
	if err := s.remove(ctx, id); err != nil {
		return err
	}
	s.log.Info("reminder cancelled", logx.String("reminder_id", id))
	return nil
}

func (s *Service) remove(ctx context.Context, id string) error {
	if err := s.store.DeleteReminder(ctx, id); err != nil {
		return storageErr("delete reminder", err)
	}
	s.sched.Cancel(id)
	return nil
}

// RequestCancelAll opens a cancel-all confirmation for requester. Nothing
// is deleted until ConfirmCancelAll is called with the returned token.
func (s *Service) RequestCancelAll(guildID, requester string) Confirmation {
	return s.confirms.issue(guildID, requester, s.now())
}

// ConfirmCancelAll consumes token and deletes every reminder of its guild.
func (s *Service) ConfirmCancelAll(ctx context.Context, token, requester string) (int, error) {
	cf, ok := s.confirms.take(token, requester, s.now())
	if !ok {
		return 0, ErrConfirmationExpired
	}
	n, err := s.store.DeleteAllReminders(ctx, cf.GuildID)
	if err != nil {
		return 0, storageErr("delete all reminders", err)
	}
	// pruning after the delete also catches reminders created while it ran
	if _, err := s.sched.Prune(ctx, cf.GuildID); err != nil {
		s.log.Warn("cancel all: prune triggers failed", logx.String("guild_id", cf.GuildID), logx.Err(err))
	}
	s.log.Info("all reminders cancelled", logx.String("guild_id", cf.GuildID), logx.Int("count", n))
	return n, nil
}

// AbortCancelAll consumes token without touching any reminder.
func (s *Service) AbortCancelAll(token, requester string) error {
	if _, ok := s.confirms.take(token, requester, s.now()); !ok {
		return ErrConfirmationExpired
	}
	return nil
}
