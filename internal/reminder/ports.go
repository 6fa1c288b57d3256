package reminder

import "context"

// Store is the persistence capability the reminder logic needs.
// Implementations live in internal/storage; every call is atomic per record.
type Store interface {
	GetReminder(ctx context.Context, id string) (Reminder, error)
	// ListReminders returns reminders in append order. guildID "" lists all guilds.
	ListReminders(ctx context.Context, guildID string) ([]Reminder, error)
	PutReminder(ctx context.Context, r Reminder) error
	DeleteReminder(ctx context.Context, id string) error
	// DeleteAllReminders clears one guild ("" = all) and returns the number removed.
	DeleteAllReminders(ctx context.Context, guildID string) (int, error)

	GetGuildTimezone(ctx context.Context, guildID string) (string, error)
	SetGuildTimezone(ctx context.Context, guildID, tz string) error
}

// Scheduler arms and disarms the recurring trigger of a reminder.
type Scheduler interface {
	Register(ctx context.Context, id string) error
	Cancel(id string) bool
	// Prune drops the triggers of guildID whose records are gone.
	Prune(ctx context.Context, guildID string) (int, error)
}

// Deliverer sends reminder text to a guild channel.
type Deliverer interface {
	// Resolve reports whether the guild/channel pair can currently receive messages.
	Resolve(ctx context.Context, guildID, channelID string) bool
	Send(ctx context.Context, guildID, channelID, message string) error
}
