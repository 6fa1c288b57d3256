package reminder

import "time"

// Unbounded is the MaxOccurrences sentinel for reminders that never retire.
const Unbounded = -1

// DefaultTimezone is used when neither the reminder nor its guild sets one.
const DefaultTimezone = "UTC"

type Reminder struct {
	ID        string `json:"id" db:"id" bson:"id"`
	GuildID   string `json:"guild_id" db:"guild_id" bson:"guild_id"`
	ChannelID string `json:"channel_id" db:"channel_id" bson:"channel_id"`
	// TimeOfDay is "HH:MM" (24h) local to Timezone.
	TimeOfDay string `json:"time" db:"time_of_day" bson:"time_of_day"`
	Timezone  string `json:"timezone" db:"timezone" bson:"timezone"`
	// DaysOfWeek holds values 1-7; empty means every day.
	DaysOfWeek     []int     `json:"days" db:"-" bson:"days_of_week"`
	Message        string    `json:"message" db:"message" bson:"message"`
	MaxOccurrences int       `json:"times" db:"max_occurrences" bson:"max_occurrences"`
	SentCount      int       `json:"sent" db:"sent_count" bson:"sent_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at" bson:"created_at"`
}

// Bounded reports whether the reminder has a finite occurrence budget.
func (r Reminder) Bounded() bool { return r.MaxOccurrences != Unbounded }

// HasBudget reports whether one more delivery is allowed.
func (r Reminder) HasBudget() bool {
	return !r.Bounded() || r.SentCount < r.MaxOccurrences
}

// Remaining returns the number of deliveries left, or -1 when unbounded.
func (r Reminder) Remaining() int {
	if !r.Bounded() {
		return Unbounded
	}
	if n := r.MaxOccurrences - r.SentCount; n > 0 {
		return n
	}
	return 0
}

type GuildTimezone struct {
	GuildID  string `json:"guild_id" db:"guild_id" bson:"guild_id"`
	Timezone string `json:"timezone" db:"timezone" bson:"timezone"`
}
