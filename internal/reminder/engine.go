package reminder

import (
	"context"
	"errors"

	logx "remindbot/pkg/logx"
)

// FireResult is the outcome of one Fire call.
type FireResult int

const (
	// FireSkipped: reminder gone, or target not resolvable. Nothing changed.
	FireSkipped FireResult = iota
	// FireDelivered: message handed to the deliverer and SentCount incremented.
	FireDelivered
	// FireRetired: budget exhausted; record deleted and trigger cancelled.
	FireRetired
	// FireFailed: storage error; on-disk state unchanged until the next fire.
	FireFailed
)

func (r FireResult) String() string {
	switch r {
	case FireSkipped:
		return "skipped"
	case FireDelivered:
		return "delivered"
	case FireRetired:
		return "retired"
	case FireFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine runs the fire-time lifecycle of a reminder:
//
//	Active --fire, budget left--> Active (deliver, SentCount++)
//	Active --fire, no budget----> Exhausted (delete, cancel trigger)
type Engine struct {
	store Store
	out   Deliverer
	sched Scheduler
	log   logx.Logger
}

func NewEngine(store Store, out Deliverer, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: store, out: out, log: log}
}

// SetScheduler wires the registry used for self-retirement. The registry in
// turn calls Fire, so the two are connected after construction.
func (e *Engine) SetScheduler(s Scheduler) { e.sched = s }

// Fire handles one occurrence of reminder id. It always re-reads the record
// so a cancellation that raced the timer wins.
func (e *Engine) Fire(ctx context.Context, id string) FireResult {
	log := e.log.With(logx.String("reminder_id", id))

	r, err := e.store.GetReminder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if e.sched != nil {
			e.sched.Cancel(id)
		}
		log.Debug("fire skipped: reminder gone")
		return FireSkipped
	}
	if err != nil {
		log.Warn("fire: load failed", logx.Err(err))
		return FireFailed
	}
	if !e.out.Resolve(ctx, r.GuildID, r.ChannelID) {
		log.Debug("fire skipped: target unresolved", logx.String("guild_id", r.GuildID), logx.String("channel_id", r.ChannelID))
		return FireSkipped
	}

	if !r.HasBudget() {
		if err := e.store.DeleteReminder(ctx, id); err != nil {
			log.Warn("fire: retire delete failed", logx.Err(err))
			return FireFailed
		}
		if e.sched != nil {
			e.sched.Cancel(id)
		}
		log.Info("reminder retired", logx.Int("sent", r.SentCount), logx.Int("max", r.MaxOccurrences))
		return FireRetired
	}

	// SentCount counts attempts: a failed send still consumes an occurrence.
	if err := e.out.Send(ctx, r.GuildID, r.ChannelID, r.Message); err != nil {
		log.Warn("fire: delivery failed", logx.Err(err), logx.String("channel_id", r.ChannelID))
	}
	r.SentCount++
	if err := e.store.PutReminder(ctx, r); err != nil {
		log.Warn("fire: persist sent count failed", logx.Err(err), logx.Int("sent", r.SentCount))
		return FireFailed
	}
	log.Debug("reminder delivered", logx.Int("sent", r.SentCount), logx.Int("max", r.MaxOccurrences))
	return FireDelivered
}
