// Package delivery turns a (guild, channel) pair stored on a reminder into a
// Telegram chat target and sends reminder text to it.
//
// Channel references are "<chat_id>" or "<chat_id>:<thread_id>" (forum topic).
// Reachability checks go through the adapter's getChat and are cached; sends
// share one rate limiter so bursts of reminders stay under flood limits.
package delivery
