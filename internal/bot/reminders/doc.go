// Package reminders exposes the reminder commands on Telegram: slash
// commands for create/list/cancel/timezone/help and the inline Yes/No
// callbacks of the cancel-all prompt.
//
// The chat a command is issued in is its guild; "here" as a channel means
// that chat and, in forum groups, its topic.
package reminders
