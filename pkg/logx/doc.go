// Package logx is the bot's logging layer on top of zerolog: console lines
// for humans, JSON lines in the log file and a rate-limited copy of warnings
// posted to an operator chat.
package logx
