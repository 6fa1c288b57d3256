// Package scheduler arms one cron trigger per reminder.
//
// The Registry owns a single robfig/cron instance. Each reminder is scheduled
// with a "CRON_TZ=<zone>" spec so it fires in its own time zone regardless of
// the host zone. Triggers are in memory only; Rehydrate rebuilds them from
// storage at startup.
package scheduler
