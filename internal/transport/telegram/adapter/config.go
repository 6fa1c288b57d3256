package adapter

import "time"

// Config configures the Telegram adapter.
type Config struct {
	Token       string
	PollTimeout time.Duration
}

const (
	defaultPollTimeout = 10 * time.Second
	dropReportEvery    = 5 * time.Second
	stopGrace          = 2 * time.Second
)
