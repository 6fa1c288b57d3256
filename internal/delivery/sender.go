package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	DefaultRatePerSec = 20
	DefaultCacheTTL   = 10 * time.Minute
)

type chatState struct {
	ok  bool
	exp time.Time
}

// Sender implements reminder.Deliverer over a transport adapter.
type Sender struct {
	ad     kit.Adapter
	lookup kit.ChatLookup // nil: every well-formed channel resolves
	log    logx.Logger

	mu      sync.Mutex
	ttl     time.Duration
	chats   map[int64]chatState
	limiter *rate.Limiter

	now func() time.Time
}

type Option func(*Sender)

// WithRate limits outbound sends to perSec messages per second (burst perSec).
func WithRate(perSec int) Option {
	return func(s *Sender) { s.limiter = newLimiter(perSec) }
}

// WithCacheTTL sets how long a getChat answer is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

func New(ad kit.Adapter, log logx.Logger, opts ...Option) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{
		ad:      ad,
		log:     log.With(logx.String("comp", "delivery")),
		ttl:     DefaultCacheTTL,
		chats:   map[int64]chatState{},
		limiter: newLimiter(DefaultRatePerSec),
		now:     time.Now,
	}
	if l, ok := ad.(kit.ChatLookup); ok {
		s.lookup = l
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

// SetRate swaps the send limiter (config hot-reload).
func (s *Sender) SetRate(perSec int) {
	l := newLimiter(perSec)
	s.mu.Lock()
	s.limiter = l
	s.mu.Unlock()
}

// SetCacheTTL changes the reachability cache TTL and drops cached answers.
func (s *Sender) SetCacheTTL(d time.Duration) {
	if d <= 0 {
		d = DefaultCacheTTL
	}
	s.mu.Lock()
	s.ttl = d
	clear(s.chats)
	s.mu.Unlock()
}

// Forget drops the cached reachability of a chat.
func (s *Sender) Forget(chatID int64) {
	s.mu.Lock()
	delete(s.chats, chatID)
	s.mu.Unlock()
}

// Target resolves channelID to a chat target the bot can currently reach.
// The guild is informational: a reminder may post to any chat the bot is in.
func (s *Sender) Target(ctx context.Context, guildID, channelID string) (kit.ChatTarget, bool) {
	to, err := ParseChannel(channelID)
	if err != nil {
		s.log.Debug("channel not parseable", logx.String("guild", guildID), logx.String("channel", channelID))
		return kit.ChatTarget{}, false
	}
	if s.lookup == nil {
		return to, true
	}

	now := s.now()
	s.mu.Lock()
	st, hit := s.chats[to.ChatID]
	s.mu.Unlock()
	if hit && now.Before(st.exp) {
		return to, st.ok
	}

	ok, err := s.lookup.ChatExists(ctx, to.ChatID)
	if err != nil {
		// transient: do not cache, skip this fire
		s.log.Warn("chat lookup failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return kit.ChatTarget{}, false
	}
	s.mu.Lock()
	s.chats[to.ChatID] = chatState{ok: ok, exp: now.Add(s.ttl)}
	s.mu.Unlock()
	if !ok {
		s.log.Info("chat not reachable", logx.Int64("chat_id", to.ChatID), logx.String("guild", guildID))
	}
	return to, ok
}

// Resolve reports whether the guild/channel pair can currently receive messages.
func (s *Sender) Resolve(ctx context.Context, guildID, channelID string) bool {
	_, ok := s.Target(ctx, guildID, channelID)
	return ok
}

// Send delivers message as plain text. It waits for the shared limiter.
func (s *Sender) Send(ctx context.Context, guildID, channelID, message string) error {
	to, err := ParseChannel(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	if _, err := s.ad.SendText(ctx, to, message, &kit.SendOptions{DisablePreview: true}); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	return nil
}
