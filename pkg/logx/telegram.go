package logx

import (
	"bytes"
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

const (
	telegramQueue   = 256
	telegramMaxText = 3500
)

// telegramSink posts log lines to an operator chat. Writes never block:
// lines are dropped when the limiter or the queue is full.
type telegramSink struct {
	sender kit.Adapter
	queue  chan telegramLine

	mu       sync.Mutex
	to       kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

type telegramLine struct {
	to   kit.ChatTarget
	text string
}

func newTelegramSink(sender kit.Adapter) *telegramSink {
	return &telegramSink{sender: sender, queue: make(chan telegramLine, telegramQueue), minLevel: zerolog.WarnLevel}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Enabled && t.sender != nil && t.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel, t.done = cancel, make(chan struct{})
		go t.run(ctx, t.done)
	}
}

func (t *telegramSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-t.queue:
			_, _ = t.sender.SendText(ctx, ln.to, ln.text, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *telegramSink) Write(p []byte) (int, error) { return t.WriteLevel(zerolog.NoLevel, p) }

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, minLevel, lim, running := t.to, t.minLevel, t.limiter, t.cancel != nil
	t.mu.Unlock()

	if !running || to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	select {
	case t.queue <- telegramLine{to: to, text: formatLine(p)}:
	default:
	}
	return len(p), nil
}

// formatLine renders one JSON log line as plain console text without the
// timestamp, clipped to fit a Telegram message.
func formatLine(p []byte) string {
	var buf bytes.Buffer
	cw := zerolog.ConsoleWriter{
		Out:          &buf,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	if _, err := cw.Write(p); err != nil {
		buf.Reset()
		buf.Write(bytes.TrimSpace(p))
	}
	return clip(string(bytes.TrimSpace(buf.Bytes())), telegramMaxText)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
