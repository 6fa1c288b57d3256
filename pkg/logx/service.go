package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	kit "remindbot/internal/transport"
)

const defaultLogFile = "./remindbot.log"

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig routes log lines at or above MinLevel to a chat. ChatID 0
// keeps the sink idle.
type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the log sinks. Loggers it hands out keep working across
// Apply calls.
type Service struct {
	src *source
	tg  *telegramSink

	mu   sync.Mutex
	file *os.File
}

// New builds the service, applies cfg and returns the root logger. sender
// delivers the Telegram copies; nil disables that sink.
func New(cfg Config, sender kit.Adapter) (*Service, Logger) {
	s := &Service{
		src: newSource(rootLogger(consoleWriter(), cfg.Level)),
		tg:  newTelegramSink(sender),
	}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{src: s.src} }

// Apply rebuilds the sinks from cfg. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter())
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}

	s.tg.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		sinks = append(sinks, s.tg)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter())
	}

	zl := rootLogger(zerolog.MultiLevelWriter(sinks...), cfg.Level)
	s.src.zl.Store(&zl)
}

// Close stops the Telegram sink and closes the log file.
func (s *Service) Close() error {
	s.tg.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{
		Out:          os.Stdout,
		TimeFormat:   consoleTimeFormat,
		FormatCaller: plainCaller,
	}
}

// plainCaller keeps the short file:line as written, without colors.
func plainCaller(i any) string {
	s, _ := i.(string)
	return s
}
