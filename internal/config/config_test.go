package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseYAMLWithEnv(t *testing.T) {
	t.Setenv("REMINDBOT_TEST_DSN", "postgres://u:p@db/remind")
	p := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  default_timezone: Europe/Rome
storage:
  driver: postgres
  dsn: ${REMINDBOT_TEST_DSN}
  password: "pa$word"
dashboard:
  enabled: true
  cors_origins: ["http://localhost:5173"]
reminders:
  confirm_ttl: 90s
`)
	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Storage.DSN != "postgres://u:p@db/remind" {
		t.Fatalf("DSN = %q, env not expanded", cfg.Storage.DSN)
	}
	if cfg.Storage.Password != "pa$word" {
		t.Fatalf("Password = %q, bare $ must survive", cfg.Storage.Password)
	}
	if cfg.Scheduler.DefaultTimezone != "Europe/Rome" || !cfg.Dashboard.Enabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Telegram.OwnerUserIDs, []int64{42}) {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatal("expected unknown field error")
	}
	p = writeFile(t, "config.json", `{"telegram":{"token":"x"}}{}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Scheduler: SchedulerConfig{DefaultTimezone: "Mars/Base"},
		Storage:   StorageConfig{Driver: "cassandra", BusyTimeout: "soon"},
		Reminders: RemindersConfig{ConfirmTTL: "-1s", SendRatePerSec: -2},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"telegram.token", "scheduler.default_timezone", "storage.driver", "storage.busy_timeout", "reminders.confirm_ttl", "send_rate_per_sec"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Storage: StorageConfig{Driver: "file", Path: "a"}, Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{Storage: StorageConfig{Driver: "sqlite", Path: "b"}, Logging: LoggingConfig{Level: "debug"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !reflect.DeepEqual(changed, []string{"logging", "storage"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"storage"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "REMINDBOT_TEST_TOKEN=from-dotenv\n")
	os.Unsetenv("REMINDBOT_TEST_TOKEN")
	t.Cleanup(func() { os.Unsetenv("REMINDBOT_TEST_TOKEN") })
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("REMINDBOT_TEST_TOKEN"); got != "from-dotenv" {
		t.Fatalf("env = %q", got)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5)
	if err != nil || d != 5 {
		t.Fatalf("default = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-3s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestReloadIsTransactional(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"a"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)
	ctx := context.Background()

	// same content: nothing published
	if m.reload(ctx) {
		t.Fatal("unchanged file was published")
	}

	// broken file: previous config stays
	if err := os.WriteFile(p, []byte(`{"telegram":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(ctx) || m.Get().Telegram.Token != "a" {
		t.Fatal("parse failure replaced the config")
	}

	// rejected by the validator: previous config stays
	m.SetValidator(func(context.Context, *Config) error { return errors.New("no") })
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":"b"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(ctx) || m.Get().Telegram.Token != "a" {
		t.Fatal("rejected config was committed")
	}

	m.SetValidator(nil)
	if !m.reload(ctx) {
		t.Fatal("valid change not published")
	}
	if got := <-sub; got.Telegram.Token != "b" || m.Get().Telegram.Token != "b" {
		t.Fatalf("published token = %q", got.Telegram.Token)
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	sub := m.Subscribe(1)

	m.publish(&Config{Telegram: TelegramConfig{Token: "old"}})
	m.publish(&Config{Telegram: TelegramConfig{Token: "new"}})
	if got := <-sub; got.Telegram.Token != "new" {
		t.Fatalf("got %q, want newest", got.Telegram.Token)
	}

	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel not closed after Unsubscribe")
	}
	m.publish(&Config{}) // must not panic
}
