package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
provider:
  api_key: AK
  api_secret: AS
  sender_phone: "0299998888"
message:
  default_template: "{name}님 축하합니다"
dispatch:
  send_delay: 500ms
  send_timeout: 10s
history:
  driver: sqlite
  path: ./history.db
roster:
  path: ./roster.json
scheduler:
  enabled: true
  daily_at: "09:00"
  timezone: Asia/Seoul
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "AK" || cfg.Provider.SenderPhone != "0299998888" {
		t.Fatalf("provider = %+v", cfg.Provider)
	}
	if cfg.Dispatch.SendDelay != "500ms" || cfg.History.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get returned a different committed config")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"provider":{"api_key":"x","api_token":"legacy"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok empty", mutate: func(c *Config) {}},
		{name: "bad delay", mutate: func(c *Config) { c.Dispatch.SendDelay = "fast" }, wantErr: "send_delay"},
		{name: "negative rate", mutate: func(c *Config) { c.Dispatch.RatePerSec = -1 }, wantErr: "rate_per_sec"},
		{name: "bad driver", mutate: func(c *Config) { c.History.Driver = "postgres" }, wantErr: "history.driver"},
		{name: "bad sender", mutate: func(c *Config) { c.Provider.SenderPhone = "123" }, wantErr: "sender_phone"},
		{name: "bad daily_at", mutate: func(c *Config) { c.Scheduler.DailyAt = "25:99" }, wantErr: "daily_at"},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg Config
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeChangeRedactsSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Provider.APIKey = "NEWKEY"
	newCfg.Provider.APISecret = "NEWSECRET"

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	if len(changed) != 1 || changed[0] != "provider" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs for provider change")
	}
	// Attrs are opaque closures; the redaction contract is enforced by
	// construction (only *_set booleans exist for credentials), so just
	// sanity-check the section detection here.
	if c2, _ := SummarizeChange(newCfg, newCfg); len(c2) != 0 {
		t.Fatalf("no-op change reported sections: %v", c2)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	next := &Config{}
	next.Logging.Level = "debug"
	m.Commit(next)
	m.publish(next)

	select {
	case got := <-ch:
		if got.Logging.Level != "debug" {
			t.Fatalf("got = %+v", got)
		}
	default:
		t.Fatal("no config delivered to subscriber")
	}
}
