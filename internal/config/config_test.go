package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskplan/internal/plan"
)

const sampleYAML = `
logging:
  level: debug
  console: true
capacity:
  weekday_hours:
    Friday: 4
    sat: 2
  buffer_fraction: 0.75
planner:
  min_buffer_days: 0
  max_updates_per_run: 10
  criticality_weights:
    critical: 5
storage:
  driver: file
  path: ./backlog.yaml
daemon:
  schedule: "0 7 * * 1-5"
  timezone: UTC
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "taskplan.yaml", sampleYAML)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Storage.Driver != "file" {
		t.Fatalf("cfg = %+v", cfg)
	}

	pc, err := cfg.ToPlanConfig()
	if err != nil {
		t.Fatalf("ToPlanConfig error: %v", err)
	}
	if pc.WeekdayHours[time.Friday] != 4 || pc.WeekdayHours[time.Saturday] != 2 || pc.WeekdayHours[time.Monday] != 6 {
		t.Fatalf("WeekdayHours = %v", pc.WeekdayHours)
	}
	if pc.BufferFraction != 0.75 {
		t.Fatalf("BufferFraction = %v, want 0.75", pc.BufferFraction)
	}
	if pc.MinBufferDays != 0 {
		t.Fatalf("MinBufferDays = %d, want explicit 0", pc.MinBufferDays)
	}
	if pc.MaxUpdatesPerRun != 10 || pc.MaxGroupSize != plan.DefaultConfig().MaxGroupSize {
		t.Fatalf("planner overrides = %+v", pc)
	}
	if pc.CriticalityWeights != [3]float64{5, 2, 1} {
		t.Fatalf("CriticalityWeights = %v", pc.CriticalityWeights)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("Location = %v, %v; want UTC", loc, err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := decode("c.json", []byte(`{"storage":{"driver":"file","path":"x"},"bogus":1}`))
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("Decode error = %v, want unknown field", err)
	}
	if _, err := decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
	if _, err := decode("c.toml", []byte(`x = 1`)); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Storage: StorageConfig{Driver: "sqlite", Path: "x.db"}}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing driver", mutate: func(c *Config) { c.Storage.Driver = "" }, want: "storage.driver"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, want: "unknown driver"},
		{name: "bad weekday", mutate: func(c *Config) { c.Capacity.WeekdayHours = map[string]float64{"funday": 3} }, want: "funday"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "bad buffer", mutate: func(c *Config) { c.Capacity.BufferFraction = 2 }, want: "buffer_fraction"},
		{name: "bad tier", mutate: func(c *Config) { c.Planner.CriticalityWeights = map[string]float64{"urgent": 2} }, want: "urgent"},
		{name: "bad timezone", mutate: func(c *Config) { c.Planner.Timezone = "Mars/Olympus" }, want: "timezone"},
		{name: "bad timeout", mutate: func(c *Config) { c.Daemon.RunTimeout = "soon" }, want: "daemon.run_timeout"},
		{name: "notifier without token", mutate: func(c *Config) { c.Notifier = &NotifierConfig{Enabled: true, ChatID: 1} }, want: "notifier.token"},
		{name: "disabled notifier", mutate: func(c *Config) { c.Notifier = &NotifierConfig{} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "taskplan.json", `{"storage":{"driver":"file","path":"b.yaml"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if m.reload(context.Background()) {
		t.Fatal("unchanged file should not publish")
	}

	writeFile(t, dir, "taskplan.json", `{"storage":{"driver":"file","path":"b.yaml"},"logging":{"level":"warn"}}`)
	if !m.reload(context.Background()) {
		t.Fatal("changed file should publish")
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
	default:
		t.Fatal("no config published")
	}

	writeFile(t, dir, "taskplan.json", `{"storage":{"driver":"nope","path":"b.yaml"}}`)
	if m.reload(context.Background()) {
		t.Fatal("invalid config should be rejected")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatalf("current config replaced by invalid one: %+v", m.Get())
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	m.publish(&Config{Logging: LoggingConfig{Level: "debug"}})
	m.publish(&Config{Logging: LoggingConfig{Level: "error"}})
	if got := (<-ch).Logging.Level; got != "error" {
		t.Fatalf("received level %q, want error", got)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("unexpected second config %+v", cfg)
	default:
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "taskplan.json", `{"storage":{"driver":"file","path":"b.yaml"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch() = %v, want nil", err)
		}
	}()

	// The watcher may not be registered yet; keep saving until it sees one.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(5 * time.Second)
	for i := 0; ; i++ {
		select {
		case cfg := <-ch:
			if cfg.Storage.Path != "c.yaml" {
				t.Fatalf("reloaded path = %q, want c.yaml", cfg.Storage.Path)
			}
			return
		case <-tick.C:
			if i%5 == 0 {
				writeFile(t, dir, "taskplan.json", `{"storage":{"driver":"file","path":"c.yaml"}}`)
			}
		case <-timeout:
			t.Fatal("no reload after writing the config")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Notifier: &NotifierConfig{Token: "a"}}
	newCfg := &Config{
		Capacity: CapacityConfig{BufferFraction: 0.7},
		Notifier: &NotifierConfig{Token: "b"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "capacity,notifier" {
		t.Fatalf("changed = %v, want [capacity notifier]", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if changed, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("changed = %v, want none", changed)
	}
}
