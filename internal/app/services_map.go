package app

import (
	"strings"
	"time"

	"taskplan/internal/config"
	"taskplan/internal/notify"
	"taskplan/internal/trigger"
	logx "taskplan/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapTriggerConfig resolves the daemon schedule. The daemon timezone falls
// back to the planner timezone so both agree on what "today" is.
func mapTriggerConfig(cfg *config.Config) (trigger.Config, error) {
	timeout, err := config.ParseDurationField("daemon.run_timeout", cfg.Daemon.RunTimeout)
	if err != nil {
		return trigger.Config{}, err
	}
	tz := strings.TrimSpace(cfg.Daemon.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(cfg.Planner.Timezone)
	}
	return trigger.Config{
		Schedule: cfg.Daemon.Schedule,
		Timezone: tz,
		Timeout:  timeout,
	}, nil
}

type notifierSettings struct {
	cfg         notify.Config
	token       string
	pollTimeout time.Duration
}

func mapNotifierConfig(cfg *config.Config) (notifierSettings, error) {
	n := cfg.Notifier
	if n == nil {
		return notifierSettings{}, nil
	}
	poll, err := config.ParseDurationOrDefault("notifier.poll_timeout", n.PollTimeout, 10*time.Second)
	if err != nil {
		return notifierSettings{}, err
	}
	return notifierSettings{
		cfg: notify.Config{
			Enabled:    n.Enabled,
			ChatID:     n.ChatID,
			ThreadID:   n.ThreadID,
			RatePerSec: n.RatePerSec,
			MaxLines:   n.MaxLines,
		},
		token:       strings.TrimSpace(n.Token),
		pollTimeout: poll,
	}, nil
}
