package config

import (
	"fmt"
	"strings"

	"botkit/pkg/logx"
	"botkit/pkg/scheduler"
	"botkit/pkg/storage"
)

// Config is the on-disk configuration for a bot embedding the
// framework. YAML and JSON are both accepted; unknown fields are
// rejected.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Log       LogConfig       `json:"log"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token         string `json:"token"`
	PollTimeout   string `json:"poll_timeout"`   // duration, default 10s
	UpdatesBuffer int    `json:"updates_buffer"` // inbound event buffer, default 128
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console *bool         `json:"console"`
	File    FileLogConfig `json:"file"`
	Chat    ChatLogConfig `json:"chat"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type ChatLogConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SchedulerConfig struct {
	Workers        int    `json:"workers"`
	QueueSize      int    `json:"queue_size"`
	DefaultTimeout string `json:"default_timeout"` // duration
	HistorySize    int    `json:"history_size"`
	Timezone       string `json:"timezone"`
}

type StorageConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"` // duration
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}
	return nil
}

// Logx maps the serialized form onto the logging service config.
func (c LogConfig) Logx() logx.Config {
	console := true
	if c.Console != nil {
		console = *c.Console
	}
	return logx.Config{
		Level:   c.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Chat.Enabled,
			ChatID:     c.Chat.ChatID,
			ThreadID:   c.Chat.ThreadID,
			MinLevel:   c.Chat.MinLevel,
			RatePerSec: c.Chat.RatePerSec,
		},
	}
}

// Scheduler maps the serialized form onto the scheduler config.
func (c SchedulerConfig) Scheduler() (scheduler.Config, error) {
	d, err := ParseDurationField("scheduler.default_timeout", c.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		DefaultTimeout: d,
		HistorySize:    c.HistorySize,
		Timezone:       c.Timezone,
	}, nil
}

// Storage maps the serialized form onto the storage config.
func (c StorageConfig) Storage() (storage.Config, error) {
	d, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Enabled: c.Enabled, Path: c.Path, BusyTimeout: d}, nil
}
