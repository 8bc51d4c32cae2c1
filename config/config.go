package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location
	ServerPort   string

	APIUsername string
	APIPassword string

	ReminderPoll   string
	ImportMaxBytes int64

	LogLevel  string
	LogFormat string

	TelegramToken string
	NotifyChatID  int64

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

// Load reads the environment. Values from a .env file in the working
// directory fill in whatever the environment leaves unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	tz, err := time.LoadLocation(getenv("TIMEZONE", "Europe/Moscow"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	var chatID int64
	if v := os.Getenv("NOTIFY_CHAT_ID"); v != "" {
		chatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("NOTIFY_CHAT_ID must be a number")
		}
	}

	var maxBytes int64
	if v := os.Getenv("IMPORT_MAX_BYTES"); v != "" {
		maxBytes, err = strconv.ParseInt(v, 10, 64)
		if err != nil || maxBytes <= 0 {
			return nil, fmt.Errorf("IMPORT_MAX_BYTES must be a positive number")
		}
	}

	cfg := &Config{
		DatabasePath:   getenv("DATABASE_PATH", "./data/planner.db"),
		Timezone:       tz,
		ServerPort:     getenv("SERVER_PORT", "8080"),
		APIUsername:    os.Getenv("API_USERNAME"),
		APIPassword:    os.Getenv("API_PASSWORD"),
		ReminderPoll:   getenv("REMINDER_POLL", "@every 30s"),
		ImportMaxBytes: maxBytes,
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "json"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		NotifyChatID:   chatID,
		CalDAVURL:      os.Getenv("CALDAV_URL"),
		CalDAVUsername: os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword: os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendar: os.Getenv("CALDAV_CALENDAR"),
	}

	if cfg.TelegramToken != "" && cfg.NotifyChatID == 0 {
		return nil, fmt.Errorf("NOTIFY_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return cfg, nil
}

// TelegramEnabled reports whether reminders are pushed to a chat.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.NotifyChatID != 0
}

// APIEnabled reports whether the /api routes are served.
func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
