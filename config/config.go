package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabasePath      string
	Timezone          *time.Location
	ServerAddr        string
	ExpandMaxCount    int
	WarmupCron        string
	WarmupHorizonDays int
	FamilyIDs         []string
	LogLevel          string

	TelegramToken      string
	TelegramFamilyID   string
	TelegramAllowedIDs []int64

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

// rawEnv holds the environment as read, before the timezone is resolved.
type rawEnv struct {
	DatabasePath      string   `env:"DATABASE_PATH" envDefault:"./data/familycal.db"`
	Timezone          string   `env:"TIMEZONE" envDefault:"Europe/Moscow"`
	ServerAddr        string   `env:"SERVER_ADDR" envDefault:":8080"`
	ExpandMaxCount    int      `env:"EXPAND_MAX_COUNT" envDefault:"1000"`
	WarmupCron        string   `env:"WARMUP_CRON" envDefault:"0 3 * * *"`
	WarmupHorizonDays int      `env:"WARMUP_HORIZON_DAYS" envDefault:"14"`
	FamilyIDs         []string `env:"FAMILY_IDS" envSeparator:","`
	LogLevel          string   `env:"LOG_LEVEL" envDefault:"info"`

	TelegramToken      string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramFamilyID   string  `env:"TELEGRAM_FAMILY_ID"`
	TelegramAllowedIDs []int64 `env:"TELEGRAM_ALLOWED_IDS" envSeparator:","`

	CalDAVURL      string `env:"CALDAV_URL"`
	CalDAVUsername string `env:"CALDAV_USERNAME"`
	CalDAVPassword string `env:"CALDAV_PASSWORD"`
	CalDAVCalendar string `env:"CALDAV_CALENDAR"`
}

func Load() (*Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	tz, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if raw.ExpandMaxCount <= 0 {
		return nil, fmt.Errorf("EXPAND_MAX_COUNT must be positive")
	}
	if raw.WarmupHorizonDays < 0 {
		return nil, fmt.Errorf("WARMUP_HORIZON_DAYS must not be negative")
	}
	if raw.TelegramToken != "" && raw.TelegramFamilyID == "" {
		return nil, fmt.Errorf("TELEGRAM_FAMILY_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return &Config{
		DatabasePath:       raw.DatabasePath,
		Timezone:           tz,
		ServerAddr:         raw.ServerAddr,
		ExpandMaxCount:     raw.ExpandMaxCount,
		WarmupCron:         raw.WarmupCron,
		WarmupHorizonDays:  raw.WarmupHorizonDays,
		FamilyIDs:          raw.FamilyIDs,
		LogLevel:           raw.LogLevel,
		TelegramToken:      raw.TelegramToken,
		TelegramFamilyID:   raw.TelegramFamilyID,
		TelegramAllowedIDs: raw.TelegramAllowedIDs,
		CalDAVURL:          raw.CalDAVURL,
		CalDAVUsername:     raw.CalDAVUsername,
		CalDAVPassword:     raw.CalDAVPassword,
		CalDAVCalendar:     raw.CalDAVCalendar,
	}, nil
}

func (c *Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVUsername != "" && c.CalDAVPassword != "" && c.CalDAVCalendar != ""
}

// IsAllowedUser reports whether a Telegram user may use the bot. An empty
// allow list admits everyone in the chat.
func (c *Config) IsAllowedUser(telegramID int64) bool {
	if len(c.TelegramAllowedIDs) == 0 {
		return true
	}
	for _, id := range c.TelegramAllowedIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
