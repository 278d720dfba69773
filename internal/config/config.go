package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken   string
	DatabaseURL     string
	PortalExportURL string
	DownloadDir     string
	RefreshInterval time.Duration
	NotifyInterval  time.Duration
	PurgeInterval   time.Duration
	Headless        bool
}

// Load reads configuration from environment variables with sane defaults.
// A local .env file is merged in first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		TelegramToken:   strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PortalExportURL: strings.TrimSpace(os.Getenv("PORTAL_EXPORT_URL")),
		DownloadDir:     strings.TrimSpace(os.Getenv("DOWNLOAD_DIR")),
		RefreshInterval: parseHours(os.Getenv("REFRESH_INTERVAL_HOURS")),
		NotifyInterval:  parseMinutes(os.Getenv("NOTIFY_INTERVAL_MINUTES")),
		PurgeInterval:   parseHours(os.Getenv("PURGE_INTERVAL_HOURS")),
		Headless:        parseBool(os.Getenv("HEADLESS"), true),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "deadline_bot.db"
	}
	if cfg.PortalExportURL == "" {
		cfg.PortalExportURL = "https://courses.aut.ac.ir/calendar/export.php"
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join(os.TempDir(), "deadline-bot")
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.NotifyInterval == 0 {
		cfg.NotifyInterval = 5 * time.Minute
	}
	if cfg.PurgeInterval == 0 {
		cfg.PurgeInterval = time.Hour
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Hour
}

func parseMinutes(raw string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}

func parseBool(raw string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}
