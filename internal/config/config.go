package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the bot reads from the environment.
// BOT_TOKEN, ADMIN_ID and MONGO_URI are required; the rest have
// deployment-friendly defaults.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	AdminID  int64  `envconfig:"ADMIN_ID" required:"true"`
	MongoURI string `envconfig:"MONGO_URI" required:"true"`

	// LOG_CHANNEL_ID is the admin notification channel. REPORT_CHANNEL_ID
	// is accepted as a legacy alias; when both are zero notifications are
	// disabled.
	LogChannelID    int64 `envconfig:"LOG_CHANNEL_ID"`
	ReportChannelID int64 `envconfig:"REPORT_CHANNEL_ID"`

	Port        int    `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	CookiesFile string `envconfig:"COOKIES_FILE"`

	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	CacheDBPath string `envconfig:"CACHE_DB_PATH" default:"data/cache.db"`

	FreeLimit       int           `envconfig:"FREE_LIMIT" default:"10"`
	MaxFileSize     int64         `envconfig:"MAX_FILE_SIZE" default:"51380224"`
	DownloadWorkers int64         `envconfig:"DOWNLOAD_WORKERS" default:"2"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`

	RateLimit  int           `envconfig:"RATE_LIMIT" default:"3"`
	RateWindow time.Duration `envconfig:"RATE_WINDOW" default:"10s"`

	// COBALT_API_URL enables the fast TikTok route; empty disables it.
	CobaltAPIURL string `envconfig:"COBALT_API_URL" default:"https://api.cobalt.tools/"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// NotifyChannelID returns the configured notification channel, preferring
// LOG_CHANNEL_ID over the legacy alias.
func (c *Config) NotifyChannelID() int64 {
	if c.LogChannelID != 0 {
		return c.LogChannelID
	}
	return c.ReportChannelID
}
