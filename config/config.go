package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is built once at startup and handed to each component; nothing in the
// engines reads the environment directly.
type Config struct {
	DatabaseURL string

	CMFAPIKey  string
	ScrapeURLs []string

	TelegramBotToken string
	TelegramChatID   string

	MaxRetries int
	RetryDelay time.Duration
	NavTimeout time.Duration

	CSVOutputPath string
	ChromeBin     string

	// Staleness thresholds checked by the health monitor, by component name.
	MonitorThresholds map[string]time.Duration
}

// Load reads the .env file (if present) and returns a populated Config.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CMFAPIKey:  getEnv("CMF_API_KEY", ""),
		ScrapeURLs: SplitURLs(getEnv("SCRAPE_URLS", "")),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		MaxRetries: getEnvInt("MAX_RETRIES", 3),
		RetryDelay: time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 5)) * time.Second,
		NavTimeout: time.Duration(getEnvInt("NAV_TIMEOUT_SECONDS", 20)) * time.Second,

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		MonitorThresholds: map[string]time.Duration{
			"scraper":  time.Duration(getEnvInt("MONITOR_SCRAPER_MAX_AGE_HOURS", 26)) * time.Hour,
			"analyzer": time.Duration(getEnvInt("MONITOR_ANALYZER_MAX_AGE_HOURS", 26)) * time.Hour,
		},
	}
}

// Validate checks the settings every component needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

// ValidateScraper checks the additional settings the scrape run needs.
func (c *Config) ValidateScraper() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CMFAPIKey == "" {
		return fmt.Errorf("config: CMF_API_KEY is required")
	}
	if len(c.ScrapeURLs) == 0 {
		return fmt.Errorf("config: SCRAPE_URLS is required")
	}
	return nil
}

// SplitURLs parses the SCRAPE_URLS value. Both ';' and ',' have been used as
// the delimiter at different points, so accept either.
func SplitURLs(raw string) []string {
	raw = strings.ReplaceAll(raw, ";", ",")
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		if u := strings.TrimSpace(part); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
