package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	MetalsAPIKey    string
	WebhookURL      string
	APIKey          string
	CORSAllowOrigin string
	BotName         string

	// HTTP API
	APIPort int

	// Remote price API
	MetalsBaseURL string

	// Storage: Postgres when a DSN (or DB_USER) is configured, local SQLite
	// file otherwise.
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	SQLitePath  string

	// Optional seed source (CSV path or URL) tried once when the cache is empty
	SeedSource string

	// Daily refresh + ratio watch
	RefreshEnabled      bool
	RefreshCron         string
	RefreshLookbackDays int
	WatchUpThreshold    float64
	WatchDownThreshold  float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		MetalsAPIKey:    envStr("METALS_API_KEY", ""),
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		BotName:         envStr("BOT_NAME", "GSRWatch"),

		// HTTP API
		APIPort: envInt("API_PORT", 3001),

		// Remote price API
		MetalsBaseURL: envStr("METALS_API_BASE_URL", "https://metals-api.com/api"),

		// Storage
		DatabaseURL: envStr("DATABASE_URL", ""),
		DBHost:      envStr("DB_HOST", "localhost"),
		DBPort:      envInt("DB_PORT", 5432),
		DBName:      envStr("DB_NAME", "gsr_prices"),
		DBUser:      envStr("DB_USER", ""),
		DBPassword:  envStr("DB_PASSWORD", ""),
		SQLitePath:  envStr("SQLITE_PATH", "data/gsr.db"),

		// Data sources
		SeedSource: envStr("SEED_SOURCE", ""),

		// Daily refresh
		RefreshEnabled:      envBool("REFRESH_ENABLED", false),
		RefreshCron:         envStr("REFRESH_CRON", "15 0 * * *"),
		RefreshLookbackDays: envInt("REFRESH_LOOKBACK_DAYS", 30),
		WatchUpThreshold:    envFloat("WATCH_UP_THRESHOLD", 0),
		WatchDownThreshold:  envFloat("WATCH_DOWN_THRESHOLD", 0),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT %d is out of range", c.APIPort))
	}
	if c.RefreshEnabled && c.RefreshCron == "" {
		errs = append(errs, "REFRESH_CRON is required when REFRESH_ENABLED=true")
	}
	if c.RefreshLookbackDays < 1 {
		errs = append(errs, "REFRESH_LOOKBACK_DAYS must be at least 1")
	}
	if c.MetalsAPIKey == "" {
		fmt.Println("[WARN] METALS_API_KEY not set — missing dates stay missing (cache and uploads only)")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}
	if c.RefreshEnabled && c.WatchUpThreshold == 0 && c.WatchDownThreshold == 0 {
		fmt.Println("[WARN] no WATCH_*_THRESHOLD set — daily refresh will not send crossing alerts")
	}
	if c.WatchUpThreshold > 0 && c.WatchDownThreshold > 0 && c.WatchUpThreshold <= c.WatchDownThreshold {
		fmt.Println("[WARN] WATCH_UP_THRESHOLD <= WATCH_DOWN_THRESHOLD — alerts may fire on both sides of the same move")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Gold/Silver Ratio Backend Configuration ===")
	fmt.Println("Storage:")
	if c.UsePostgres() {
		fmt.Printf("  Backend: postgres (%s:%d/%s)\n", c.DBHost, c.DBPort, c.DBName)
	} else {
		fmt.Printf("  Backend: sqlite (%s)\n", c.SQLitePath)
	}
	fmt.Println("--------------------------------------")
	fmt.Println("Price API:")
	fmt.Printf("  Base URL: %s\n", c.MetalsBaseURL)
	fmt.Printf("  API key: %s\n", boolLabel(c.MetalsAPIKey != "", "configured", "not set (no gap filling)"))
	fmt.Printf("  Seed source: %s\n", boolLabel(c.SeedSource != "", c.SeedSource, "none"))
	fmt.Println("--------------------------------------")
	fmt.Println("Daily refresh:")
	fmt.Printf("  Enabled: %v\n", c.RefreshEnabled)
	if c.RefreshEnabled {
		fmt.Printf("  Cron: %s (UTC)\n", c.RefreshCron)
		fmt.Printf("  Lookback: %d days\n", c.RefreshLookbackDays)
		fmt.Printf("  Watch thresholds: up=%s down=%s\n",
			thresholdLabel(c.WatchUpThreshold), thresholdLabel(c.WatchDownThreshold))
	}
	fmt.Println("--------------------------------------")
	fmt.Println("HTTP API:")
	fmt.Printf("  Port: %d\n", c.APIPort)
	fmt.Printf("  Auth: %s\n", boolLabel(c.APIKey != "", "bearer token", "disabled"))
	fmt.Printf("  CORS origin: %s\n", c.CORSAllowOrigin)
	fmt.Println("======================================")
}

// UsePostgres reports whether a Postgres backend is configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != "" || c.DBUser != ""
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

func thresholdLabel(v float64) string {
	if v <= 0 {
		return "off"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
