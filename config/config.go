package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"pairs-execd/internal/riskgate"
)

// Broker modes.
const (
	BrokerPaper  = "paper"
	BrokerBridge = "bridge"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SignalChannels string
	MetricsAddr    string
	SQLitePath     string

	// Broker routing
	BrokerMode       string // "paper" or "bridge"
	BridgeURL        string
	BridgeAPIKey     string
	BridgeClientCode string
	BridgeTOTPSecret string
	SlippageBps      int64 // paper mode only

	// Quote feed
	FeedURL string

	// Alerting
	AlertWebhookURL string

	// Portfolio
	HistoryMax int

	// Risk limits
	MaxPositionSize  int64
	MaxDailyLoss     float64
	MaxTotalExposure float64
	MinConfidence    float64
	MaxZScore        float64
	MaxDrawdownPct   float64
}

// Load reads configuration from environment variables with sensible defaults.
// Bridge credentials are required only when BROKER_MODE=bridge.
func Load() *Config {
	cfg := &Config{
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SignalChannels: getEnv("SIGNAL_CHANNELS", "signals"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		SQLitePath:     getEnv("SQLITE_PATH", "data/fills.db"),

		BrokerMode:  getEnv("BROKER_MODE", BrokerPaper),
		SlippageBps: int64(getEnvInt("SLIPPAGE_BPS", 5)),

		FeedURL: getEnv("FEED_URL", "ws://localhost:9001/quotes"),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),

		HistoryMax: getEnvInt("HISTORY_MAX", 1000),

		MaxPositionSize:  int64(getEnvInt("MAX_POSITION_SIZE", 10000)),
		MaxDailyLoss:     getEnvFloat("MAX_DAILY_LOSS", 5000),
		MaxTotalExposure: getEnvFloat("MAX_TOTAL_EXPOSURE", 100000),
		MinConfidence:    getEnvFloat("MIN_CONFIDENCE", 0.7),
		MaxZScore:        getEnvFloat("MAX_Z_SCORE", 3.0),
		MaxDrawdownPct:   getEnvFloat("MAX_DRAWDOWN_PCT", 10.0),
	}

	if cfg.BrokerMode != BrokerPaper && cfg.BrokerMode != BrokerBridge {
		log.Fatalf("[config] invalid BROKER_MODE %q (want %q or %q)",
			cfg.BrokerMode, BrokerPaper, BrokerBridge)
	}
	if cfg.BrokerMode == BrokerBridge {
		cfg.BridgeURL = mustEnv("BRIDGE_URL")
		cfg.BridgeAPIKey = mustEnv("BRIDGE_API_KEY")
		cfg.BridgeClientCode = mustEnv("BRIDGE_CLIENT_CODE")
		cfg.BridgeTOTPSecret = mustEnv("BRIDGE_TOTP_SECRET")
	}

	return cfg
}

// RiskLimits projects the configured limits into the gate's form.
func (c *Config) RiskLimits() riskgate.Limits {
	return riskgate.Limits{
		MaxPositionSize:  c.MaxPositionSize,
		MaxDailyLoss:     c.MaxDailyLoss,
		MaxTotalExposure: c.MaxTotalExposure,
		MinConfidence:    c.MinConfidence,
		MaxZScore:        c.MaxZScore,
		MaxDrawdownPct:   c.MaxDrawdownPct,
	}
}

// ParseChannels splits the SignalChannels string into channel names.
func (c *Config) ParseChannels() []string {
	parts := strings.Split(c.SignalChannels, ",")
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		channels = append(channels, p)
	}
	return channels
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
