package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level process configuration, assembled once at
// startup and threaded down into constructors.
type Config struct {
	Env  string
	Port string

	Binance ExchangeConfig
	OKX     ExchangeConfig

	SlotCooldown       time.Duration
	MonitorInterval    time.Duration
	HistoricalDelay    time.Duration
	HistoricalInterval time.Duration
	HistoricalLimit    int
	ManualFetchCap     int
	EventLogDSN        string
}

// ExchangeConfig holds the per-venue WS/REST endpoints and shard layout.
type ExchangeConfig struct {
	WSURL           string
	RESTURL         string
	Shards          int
	HeartbeatSymbol string
	Symbols         []string
}

// Load reads Config from the environment, falling back to local
// defaults for anything unset.
func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "local"),
		Port: getEnv("PORT", "10000"),

		Binance: ExchangeConfig{
			WSURL:           getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),
			RESTURL:         getEnv("BINANCE_REST_URL", "https://fapi.binance.com"),
			Shards:          getEnvInt("BINANCE_SHARDS", 2),
			HeartbeatSymbol: "BTCUSDT",
			Symbols:         getEnvList("BINANCE_SYMBOLS", nil),
		},
		OKX: ExchangeConfig{
			WSURL:           getEnv("OKX_WS_URL", "wss://ws.okx.com:8443/ws/v5/public"),
			RESTURL:         getEnv("OKX_REST_URL", "https://www.okx.com"),
			Shards:          getEnvInt("OKX_SHARDS", 1),
			HeartbeatSymbol: "BTC-USDT-SWAP",
			Symbols:         getEnvList("OKX_SYMBOLS", nil),
		},

		SlotCooldown:       getEnvDuration("SLOT_COOLDOWN_SECONDS", 30*time.Second),
		MonitorInterval:    getEnvDuration("MONITOR_INTERVAL_SECONDS", 3*time.Second),
		HistoricalDelay:    getEnvDuration("HISTORICAL_FETCH_DELAY_SECONDS", 3*time.Minute),
		HistoricalInterval: getEnvDuration("HISTORICAL_FETCH_INTERVAL_SECONDS", 1*time.Hour),
		HistoricalLimit:    getEnvInt("HISTORICAL_RATE_LIMIT", 10),
		ManualFetchCap:     getEnvInt("MANUAL_FETCH_CAP", 3),
		EventLogDSN:        getEnv("EVENT_LOG_DSN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
