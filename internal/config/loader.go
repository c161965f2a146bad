package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKET_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate().
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Denom, "MARKET_DENOM")
	setDecimal(&cfg.Market.MinPrice, "MARKET_MIN_PRICE")
	setDuration(&cfg.Market.BidExpiryMin, "MARKET_BID_EXPIRY_MIN")
	setDuration(&cfg.Market.BidExpiryMax, "MARKET_BID_EXPIRY_MAX")
	setUint64(&cfg.Market.MaxFindersFeeBps, "MARKET_MAX_FINDERS_FEE_BPS")
	setDecimal(&cfg.Market.TradingFeePercent, "MARKET_TRADING_FEE_PERCENT")
	setStr(&cfg.Market.FeeBurnAddress, "MARKET_FEE_BURN_ADDRESS")
	setStr(&cfg.Market.MarketplaceAddress, "MARKET_MARKETPLACE_ADDRESS")

	// ── Store ──
	setStr(&cfg.Store.Driver, "MARKET_STORE_DRIVER")
	setStr(&cfg.Store.PebbleDir, "MARKET_STORE_PEBBLE_DIR")
	setStr(&cfg.Store.PostgresDSN, "MARKET_STORE_POSTGRES_DSN")
	setStr(&cfg.Store.PostgresDSN, "DATABASE_URL") // compatibility alias
	setBool(&cfg.Store.RunMigrations, "MARKET_STORE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Addr, "REDIS_URL") // compatibility alias
	setStr(&cfg.Redis.Password, "MARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKET_REDIS_DB")
	setDuration(&cfg.Redis.CollectionCacheTTL, "MARKET_REDIS_COLLECTION_CACHE_TTL")

	// ── Registry ──
	setStr(&cfg.Registry.BaseURL, "MARKET_REGISTRY_BASE_URL")
	setDuration(&cfg.Registry.Timeout, "MARKET_REGISTRY_TIMEOUT")

	// ── Hooks ──
	setStringSlice(&cfg.Hooks.Ask, "MARKET_HOOKS_ASK")
	setStringSlice(&cfg.Hooks.Bid, "MARKET_HOOKS_BID")
	setStringSlice(&cfg.Hooks.Sale, "MARKET_HOOKS_SALE")
	setDuration(&cfg.Hooks.DeliveryTimeout, "MARKET_HOOKS_DELIVERY_TIMEOUT")

	// ── Kafka ──
	setStringSlice(&cfg.Kafka.Brokers, "MARKET_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "MARKET_KAFKA_TOPIC")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKET_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT")
	setDuration(&cfg.Server.ReadTimeout, "MARKET_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "MARKET_SERVER_WRITE_TIMEOUT")

	setStr(&cfg.LogLevel, "MARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
