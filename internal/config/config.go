// Package config defines the service configuration and its validation.
// Fields are populated from a TOML file and then optionally overridden by
// MARKET_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Market   Market         `toml:"market"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Registry RegistryConfig `toml:"registry"`
	Hooks    HooksConfig    `toml:"hooks"`
	Kafka    KafkaConfig    `toml:"kafka"`
	LogLevel string         `toml:"log_level"`
}

// Market holds the tunable marketplace parameters. The engine reads them
// and never changes them.
type Market struct {
	// Denom is the only accepted settlement denomination.
	Denom string `toml:"denom"`
	// MinPrice is the smallest bid accepted.
	MinPrice decimal.Decimal `toml:"min_price"`
	// Bids must expire strictly after now+BidExpiryMin and no later than
	// now+BidExpiryMax.
	BidExpiryMin duration `toml:"bid_expiry_min"`
	BidExpiryMax duration `toml:"bid_expiry_max"`
	// MaxFindersFeeBps caps the finder's-fee rate a bid may request.
	MaxFindersFeeBps uint64 `toml:"max_finders_fee_bps"`
	// TradingFeePercent is the network fee taken from every sale, in percent.
	TradingFeePercent decimal.Decimal `toml:"trading_fee_percent"`
	// FeeBurnAddress receives the network fee.
	FeeBurnAddress string `toml:"fee_burn_address"`
	// MarketplaceAddress is the operator sellers must approve.
	MarketplaceAddress string `toml:"marketplace_address"`
}

// MinBidExpiry returns the lower bound of the bid-expiry window.
func (m Market) MinBidExpiry() time.Duration { return m.BidExpiryMin.Duration }

// MaxBidExpiry returns the upper bound of the bid-expiry window.
func (m Market) MaxBidExpiry() time.Duration { return m.BidExpiryMax.Duration }

// StoreConfig selects the Order Store backend.
type StoreConfig struct {
	Driver        string `toml:"driver"` // memory, pebble, postgres
	PebbleDir     string `toml:"pebble_dir"`
	PostgresDSN   string `toml:"postgres_dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis: hooks come from the in-memory registry and collection info is
// not cached.
type RedisConfig struct {
	Addr               string   `toml:"addr"`
	Password           string   `toml:"password"`
	DB                 int      `toml:"db"`
	CollectionCacheTTL duration `toml:"collection_cache_ttl"`
}

// RegistryConfig points at the token-ownership and collection-metadata
// service. An empty BaseURL selects the in-memory registry, which starts
// with the Tokens and Collections listed here.
type RegistryConfig struct {
	BaseURL     string           `toml:"base_url"`
	Timeout     duration         `toml:"timeout"`
	Tokens      []TokenSeed      `toml:"tokens"`
	Collections []CollectionSeed `toml:"collections"`
}

// TokenSeed records a token's owner and approved operators in the
// in-memory registry.
type TokenSeed struct {
	Collection string   `toml:"collection"`
	TokenID    uint32   `toml:"token_id"`
	Owner      string   `toml:"owner"`
	Approved   []string `toml:"approved"`
}

// CollectionSeed records a collection's terms in the in-memory registry.
type CollectionSeed struct {
	Collection       string          `toml:"collection"`
	RoyaltyShare     decimal.Decimal `toml:"royalty_share"`
	RoyaltyRecipient string          `toml:"royalty_recipient"`
	TradingStartsAt  *time.Time      `toml:"trading_starts_at"`
}

// HooksConfig seeds the subscriber lists and bounds delivery.
type HooksConfig struct {
	Ask             []string `toml:"ask"`
	Bid             []string `toml:"bid"`
	Sale            []string `toml:"sale"`
	DeliveryTimeout duration `toml:"delivery_timeout"`
}

// KafkaConfig enables publishing observability events. Empty Brokers
// keeps events in the log only.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// Duration wraps d for use in Config literals.
func Duration(d time.Duration) duration { return duration{d} }

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration usable for local development.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{10 * time.Second},
		},
		Market: Market{
			Denom:              "ustars",
			MinPrice:           decimal.NewFromInt(1),
			BidExpiryMin:       duration{24 * time.Hour},
			BidExpiryMax:       duration{180 * 24 * time.Hour},
			MaxFindersFeeBps:   10,
			TradingFeePercent:  decimal.NewFromInt(2),
			FeeBurnAddress:     "burn",
			MarketplaceAddress: "marketplace",
		},
		Store: StoreConfig{
			Driver:    "memory",
			PebbleDir: "data/orders",
		},
		Redis: RedisConfig{
			CollectionCacheTTL: duration{30 * time.Second},
		},
		Registry: RegistryConfig{
			Timeout: duration{5 * time.Second},
		},
		Hooks: HooksConfig{
			DeliveryTimeout: duration{3 * time.Second},
		},
		Kafka: KafkaConfig{
			Topic: "marketplace-events",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []string

	m := c.Market
	if m.Denom == "" {
		errs = append(errs, "market.denom is required")
	}
	if !m.MinPrice.IsPositive() || !m.MinPrice.IsInteger() {
		errs = append(errs, "market.min_price must be a positive integer")
	}
	if m.BidExpiryMin.Duration < 0 {
		errs = append(errs, "market.bid_expiry_min must not be negative")
	}
	if m.BidExpiryMax.Duration <= m.BidExpiryMin.Duration {
		errs = append(errs, "market.bid_expiry_max must exceed market.bid_expiry_min")
	}
	if m.TradingFeePercent.IsNegative() || m.TradingFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, "market.trading_fee_percent must be within [0, 100]")
	}
	if m.MaxFindersFeeBps > 100 {
		errs = append(errs, "market.max_finders_fee_bps must not exceed 100")
	}
	if m.FeeBurnAddress == "" {
		errs = append(errs, "market.fee_burn_address is required")
	}
	if m.MarketplaceAddress == "" {
		errs = append(errs, "market.marketplace_address is required")
	}

	switch c.Store.Driver {
	case "memory":
	case "pebble":
		if c.Store.PebbleDir == "" {
			errs = append(errs, "store.pebble_dir is required for the pebble driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, "store.postgres_dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, pebble, postgres", c.Store.Driver))
	}

	errs = append(errs, c.Registry.validate()...)

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be within 1-65535")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when kafka.brokers is set")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (r RegistryConfig) validate() []string {
	var errs []string
	if r.BaseURL != "" && (len(r.Tokens) > 0 || len(r.Collections) > 0) {
		errs = append(errs, "registry.tokens and registry.collections require an empty registry.base_url")
	}
	for i, t := range r.Tokens {
		if t.Collection == "" || t.Owner == "" {
			errs = append(errs, fmt.Sprintf("registry.tokens[%d] needs a collection and an owner", i))
		}
	}
	for i, c := range r.Collections {
		if c.Collection == "" {
			errs = append(errs, fmt.Sprintf("registry.collections[%d] needs a collection", i))
		}
		if c.RoyaltyShare.IsNegative() || c.RoyaltyShare.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Sprintf("registry.collections[%d].royalty_share must be within [0, 1]", i))
		}
	}
	return errs
}
