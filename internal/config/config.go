// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once at startup
// and shared read-only.
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Ethereum  EthereumConfig         `mapstructure:"ethereum"`
	Arbitrage ArbitrageConfig        `mapstructure:"arbitrage"`
	Execution ExecutionConfig        `mapstructure:"execution"`
	Breaker   BreakerConfig          `mapstructure:"breaker"`
	Gas       GasConfig              `mapstructure:"gas"`
	Pricing   PricingConfig          `mapstructure:"pricing"`
	Venues    map[string]VenueConfig `mapstructure:"venues"`
	Tokens    map[string]TokenConfig `mapstructure:"tokens"`
	Control   ControlConfig          `mapstructure:"control"`
	Redis     RedisConfig            `mapstructure:"redis"`
	Postgres  PostgresConfig         `mapstructure:"postgres"`
	Telemetry TelemetryConfig        `mapstructure:"telemetry"`
	Health    HealthConfig           `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds node and executor settings.
type EthereumConfig struct {
	HTTPURL         string `mapstructure:"http_url"`
	ChainID         uint64 `mapstructure:"chain_id"`
	ExecutorAddress string `mapstructure:"executor_address"` // contract that receives the flash loan
}

// ExecutorAddressHex returns the executor address.
func (c EthereumConfig) ExecutorAddressHex() common.Address {
	return common.HexToAddress(c.ExecutorAddress)
}

// PairConfig is one scanned pair.
type PairConfig struct {
	Pair     string   `mapstructure:"pair"`
	Notional float64  `mapstructure:"notional"`
	Venues   []string `mapstructure:"venues"`
}

// NotionalDecimal returns the notional as decimal.
func (p PairConfig) NotionalDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.Notional)
}

// ArbitrageConfig holds scoring and loop settings.
type ArbitrageConfig struct {
	MinProfit           float64       `mapstructure:"min_profit"`
	MaxProfit           float64       `mapstructure:"max_profit"`
	ScanIntervalSeconds int           `mapstructure:"scan_interval_seconds"`
	MaxTradeNotional    float64       `mapstructure:"max_trade_notional"`
	LoanPremiumRate     float64       `mapstructure:"loan_premium_rate"`
	ImpactCap           float64       `mapstructure:"impact_cap"`
	SweetSpotMin        float64       `mapstructure:"sweet_spot_min"`
	SweetSpotMax        float64       `mapstructure:"sweet_spot_max"`
	MaxQuoteAge         time.Duration `mapstructure:"max_quote_age"`
	Pairs               []PairConfig  `mapstructure:"pairs"`
}

// MinProfitDecimal returns min profit as decimal.
func (c ArbitrageConfig) MinProfitDecimal() decimal.Decimal { return decimal.NewFromFloat(c.MinProfit) }

// MaxProfitDecimal returns max profit as decimal.
func (c ArbitrageConfig) MaxProfitDecimal() decimal.Decimal { return decimal.NewFromFloat(c.MaxProfit) }

// MaxTradeNotionalDecimal returns the notional ceiling as decimal.
func (c ArbitrageConfig) MaxTradeNotionalDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTradeNotional)
}

// ScanInterval returns the loop period.
func (c ArbitrageConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// ExecutionConfig controls the coordinator.
type ExecutionConfig struct {
	Mode              string            `mapstructure:"mode"` // SIMULATED | LIVE
	MaxOpportunityAge time.Duration     `mapstructure:"max_opportunity_age"`
	CallTimeout       time.Duration     `mapstructure:"call_timeout"`
	LockTTL           time.Duration     `mapstructure:"lock_ttl"`
	LockBackend       string            `mapstructure:"lock_backend"`    // memory | redis
	HistoryBackend    string            `mapstructure:"history_backend"` // memory | postgres
	HistorySize       int               `mapstructure:"history_size"`
	SettlementURL     string            `mapstructure:"settlement_url"`
	SettlementAPIKey  string            `mapstructure:"settlement_api_key"`
	SimulatedGasUnits map[string]uint64 `mapstructure:"simulated_gas_units"`
}

// BreakerConfig configures the execution circuit breaker.
type BreakerConfig struct {
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	CooldownPeriodSeconds  int `mapstructure:"cooldown_period_seconds"`
}

// Cooldown returns the open-state duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownPeriodSeconds) * time.Second
}

// GasConfig holds the per-complexity gas estimates.
type GasConfig struct {
	Mode       string            `mapstructure:"mode"` // static | live
	SimpleUSD  float64           `mapstructure:"simple_usd"`
	MediumUSD  float64           `mapstructure:"medium_usd"`
	ComplexUSD float64           `mapstructure:"complex_usd"`
	NativeUSD  float64           `mapstructure:"native_usd"` // native coin price for live conversion
	Units      map[string]uint64 `mapstructure:"units"`
	CacheTTL   time.Duration     `mapstructure:"cache_ttl"`
}

// PricingConfig controls the aggregator.
type PricingConfig struct {
	VenueTimeout time.Duration `mapstructure:"venue_timeout"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	Cache        CacheConfig   `mapstructure:"cache"`
}

// CacheConfig selects the quote cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // none | memory | redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// Venue kinds.
const (
	VenueKindUniswapV3 = "uniswap_v3"
	VenueKindQuoteAPI  = "quote_api"
	VenueKindStream    = "stream"
)

// VenueConfig is one row of the venue table.
type VenueConfig struct {
	Kind         string        `mapstructure:"kind"`
	Fee          float64       `mapstructure:"fee"`
	Router       string        `mapstructure:"router"`
	Quoter       string        `mapstructure:"quoter"`
	Factory      string        `mapstructure:"factory"`
	FeeTier      int           `mapstructure:"fee_tier"`
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	RateLimitRPM int           `mapstructure:"rate_limit_rpm"`
	Complexity   string        `mapstructure:"complexity"` // simple | medium | complex
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// FeeDecimal returns the fee fraction as decimal.
func (v VenueConfig) FeeDecimal() decimal.Decimal { return decimal.NewFromFloat(v.Fee) }

// RouterAddress returns the router address.
func (v VenueConfig) RouterAddress() common.Address { return common.HexToAddress(v.Router) }

// QuoterAddress returns the quoter address.
func (v VenueConfig) QuoterAddress() common.Address { return common.HexToAddress(v.Quoter) }

// FactoryAddress returns the factory address.
func (v VenueConfig) FactoryAddress() common.Address { return common.HexToAddress(v.Factory) }

// TokenConfig is one row of the token table.
type TokenConfig struct {
	Address         string `mapstructure:"address"`
	Decimals        uint8  `mapstructure:"decimals"`
	LiquidityHolder string `mapstructure:"liquidity_holder"` // lending reserve holding the borrowable balance
}

// AddressHex returns the token address.
func (t TokenConfig) AddressHex() common.Address { return common.HexToAddress(t.Address) }

// LiquidityHolderHex returns the reserve holder address.
func (t TokenConfig) LiquidityHolderHex() common.Address {
	return common.HexToAddress(t.LiquidityHolder)
}

// ControlConfig selects the admin control backend.
type ControlConfig struct {
	Backend string `mapstructure:"backend"` // memory | postgres
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// PostgresConfig holds database settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	TraceProvider  string `mapstructure:"trace_provider"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	_ = v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	_ = v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	_ = v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	_ = v.BindEnv("ethereum.executor_address", "ARB_EXECUTOR_ADDRESS")

	_ = v.BindEnv("arbitrage.min_profit", "ARB_MIN_PROFIT")
	_ = v.BindEnv("arbitrage.max_profit", "ARB_MAX_PROFIT")
	_ = v.BindEnv("arbitrage.scan_interval_seconds", "ARB_SCAN_INTERVAL_SECONDS")
	_ = v.BindEnv("arbitrage.max_trade_notional", "ARB_MAX_TRADE_NOTIONAL")

	_ = v.BindEnv("execution.mode", "ARB_EXECUTION_MODE")
	_ = v.BindEnv("execution.settlement_url", "ARB_SETTLEMENT_URL")
	_ = v.BindEnv("execution.settlement_api_key", "ARB_SETTLEMENT_API_KEY")

	_ = v.BindEnv("breaker.max_consecutive_failures", "ARB_MAX_CONSECUTIVE_FAILURES")
	_ = v.BindEnv("breaker.cooldown_period_seconds", "ARB_COOLDOWN_PERIOD_SECONDS")

	_ = v.BindEnv("redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("postgres.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")

	_ = v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flashloan-arb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("ethereum.chain_id", 1)

	v.SetDefault("arbitrage.min_profit", 4)
	v.SetDefault("arbitrage.max_profit", 30)
	v.SetDefault("arbitrage.scan_interval_seconds", 10)
	v.SetDefault("arbitrage.max_trade_notional", 10000)
	v.SetDefault("arbitrage.loan_premium_rate", 0.0009) // Aave v3 flash-loan premium
	v.SetDefault("arbitrage.impact_cap", 0.03)
	v.SetDefault("arbitrage.sweet_spot_min", 8)
	v.SetDefault("arbitrage.sweet_spot_max", 20)
	v.SetDefault("arbitrage.max_quote_age", "15s")

	v.SetDefault("execution.mode", "SIMULATED")
	v.SetDefault("execution.max_opportunity_age", "30s")
	v.SetDefault("execution.call_timeout", "20s")
	v.SetDefault("execution.lock_ttl", "60s")
	v.SetDefault("execution.lock_backend", "memory")
	v.SetDefault("execution.history_backend", "memory")
	v.SetDefault("execution.history_size", 500)
	v.SetDefault("execution.simulated_gas_units", map[string]uint64{
		"simple": 250_000, "medium": 400_000, "complex": 650_000,
	})

	v.SetDefault("breaker.max_consecutive_failures", 5)
	v.SetDefault("breaker.cooldown_period_seconds", 300)

	v.SetDefault("gas.mode", "static")
	v.SetDefault("gas.simple_usd", 0.50)
	v.SetDefault("gas.medium_usd", 1.50)
	v.SetDefault("gas.complex_usd", 3.00)
	v.SetDefault("gas.native_usd", 3000)
	v.SetDefault("gas.units", map[string]uint64{
		"simple": 250_000, "medium": 400_000, "complex": 650_000,
	})
	v.SetDefault("gas.cache_ttl", "12s")

	v.SetDefault("pricing.venue_timeout", "4s")
	v.SetDefault("pricing.max_parallel", 8)
	v.SetDefault("pricing.cache.backend", "memory")
	v.SetDefault("pricing.cache.ttl", "2s")

	v.SetDefault("control.backend", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("postgres.max_conns", 5)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flashloan-arb")
	v.SetDefault("telemetry.trace_provider", "ZIPKIN_PROVIDER")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.port", 8081)
}

// normalize restores canonical key casing: viper lowercases map keys, token
// symbols are upper case and venue ids lower case.
func (c *Config) normalize() {
	tokens := make(map[string]TokenConfig, len(c.Tokens))
	for sym, t := range c.Tokens {
		tokens[strings.ToUpper(sym)] = t
	}
	c.Tokens = tokens

	venues := make(map[string]VenueConfig, len(c.Venues))
	for id, v := range c.Venues {
		venues[strings.ToLower(id)] = v
	}
	c.Venues = venues

	for i := range c.Arbitrage.Pairs {
		p := &c.Arbitrage.Pairs[i]
		p.Pair = strings.ToUpper(strings.TrimSpace(p.Pair))
		for j, id := range p.Venues {
			p.Venues[j] = strings.ToLower(strings.TrimSpace(id))
		}
	}
	c.Execution.Mode = strings.ToUpper(c.Execution.Mode)
}

// Validate rejects configurations the engine must not start with.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	a := c.Arbitrage
	if a.MinProfit < 0 {
		add("arbitrage.min_profit must be >= 0")
	}
	if a.MinProfit > a.MaxProfit {
		add("arbitrage.min_profit (%v) > arbitrage.max_profit (%v)", a.MinProfit, a.MaxProfit)
	}
	if a.ScanIntervalSeconds <= 0 {
		add("arbitrage.scan_interval_seconds must be > 0")
	}
	if a.MaxTradeNotional <= 0 {
		add("arbitrage.max_trade_notional must be > 0")
	}
	if a.LoanPremiumRate < 0 || a.LoanPremiumRate >= 1 {
		add("arbitrage.loan_premium_rate must be in [0,1)")
	}
	if a.ImpactCap < 0 {
		add("arbitrage.impact_cap must be >= 0")
	}
	if a.SweetSpotMin > a.SweetSpotMax {
		add("arbitrage.sweet_spot_min > arbitrage.sweet_spot_max")
	}
	if a.MaxQuoteAge <= 0 {
		add("arbitrage.max_quote_age must be > 0")
	}
	if len(a.Pairs) == 0 {
		add("arbitrage.pairs cannot be empty")
	}
	seen := make(map[string]int, len(a.Pairs))
	for i, p := range a.Pairs {
		if p.Pair == "" {
			add("arbitrage.pairs[%d].pair is required", i)
		} else if first, dup := seen[strings.ToUpper(p.Pair)]; dup {
			add("arbitrage.pairs[%d] duplicates pairs[%d] (%s)", i, first, p.Pair)
		} else {
			seen[strings.ToUpper(p.Pair)] = i
		}
		if p.Notional <= 0 || p.Notional > a.MaxTradeNotional {
			add("arbitrage.pairs[%d].notional must be in (0, max_trade_notional]", i)
		}
		if len(p.Venues) < 2 {
			add("arbitrage.pairs[%d] needs at least two venues", i)
		}
		for _, id := range p.Venues {
			if _, ok := c.Venues[id]; !ok {
				add("arbitrage.pairs[%d] references unknown venue %q", i, id)
			}
		}
		for _, sym := range splitPair(p.Pair) {
			if _, ok := c.Tokens[sym]; !ok {
				add("arbitrage.pairs[%d] references unknown token %q", i, sym)
			}
		}
	}

	switch strings.ToUpper(c.Execution.Mode) {
	case "SIMULATED":
	case "LIVE":
		if c.Execution.SettlementURL == "" {
			add("execution.settlement_url is required in LIVE mode")
		}
		for i, p := range a.Pairs {
			for _, id := range p.Venues {
				if v, ok := c.Venues[id]; ok && v.Router == "" {
					add("arbitrage.pairs[%d]: venues.%s.router is required in LIVE mode", i, id)
				}
			}
		}
	default:
		add("execution.mode must be SIMULATED or LIVE, got %q", c.Execution.Mode)
	}
	if c.Execution.MaxOpportunityAge <= 0 {
		add("execution.max_opportunity_age must be > 0")
	}
	if !oneOf(c.Execution.LockBackend, "memory", "redis") {
		add("execution.lock_backend must be memory or redis")
	}
	if !oneOf(c.Execution.HistoryBackend, "memory", "postgres") {
		add("execution.history_backend must be memory or postgres")
	}
	if c.Ethereum.ExecutorAddress != "" && !common.IsHexAddress(c.Ethereum.ExecutorAddress) {
		add("invalid ethereum.executor_address: %s", c.Ethereum.ExecutorAddress)
	}

	if c.Breaker.MaxConsecutiveFailures <= 0 {
		add("breaker.max_consecutive_failures must be > 0")
	}
	if c.Breaker.CooldownPeriodSeconds <= 0 {
		add("breaker.cooldown_period_seconds must be > 0")
	}

	if !oneOf(c.Gas.Mode, "static", "live") {
		add("gas.mode must be static or live")
	}
	if c.Pricing.VenueTimeout <= 0 {
		add("pricing.venue_timeout must be > 0")
	}
	if !oneOf(c.Pricing.Cache.Backend, "none", "memory", "redis") {
		add("pricing.cache.backend must be none, memory or redis")
	}
	if !oneOf(c.Control.Backend, "memory", "postgres") {
		add("control.backend must be memory or postgres")
	}

	for _, id := range sortedKeys(c.Venues) {
		if err := c.Venues[id].validate(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sym := range sortedKeys(c.Tokens) {
		t := c.Tokens[sym]
		if !common.IsHexAddress(t.Address) {
			add("tokens.%s.address is not a hex address", sym)
		}
		if t.Decimals > 30 {
			add("tokens.%s.decimals is suspicious (%d)", sym, t.Decimals)
		}
		if t.LiquidityHolder != "" && !common.IsHexAddress(t.LiquidityHolder) {
			add("tokens.%s.liquidity_holder is not a hex address", sym)
		}
	}

	return errors.Join(errs...)
}

func (v VenueConfig) validate(id string) error {
	if v.Fee < 0 || v.Fee >= 1 {
		return fmt.Errorf("venues.%s.fee must be in [0,1)", id)
	}
	if v.Router != "" && !common.IsHexAddress(v.Router) {
		return fmt.Errorf("venues.%s.router is not a hex address", id)
	}
	if v.Complexity != "" && !oneOf(v.Complexity, "simple", "medium", "complex") {
		return fmt.Errorf("venues.%s.complexity must be simple, medium or complex", id)
	}

	switch v.Kind {
	case VenueKindUniswapV3:
		if !common.IsHexAddress(v.Quoter) || !common.IsHexAddress(v.Factory) {
			return fmt.Errorf("venues.%s needs hex quoter and factory addresses", id)
		}
		if v.FeeTier <= 0 {
			return fmt.Errorf("venues.%s.fee_tier must be > 0", id)
		}
	case VenueKindQuoteAPI, VenueKindStream:
		if v.URL == "" {
			return fmt.Errorf("venues.%s.url is required", id)
		}
	default:
		return fmt.Errorf("venues.%s has unknown kind %q", id, v.Kind)
	}
	return nil
}

func splitPair(s string) []string {
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
