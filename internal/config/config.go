// Package config loads the engine's TOML configuration file (spec §6):
// sections engine, gate, risk, universe, models, venues, websocket,
// advanced. Every numeric field has a documented default applied before
// the file is read, so a config that only overrides a handful of values
// still produces a fully-populated Config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hft-engine/internal/engine"
	"hft-engine/internal/features"
	"hft-engine/internal/inference"
	"hft-engine/pkg/types"
)

// Config is the top-level configuration, mapping directly onto the TOML
// document's sections.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Gate      GateConfig      `mapstructure:"gate"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Universe  UniverseConfig  `mapstructure:"universe"`
	Models    ModelsConfig    `mapstructure:"models"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Advanced  AdvancedConfig  `mapstructure:"advanced"`
}

// EngineConfig drives the engine loop itself: decision mode, asset
// category, batching, telemetry cadence, and cost assumptions fed to the
// router's net-edge calculation.
type EngineConfig struct {
	Mode            string        `mapstructure:"mode"`     // "ml_traditional" | "rl_agent" | "hybrid"
	Category        string        `mapstructure:"category"` // "crypto" | "equity"
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeoutMs  int           `mapstructure:"batch_timeout_ms"`
	SnapshotBuffer  int           `mapstructure:"snapshot_buffer"`
	ModelTimeoutMs  int           `mapstructure:"model_timeout_ms"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	TelemetryAddr   string        `mapstructure:"telemetry_addr"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`

	TakerFeeBps       float64 `mapstructure:"taker_fee_bps"`
	MakerFeeBps       float64 `mapstructure:"maker_fee_bps"`
	MakerRebateBps    float64 `mapstructure:"maker_rebate_bps"`
	ImpactBps         float64 `mapstructure:"impact_bps"`
	SlippageBufferBps float64 `mapstructure:"slippage_buffer_bps"`
}

// GateConfig maps directly onto types.GateParams.
type GateConfig struct {
	MinEdgeBps    float64 `mapstructure:"min_edge_bps"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	MaxHoldS      float64 `mapstructure:"max_hold_s"`
	MaxSpreadBps  float64 `mapstructure:"max_spread_bps"`
	Enabled       bool    `mapstructure:"enabled"`
}

// RiskConfig maps directly onto types.RiskLimits.
type RiskConfig struct {
	MaxNotionalPerSymbol     float64 `mapstructure:"max_notional_per_symbol"`
	MaxTotalNotional         float64 `mapstructure:"max_total_notional"`
	MaxLeverage              float64 `mapstructure:"max_leverage"`
	MaxLossPerDay            float64 `mapstructure:"max_loss_per_day"`
	MaxPositionConcentration float64 `mapstructure:"max_position_concentration"`
}

// UniverseConfig is the static symbol list the engine trades. A live
// scanner/ranker is out of scope (SPEC_FULL.md §C); this is a fixed list
// read once at startup.
type UniverseConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

// ModelsConfig locates the on-disk model directories (spec §6's "Model
// directory layout").
type ModelsConfig struct {
	CryptoDir  string `mapstructure:"crypto_dir"`
	EquityDir  string `mapstructure:"equity_dir"`
	RLDir      string `mapstructure:"rl_dir"`
	GPUEnabled bool   `mapstructure:"gpu_enabled"`
}

// VenuesConfig configures the venue adapter's REST/auth surface.
type VenuesConfig struct {
	Name          string `mapstructure:"name"`
	RESTBaseURL   string `mapstructure:"rest_base_url"`
	ChainID       int    `mapstructure:"chain_id"`
	WalletAddress string `mapstructure:"wallet_address"`
}

// WebSocketConfig holds the venue market-data feed settings. Only URL
// reaches the venue adapter; its reconnect backoff and ping interval are
// fixed inside internal/venue, and StaleBookTimeout is not read.
type WebSocketConfig struct {
	URL              string        `mapstructure:"url"`
	ReconnectMinMs   int           `mapstructure:"reconnect_min_ms"`
	ReconnectMaxMs   int           `mapstructure:"reconnect_max_ms"`
	PingIntervalS    int           `mapstructure:"ping_interval_s"`
	StaleBookTimeout time.Duration `mapstructure:"stale_book_timeout"`
}

// AdvancedConfig holds the [advanced] section. Nothing outside this
// package reads it: Enabled and RealizedVolWindow do not change the
// feature set the kernel computes.
type AdvancedConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RealizedVolWindow int  `mapstructure:"realized_vol_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.mode", "ml_traditional")
	v.SetDefault("engine.category", "crypto")
	v.SetDefault("engine.batch_size", 32)
	v.SetDefault("engine.batch_timeout_ms", 250)
	v.SetDefault("engine.snapshot_buffer", 256)
	v.SetDefault("engine.model_timeout_ms", 5)
	v.SetDefault("engine.metrics_port", 9090)
	v.SetDefault("engine.telemetry_addr", ":8090")
	v.SetDefault("engine.metrics_interval", "1s")
	v.SetDefault("engine.taker_fee_bps", 2.0)
	v.SetDefault("engine.maker_fee_bps", 1.0)
	v.SetDefault("engine.maker_rebate_bps", 0.5)
	v.SetDefault("engine.impact_bps", 1.0)
	v.SetDefault("engine.slippage_buffer_bps", 0.5)

	g := types.DefaultGateParams()
	v.SetDefault("gate.min_edge_bps", g.MinEdgeBps)
	v.SetDefault("gate.min_confidence", g.MinConfidence)
	v.SetDefault("gate.max_hold_s", g.MaxHoldS)
	v.SetDefault("gate.max_spread_bps", g.MaxSpreadBps)
	v.SetDefault("gate.enabled", g.Enabled)

	r := types.DefaultRiskLimits()
	v.SetDefault("risk.max_notional_per_symbol", r.MaxNotionalPerSymbol)
	v.SetDefault("risk.max_total_notional", r.MaxTotalNotional)
	v.SetDefault("risk.max_leverage", r.MaxLeverage)
	v.SetDefault("risk.max_loss_per_day", r.MaxLossPerDay)
	v.SetDefault("risk.max_position_concentration", r.MaxPositionConcentration)

	v.SetDefault("universe.symbols", []string{"BTC-USD", "ETH-USD"})

	v.SetDefault("models.crypto_dir", "models/crypto")
	v.SetDefault("models.equity_dir", "models/equity")
	v.SetDefault("models.rl_dir", "models/rl")
	v.SetDefault("models.gpu_enabled", false)

	v.SetDefault("venues.name", "hyperliquid")
	v.SetDefault("venues.rest_base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("venues.chain_id", 42161)

	v.SetDefault("websocket.url", "wss://api.hyperliquid.xyz/ws")
	v.SetDefault("websocket.reconnect_min_ms", 1000)
	v.SetDefault("websocket.reconnect_max_ms", 30000)
	v.SetDefault("websocket.ping_interval_s", 50)
	v.SetDefault("websocket.stale_book_timeout", "10s")

	v.SetDefault("advanced.enabled", false)
	v.SetDefault("advanced.realized_vol_window", 20)
}

// Load reads the TOML config at path, applying defaults for every field
// the file omits. Any key can be overridden from the environment with an
// HFT_ prefix and underscores for dots (e.g. HFT_ENGINE_BATCH_SIZE).
// ENABLE_AWS and HYPERLIQUID_API_KEY/HYPERLIQUID_SECRET are not read here;
// see EnableAWS and HyperliquidCredentials.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix("HFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.ErrConfig, fmt.Sprintf("read config %s", path), err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.ErrConfig, "unmarshal config", err)
	}

	return &cfg, nil
}

// EnableAWS reports the ENABLE_AWS process environment flag (spec §6).
func EnableAWS() bool {
	v := os.Getenv("ENABLE_AWS")
	return v == "true" || v == "1"
}

// HyperliquidCredentials returns the HYPERLIQUID_API_KEY/SECRET fallback
// pair; cmd/bot uses the secret as the wallet key when
// HFT_WALLET_PRIVATE_KEY is unset.
func HyperliquidCredentials() (apiKey, secret string) {
	return os.Getenv("HYPERLIQUID_API_KEY"), os.Getenv("HYPERLIQUID_SECRET")
}

// Validate checks required fields and value ranges, failing fast at boot
// per spec §7 ("Fatal at boot: missing required models ...; missing GPU
// when configured with gpu.enabled=true").
func (c *Config) Validate() error {
	switch c.Engine.Mode {
	case "ml_traditional", "rl_agent", "hybrid":
	default:
		return types.NewError(types.ErrConfig, fmt.Sprintf("engine.mode must be one of ml_traditional, rl_agent, hybrid, got %q", c.Engine.Mode))
	}
	switch c.Engine.Category {
	case "crypto", "equity":
	default:
		return types.NewError(types.ErrConfig, fmt.Sprintf("engine.category must be one of crypto, equity, got %q", c.Engine.Category))
	}
	if c.Engine.BatchSize <= 0 {
		return types.NewError(types.ErrConfig, "engine.batch_size must be > 0")
	}
	if c.Engine.ModelTimeoutMs <= 0 {
		return types.NewError(types.ErrConfig, "engine.model_timeout_ms must be > 0")
	}
	if len(c.Universe.Symbols) == 0 {
		return types.NewError(types.ErrConfig, "universe.symbols must be non-empty")
	}
	if c.Risk.MaxTotalNotional <= 0 {
		return types.NewError(types.ErrConfig, "risk.max_total_notional must be > 0")
	}
	if c.Models.GPUEnabled {
		return types.NewError(types.ErrConfig, "models.gpu_enabled=true is fatal: no GPU binding is available in this build")
	}
	return nil
}

// DecisionMode translates the mode string into engine.DecisionMode.
func (c *Config) DecisionMode() engine.DecisionMode {
	switch c.Engine.Mode {
	case "rl_agent":
		return engine.RLAgent
	case "hybrid":
		return engine.Hybrid
	default:
		return engine.MLTraditional
	}
}

// ModelCategory translates the category string into inference.Category.
func (c *Config) ModelCategory() inference.Category {
	if c.Engine.Category == "equity" {
		return inference.Equity
	}
	return inference.Crypto
}

// ComputeMode is always VectorFirst: gpu.enabled=true is rejected at
// Validate, so the only two reachable modes are VectorFirst (hot path,
// falls back to scalar on kernel failure) and ScalarOnly (debugging,
// opted into by operators directly in code, not via this config).
func (c *Config) ComputeMode() features.ComputeMode {
	return features.VectorFirst
}

// GateParams builds a types.GateParams from the gate section.
func (c *Config) GateParams() types.GateParams {
	return types.GateParams{
		MinEdgeBps:    c.Gate.MinEdgeBps,
		MinConfidence: c.Gate.MinConfidence,
		MaxHoldS:      c.Gate.MaxHoldS,
		MaxSpreadBps:  c.Gate.MaxSpreadBps,
		Enabled:       c.Gate.Enabled,
	}
}

// RiskLimits builds a types.RiskLimits from the risk section.
func (c *Config) RiskLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxNotionalPerSymbol:     c.Risk.MaxNotionalPerSymbol,
		MaxTotalNotional:         c.Risk.MaxTotalNotional,
		MaxLeverage:              c.Risk.MaxLeverage,
		MaxLossPerDay:            c.Risk.MaxLossPerDay,
		MaxPositionConcentration: c.Risk.MaxPositionConcentration,
	}
}

// CostModel builds a types.CostModel from the engine section.
func (c *Config) CostModel() types.CostModel {
	return types.CostModel{
		TakerFeeBps:       c.Engine.TakerFeeBps,
		MakerFeeBps:       c.Engine.MakerFeeBps,
		MakerRebateBps:    c.Engine.MakerRebateBps,
		ImpactBps:         c.Engine.ImpactBps,
		SlippageBufferBps: c.Engine.SlippageBufferBps,
	}
}

// SymbolUniverse builds a types.SymbolUniverse from the universe section.
func (c *Config) SymbolUniverse() types.SymbolUniverse {
	return types.SymbolUniverse{Symbols: c.Universe.Symbols}
}

// BatchTimeout returns the batcher's flush deadline as a time.Duration.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Engine.BatchTimeoutMs) * time.Millisecond
}

// ModelTimeout returns the inference pool's per-call deadline.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Engine.ModelTimeoutMs) * time.Millisecond
}
