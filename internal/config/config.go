// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tradebot-go/internal/execution"
	"tradebot-go/internal/indicator"
	"tradebot-go/internal/risk"
	"tradebot-go/internal/session"
	"tradebot-go/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed selects the market data provider and the traded symbols.
type Feed struct {
	Provider string   `yaml:"provider"`
	Symbols  []string `yaml:"symbols"`
	Interval string   `yaml:"interval"`
}

// Database configures the optional Postgres bar store.
type Database struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Session restricts when session-gated strategies may open positions.
type Session struct {
	Enabled  bool   `yaml:"enabled"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// Strategy specifies which strategy is active along with every parameter bundle.
type Strategy struct {
	Mode     string                      `yaml:"mode"`
	Warrior  strategy.WarriorParams      `yaml:"warrior"`
	MeanRev  strategy.MeanRevParams      `yaml:"mean_reversion"`
	Grid     strategy.GridParams         `yaml:"grid"`
	Adaptive strategy.AdaptiveGridParams `yaml:"adaptive_grid"`
}

// Risk groups position sizing and the account-level gates.
type Risk struct {
	Sizer   risk.SizerParams   `yaml:"sizer"`
	Manager risk.ManagerParams `yaml:"manager"`
}

// Execution tunes order submission retries and re-entry cooldown.
type Execution struct {
	MaxAttempts  int `yaml:"max_attempts"`
	BackoffMs    int `yaml:"backoff_ms"`
	MaxBackoffMs int `yaml:"max_backoff_ms"`
	TimeoutMs    int `yaml:"timeout_ms"`
	CooldownSecs int `yaml:"cooldown_secs"`
}

// Paper captures paper-trading settings such as starting equity and fill simulation tuning.
type Paper struct {
	StartingEquity float64 `yaml:"starting_equity"`
	SlippageBps    float64 `yaml:"slippage_bps"`
	FeeBps         float64 `yaml:"fee_bps"`
	PartialFills   int     `yaml:"partial_fills"`
	EventsPath     string  `yaml:"events_path"`
}

// Backtest configures historical replay.
type Backtest struct {
	DataDir      string  `yaml:"data_dir"`
	FillModel    string  `yaml:"fill_model"`
	SlippageBps  float64 `yaml:"slippage_bps"`
	JitterBps    float64 `yaml:"jitter_bps"`
	FeeBps       float64 `yaml:"fee_bps"`
	LatencyBars  int     `yaml:"latency_bars"`
	Seed         int64   `yaml:"seed"`
	ShowProgress bool    `yaml:"show_progress"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App              `yaml:"app"`
	Feed      Feed             `yaml:"feed"`
	Database  Database         `yaml:"database"`
	Session   Session          `yaml:"session"`
	Strategy  Strategy         `yaml:"strategy"`
	Indicator indicator.Params `yaml:"indicator"`
	Risk      Risk             `yaml:"risk"`
	Execution Execution        `yaml:"execution"`
	Paper     Paper            `yaml:"paper"`
	Backtest  Backtest         `yaml:"backtest"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and validates it.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("config: feed.symbols must not be empty")
	}
	if _, err := strategy.Build(c.Strategy.Mode, c.StrategyParams()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Session.Enabled {
		if _, err := c.SessionWindow(); err != nil {
			return fmt.Errorf("config: session: %w", err)
		}
	}
	if c.Risk.Sizer.RiskPerTradePct < 0 {
		return fmt.Errorf("config: risk.sizer.risk_per_trade_pct must not be negative")
	}
	if c.Risk.Sizer.MaxNotionalPct < 0 {
		return fmt.Errorf("config: risk.sizer.max_notional_pct must not be negative")
	}
	if c.Risk.Sizer.LotStep.IsNegative() {
		return fmt.Errorf("config: risk.sizer.lot_step must not be negative")
	}
	if c.Strategy.Grid.SpacingPct < 0 {
		return fmt.Errorf("config: strategy.grid.spacing_pct must not be negative")
	}
	if c.Strategy.Adaptive.BaseSpacingPct < 0 || c.Strategy.Adaptive.MinSpacingPct < 0 {
		return fmt.Errorf("config: strategy.adaptive_grid spacing must not be negative")
	}
	if c.Paper.StartingEquity < 0 {
		return fmt.Errorf("config: paper.starting_equity must not be negative")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("config: database.url required when database is enabled")
	}
	return nil
}

// StrategyParams bundles the per-strategy knobs for strategy.Build.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		Warrior:  c.Strategy.Warrior,
		MeanRev:  c.Strategy.MeanRev,
		Grid:     c.Strategy.Grid,
		Adaptive: c.Strategy.Adaptive,
	}
}

// SessionWindow builds the configured trading window, or nil when disabled.
func (c *Config) SessionWindow() (*session.Window, error) {
	if !c.Session.Enabled {
		return nil, nil
	}
	w, err := session.NewWindow(c.Session.Start, c.Session.End, c.Session.Timezone)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// RetryPolicy converts the execution section into the machine's retry policy.
// Zero values fall back to the defaults.
func (c *Config) RetryPolicy() execution.RetryPolicy {
	p := execution.DefaultRetryPolicy()
	if c.Execution.MaxAttempts > 0 {
		p.MaxAttempts = c.Execution.MaxAttempts
	}
	if c.Execution.BackoffMs > 0 {
		p.Backoff = time.Duration(c.Execution.BackoffMs) * time.Millisecond
	}
	if c.Execution.MaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(c.Execution.MaxBackoffMs) * time.Millisecond
	}
	if c.Execution.TimeoutMs > 0 {
		p.Timeout = time.Duration(c.Execution.TimeoutMs) * time.Millisecond
	}
	return p
}

// Cooldown returns the configured re-entry cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Execution.CooldownSecs) * time.Second
}

// IndicatorParams returns the indicator settings with defaults applied for
// any zero field.
func (c *Config) IndicatorParams() indicator.Params {
	p := c.Indicator
	def := indicator.DefaultParams()
	if p.EMAFast <= 0 {
		p.EMAFast = def.EMAFast
	}
	if p.EMAMid <= 0 {
		p.EMAMid = def.EMAMid
	}
	if p.EMASlow <= 0 {
		p.EMASlow = def.EMASlow
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = def.RSIPeriod
	}
	if p.BBPeriod <= 0 {
		p.BBPeriod = def.BBPeriod
	}
	if p.BBStdevs <= 0 {
		p.BBStdevs = def.BBStdevs
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = def.ATRPeriod
	}
	if p.RVOLLookback <= 0 {
		p.RVOLLookback = def.RVOLLookback
	}
	if p.VolLookback <= 0 {
		p.VolLookback = def.VolLookback
	}
	if p.SwingBars <= 0 {
		p.SwingBars = def.SwingBars
	}
	return p
}
