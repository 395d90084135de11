package store

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// RiskPolicy is the mutable trading policy enforced by the risk governor.
// Loaded once at startup, hot-swappable via PolicyHandle.
type RiskPolicy struct {
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxRiskPct           float64 `yaml:"max_risk_pct"`
	MaxDailyDrawdownPct  float64 `yaml:"max_daily_drawdown_pct"`
	MaxSymbolExposurePct float64 `yaml:"max_symbol_exposure_pct"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	ConfirmAboveNotional float64 `yaml:"confirm_above_notional"`
}

func (p RiskPolicy) Validate() error {
	if p.MaxTradesPerDay < 0 {
		return fmt.Errorf("risk.max_trades_per_day cannot be negative, got %d", p.MaxTradesPerDay)
	}
	if p.MaxRiskPct < 0 || p.MaxRiskPct > 100 {
		return fmt.Errorf("risk.max_risk_pct must be between 0-100, got %.2f", p.MaxRiskPct)
	}
	if p.MaxDailyDrawdownPct < 0 || p.MaxDailyDrawdownPct > 100 {
		return fmt.Errorf("risk.max_daily_drawdown_pct must be between 0-100, got %.2f", p.MaxDailyDrawdownPct)
	}
	if p.MaxSymbolExposurePct < 0 || p.MaxSymbolExposurePct > 100 {
		return fmt.Errorf("risk.max_symbol_exposure_pct must be between 0-100, got %.2f", p.MaxSymbolExposurePct)
	}
	if p.CooldownMinutes < 0 {
		return fmt.Errorf("risk.cooldown_minutes cannot be negative, got %d", p.CooldownMinutes)
	}
	return nil
}

// LadderStep is one rung of the take-profit ladder.
type LadderStep struct {
	GainPct      float64 `yaml:"gain_pct"`
	SellFraction float64 `yaml:"sell_fraction"`
}

type Config struct {
	Mode       string `yaml:"mode"` // DRY_RUN or LIVE
	Venue      string `yaml:"venue"`
	QuoteAsset string `yaml:"quote_asset"`

	Risk RiskPolicy `yaml:"risk"`

	Stop struct {
		LossPct float64 `yaml:"loss_pct"`
	} `yaml:"stop"`

	Ladder []LadderStep `yaml:"ladder"`

	Monitor struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		PositionDelayMs int `yaml:"position_delay_ms"`
		PollRetries     int `yaml:"poll_retries"`
	} `yaml:"monitor"`

	State struct {
		Dir          string `yaml:"dir"`
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"state"`

	Market struct {
		PriceTick float64 `yaml:"price_tick"`
		QtyStep   float64 `yaml:"qty_step"`
	} `yaml:"market"`

	Paper struct {
		StartBalance float64            `yaml:"start_balance"`
		Prices       map[string]float64 `yaml:"prices"`
	} `yaml:"paper"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.QuoteAsset == "" {
		return fmt.Errorf("quote_asset cannot be empty")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Stop.LossPct < 0 || c.Stop.LossPct > 100 {
		return fmt.Errorf("stop.loss_pct must be between 0-100, got %.2f", c.Stop.LossPct)
	}
	var fractions float64
	for i, step := range c.Ladder {
		if step.GainPct <= 0 {
			return fmt.Errorf("ladder[%d].gain_pct must be positive, got %.2f", i, step.GainPct)
		}
		if step.SellFraction <= 0 || step.SellFraction > 1 {
			return fmt.Errorf("ladder[%d].sell_fraction must be in (0,1], got %.4f", i, step.SellFraction)
		}
		fractions += step.SellFraction
	}
	if fractions > 1.0+1e-9 {
		return fmt.Errorf("ladder sell fractions sum to %.4f, must not exceed 1.0", fractions)
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be positive, got %d", c.Monitor.IntervalSeconds)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Venue == "" {
		c.Venue = "paper"
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 30
	}
	if c.Monitor.PositionDelayMs == 0 {
		c.Monitor.PositionDelayMs = 250
	}
	if c.Monitor.PollRetries == 0 {
		c.Monitor.PollRetries = 2
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.HistoryLimit == 0 {
		c.State.HistoryLimit = 200
	}
	if c.Paper.StartBalance == 0 {
		c.Paper.StartBalance = 1000
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// PolicyHandle holds the active risk policy and supports atomic swap on
// hot reload, so a reload never exposes a half-written policy.
type PolicyHandle struct {
	mu     sync.RWMutex
	policy RiskPolicy
}

func NewPolicyHandle(p RiskPolicy) *PolicyHandle {
	return &PolicyHandle{policy: p}
}

// Current returns the active policy.
func (h *PolicyHandle) Current() RiskPolicy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policy
}

// Swap replaces the active policy after validating it. An invalid policy is
// rejected and the previous one stays in force.
func (h *PolicyHandle) Swap(p RiskPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.policy = p
	h.mu.Unlock()
	return nil
}
