package workflow

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Escalation modes for invoices above the approval limit.
const (
	EscalatePause  = "pause"
	EscalateManual = "manual"
)

// MatchWeights weight the two-way match components.
type MatchWeights struct {
	Amount  float64 `toml:"amount"`
	Lines   float64 `toml:"lines"`
	Vendor  float64 `toml:"vendor"`
	Receipt float64 `toml:"receipt"`
}

func (w MatchWeights) sum() float64 {
	return w.Amount + w.Lines + w.Vendor + w.Receipt
}

// Config holds engine policy: matching, retries, approval, and accounting.
type Config struct {
	MatchThreshold      float64      `toml:"match_threshold"`
	AmountTolerance     float64      `toml:"amount_tolerance"`
	Weights             MatchWeights `toml:"weights"`
	MaxAttempts         int          `toml:"max_attempts"`
	BaseBackoff         string       `toml:"base_backoff"`
	MaxBackoff          string       `toml:"max_backoff"`
	ToolTimeout         string       `toml:"tool_timeout"`
	AutoApproveLimit    float64      `toml:"auto_approve_limit"`
	HighAmountThreshold float64      `toml:"high_amount_threshold"`
	HighRiskScore       float64      `toml:"high_risk_score"`
	EscalateHighRisk    bool         `toml:"escalate_high_risk"`
	EscalationMode      string       `toml:"escalation_mode"`
	ApproverRole        string       `toml:"approver_role"`
	ReviewBaseURL       string       `toml:"review_base_url"`
	PaymentTermsDays    int          `toml:"payment_terms_days"`
	DefaultCurrency     string       `toml:"default_currency"`
	ExpenseAccount      string       `toml:"expense_account"`
	TaxAccount          string       `toml:"tax_account"`
	PayableAccount      string       `toml:"payable_account"`
	Recipients          []string     `toml:"recipients"`
}

// ConfigEnv maps config fields to environment variable names.
type ConfigEnv struct {
	MatchThreshold   string
	MaxAttempts      string
	BaseBackoff      string
	MaxBackoff       string
	ToolTimeout      string
	AutoApproveLimit string
	EscalationMode   string
	ReviewBaseURL    string
	PaymentTermsDays string
	DefaultCurrency  string
}

// DefaultConfig returns a finalized config with default values.
func DefaultConfig() Config {
	var c Config
	c.loadDefaults()
	return c
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.MatchThreshold != 0 {
		c.MatchThreshold = overlay.MatchThreshold
	}
	if overlay.AmountTolerance != 0 {
		c.AmountTolerance = overlay.AmountTolerance
	}
	if overlay.Weights.sum() != 0 {
		c.Weights = overlay.Weights
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BaseBackoff != "" {
		c.BaseBackoff = overlay.BaseBackoff
	}
	if overlay.MaxBackoff != "" {
		c.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.ToolTimeout != "" {
		c.ToolTimeout = overlay.ToolTimeout
	}
	if overlay.AutoApproveLimit != 0 {
		c.AutoApproveLimit = overlay.AutoApproveLimit
	}
	if overlay.HighAmountThreshold != 0 {
		c.HighAmountThreshold = overlay.HighAmountThreshold
	}
	if overlay.HighRiskScore != 0 {
		c.HighRiskScore = overlay.HighRiskScore
	}
	if overlay.EscalateHighRisk {
		c.EscalateHighRisk = true
	}
	if overlay.EscalationMode != "" {
		c.EscalationMode = overlay.EscalationMode
	}
	if overlay.ApproverRole != "" {
		c.ApproverRole = overlay.ApproverRole
	}
	if overlay.ReviewBaseURL != "" {
		c.ReviewBaseURL = overlay.ReviewBaseURL
	}
	if overlay.PaymentTermsDays != 0 {
		c.PaymentTermsDays = overlay.PaymentTermsDays
	}
	if overlay.DefaultCurrency != "" {
		c.DefaultCurrency = overlay.DefaultCurrency
	}
	if overlay.ExpenseAccount != "" {
		c.ExpenseAccount = overlay.ExpenseAccount
	}
	if overlay.TaxAccount != "" {
		c.TaxAccount = overlay.TaxAccount
	}
	if overlay.PayableAccount != "" {
		c.PayableAccount = overlay.PayableAccount
	}
	if len(overlay.Recipients) > 0 {
		c.Recipients = overlay.Recipients
	}
}

// BaseBackoffDuration returns BaseBackoff as a time.Duration.
func (c *Config) BaseBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.BaseBackoff)
	return d
}

// MaxBackoffDuration returns MaxBackoff as a time.Duration.
func (c *Config) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	return d
}

// ToolTimeoutDuration returns ToolTimeout as a time.Duration.
func (c *Config) ToolTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ToolTimeout)
	return d
}

func (c *Config) loadDefaults() {
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 0.85
	}
	if c.AmountTolerance == 0 {
		c.AmountTolerance = 0.01
	}
	if c.Weights.sum() == 0 {
		c.Weights = MatchWeights{Amount: 0.5, Lines: 0.3, Vendor: 0.1, Receipt: 0.1}
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff == "" {
		c.BaseBackoff = "200ms"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "5s"
	}
	if c.ToolTimeout == "" {
		c.ToolTimeout = "30s"
	}
	if c.AutoApproveLimit == 0 {
		c.AutoApproveLimit = 250000
	}
	if c.HighAmountThreshold == 0 {
		c.HighAmountThreshold = 100000
	}
	if c.HighRiskScore == 0 {
		c.HighRiskScore = 0.7
	}
	if c.EscalationMode == "" {
		c.EscalationMode = EscalatePause
	}
	if c.ApproverRole == "" {
		c.ApproverRole = "FINANCE_MANAGER"
	}
	if c.ReviewBaseURL == "" {
		c.ReviewBaseURL = "http://localhost:8080/api/review"
	}
	if c.PaymentTermsDays == 0 {
		c.PaymentTermsDays = 30
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "INR"
	}
	if c.ExpenseAccount == "" {
		c.ExpenseAccount = "Expense"
	}
	if c.TaxAccount == "" {
		c.TaxAccount = "Input Tax"
	}
	if c.PayableAccount == "" {
		c.PayableAccount = "Accounts Payable"
	}
	if len(c.Recipients) == 0 {
		c.Recipients = []string{"vendor", "finance"}
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	setString := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if name == "" {
			return
		}
		if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if name == "" {
			return
		}
		if v, err := strconv.ParseFloat(os.Getenv(name), 64); err == nil {
			*dst = v
		}
	}

	setFloat(env.MatchThreshold, &c.MatchThreshold)
	setInt(env.MaxAttempts, &c.MaxAttempts)
	setString(env.BaseBackoff, &c.BaseBackoff)
	setString(env.MaxBackoff, &c.MaxBackoff)
	setString(env.ToolTimeout, &c.ToolTimeout)
	setFloat(env.AutoApproveLimit, &c.AutoApproveLimit)
	setString(env.EscalationMode, &c.EscalationMode)
	setString(env.ReviewBaseURL, &c.ReviewBaseURL)
	setInt(env.PaymentTermsDays, &c.PaymentTermsDays)
	setString(env.DefaultCurrency, &c.DefaultCurrency)
}

func (c *Config) validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0,1]: %v", c.MatchThreshold)
	}
	if c.AmountTolerance < 0 || c.AmountTolerance >= 1 {
		return fmt.Errorf("amount_tolerance must be in [0,1): %v", c.AmountTolerance)
	}
	w := c.Weights
	if w.Amount < 0 || w.Lines < 0 || w.Vendor < 0 || w.Receipt < 0 {
		return fmt.Errorf("match weights must be non-negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1: %d", c.MaxAttempts)
	}
	for name, v := range map[string]string{
		"base_backoff": c.BaseBackoff,
		"max_backoff":  c.MaxBackoff,
		"tool_timeout": c.ToolTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.EscalationMode != EscalatePause && c.EscalationMode != EscalateManual {
		return fmt.Errorf("escalation_mode must be %q or %q: %q", EscalatePause, EscalateManual, c.EscalationMode)
	}
	if c.PaymentTermsDays < 0 {
		return fmt.Errorf("payment_terms_days must be non-negative: %d", c.PaymentTermsDays)
	}
	return nil
}
