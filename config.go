package piclaim

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/donsmila-fx/piclaim/clock"
	"github.com/donsmila-fx/piclaim/keys"
	"github.com/donsmila-fx/piclaim/submit"
)

// Config holds configuration for the Bot.
type Config struct {
	// Mnemonic is the BIP-39 recovery phrase of the source account.
	Mnemonic string

	// Destination is the public address receiving the payment leg.
	Destination string

	// Amount is the payment amount in native units.
	Amount decimal.Decimal

	// FeePerOp is the per-operation fee in stroops used when the network's
	// fee endpoint is unavailable.
	FeePerOp int64

	// TargetTime is the daily unlock time, "HH:MM:SS" in UTC. Required in
	// burst mode only.
	TargetTime string

	// BatchSize is the number of concurrent attempts per burst batch.
	BatchSize int

	// BatchInterval spaces consecutive burst batches.
	BatchInterval time.Duration

	// LeadTime is how far before the target instant firing begins.
	LeadTime time.Duration

	// PollInterval spaces polling-mode ticks.
	PollInterval time.Duration

	// RetryBudget is the total transport attempts per polling submission.
	RetryBudget int

	// HorizonURL is the base URL of the Horizon-compatible API.
	HorizonURL string

	// NetworkPassphrase binds signatures to one network.
	NetworkPassphrase string

	// NTPServer is queried once at startup for clock correction.
	NTPServer string

	// LogFile, when set, receives append-only attempt status lines.
	LogFile string
}

// DefaultConfig returns a Config with sensible defaults. Mnemonic,
// Destination, and Amount have none and must be supplied.
func DefaultConfig() Config {
	return Config{
		FeePerOp:          100_000,
		BatchSize:         5,
		BatchInterval:     2 * time.Second,
		LeadTime:          1200 * time.Millisecond,
		PollInterval:      5 * time.Second,
		RetryBudget:       submit.DefaultRetryBudget,
		HorizonURL:        "https://api.mainnet.minepi.com",
		NetworkPassphrase: "Pi Network",
		NTPServer:         clock.DefaultServer,
	}
}

// fileConfig is the YAML form of Config. Everything is optional; durations
// and amounts are strings parsed after load.
type fileConfig struct {
	Mnemonic          string `yaml:"mnemonic"`
	Destination       string `yaml:"destination"`
	Amount            string `yaml:"amount"`
	FeePerOp          *int64 `yaml:"fee_per_op"`
	TargetTime        string `yaml:"target_time"`
	BatchSize         *int   `yaml:"batch_size"`
	BatchInterval     string `yaml:"batch_interval"`
	LeadTime          string `yaml:"lead_time"`
	PollInterval      string `yaml:"poll_interval"`
	RetryBudget       *int   `yaml:"retry_budget"`
	HorizonURL        string `yaml:"horizon_url"`
	NetworkPassphrase string `yaml:"network_passphrase"`
	NTPServer         string `yaml:"ntp_server"`
	LogFile           string `yaml:"log_file"`
}

// LoadConfig builds a Config from defaults, an optional YAML file, and PI_*
// environment variables, in ascending precedence. It validates required
// fields and value shapes; a Config it returns without error is ready for
// New.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("piclaim: read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("piclaim: parse config %s: %w", path, err)
	}

	if fc.Mnemonic != "" {
		cfg.Mnemonic = fc.Mnemonic
	}
	if fc.Destination != "" {
		cfg.Destination = fc.Destination
	}
	if fc.Amount != "" {
		amount, err := decimal.NewFromString(fc.Amount)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, fc.Amount)
		}
		cfg.Amount = amount
	}
	if fc.FeePerOp != nil {
		cfg.FeePerOp = *fc.FeePerOp
	}
	if fc.TargetTime != "" {
		cfg.TargetTime = fc.TargetTime
	}
	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.RetryBudget != nil {
		cfg.RetryBudget = *fc.RetryBudget
	}
	if fc.HorizonURL != "" {
		cfg.HorizonURL = fc.HorizonURL
	}
	if fc.NetworkPassphrase != "" {
		cfg.NetworkPassphrase = fc.NetworkPassphrase
	}
	if fc.NTPServer != "" {
		cfg.NTPServer = fc.NTPServer
	}
	if fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.BatchInterval, &cfg.BatchInterval, "batch_interval"},
		{fc.LeadTime, &cfg.LeadTime, "lead_time"},
		{fc.PollInterval, &cfg.PollInterval, "poll_interval"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("piclaim: config %s %q: %w", d.key, d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PI_MNEMONIC"); v != "" {
		cfg.Mnemonic = v
	}
	if v := os.Getenv("PI_DESTINATION"); v != "" {
		cfg.Destination = v
	}
	if v := os.Getenv("PI_AMOUNT"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%w: PI_AMOUNT=%q", ErrInvalidAmount, v)
		}
		cfg.Amount = amount
	}
	if v := os.Getenv("PI_TARGET_TIME"); v != "" {
		cfg.TargetTime = v
	}
	if v := os.Getenv("PI_HORIZON_URL"); v != "" {
		cfg.HorizonURL = v
	}
	if v := os.Getenv("PI_NETWORK_PASSPHRASE"); v != "" {
		cfg.NetworkPassphrase = v
	}
	if v := os.Getenv("PI_NTP_SERVER"); v != "" {
		cfg.NTPServer = v
	}
	if v := os.Getenv("PI_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	for _, n := range []struct {
		key string
		set func(int64)
	}{
		{"PI_FEE", func(v int64) { cfg.FeePerOp = v }},
		{"PI_BATCH_SIZE", func(v int64) { cfg.BatchSize = int(v) }},
		{"PI_RETRY_BUDGET", func(v int64) { cfg.RetryBudget = int(v) }},
	} {
		raw := os.Getenv(n.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("piclaim: %s=%q: %w", n.key, raw, err)
		}
		n.set(v)
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"PI_BATCH_INTERVAL", &cfg.BatchInterval},
		{"PI_LEAD_TIME", &cfg.LeadTime},
		{"PI_POLL_INTERVAL", &cfg.PollInterval},
	} {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("piclaim: %s=%q: %w", d.key, raw, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.Mnemonic == "" {
		return fmt.Errorf("%w: PI_MNEMONIC", ErrConfigMissing)
	}
	if c.Destination == "" {
		return fmt.Errorf("%w: PI_DESTINATION", ErrConfigMissing)
	}
	if err := keys.CheckAddress(c.Destination); err != nil {
		return fmt.Errorf("piclaim: destination: %w", err)
	}
	if c.Amount.IsZero() {
		return fmt.Errorf("%w: PI_AMOUNT", ErrConfigMissing)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: PI_AMOUNT must be positive, got %s", ErrInvalidAmount, c.Amount)
	}
	if c.TargetTime != "" {
		if _, err := time.Parse("15:04:05", c.TargetTime); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTargetTime, c.TargetTime)
		}
	}
	if c.BatchSize <= 0 || c.BatchInterval <= 0 || c.PollInterval <= 0 || c.RetryBudget <= 0 {
		return fmt.Errorf("%w: batch size, intervals, and retry budget must be positive", ErrConfigMissing)
	}
	if c.LeadTime < 0 {
		return fmt.Errorf("%w: lead time must not be negative, got %s", ErrConfigMissing, c.LeadTime)
	}
	return nil
}
