// Package appconfig loads and validates the daemon's configuration: per-
// account risk rule parameters, the static tick-value table, timezone and
// daily reset schedule, and the event core's capacity limits (spec §6.4).
// Grounded on the teacher's internal/config/config.go viper conventions,
// generalized from a single global Config to multi-account rule
// parameters and validated with go-playground/validator rather than
// hand-rolled field checks.
package appconfig

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/money"
	"github.com/kestrel-trading/riskguard/internal/rules"
)

// supportedSchemaVersions is the range of config schema versions this
// build understands (spec §6.4 ConfigReload: "a reload carrying an
// incompatible schema_version is rejected rather than partially applied").
var supportedSchemaVersions = mustConstraint(">= 1.0.0, < 2.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// validateSchemaVersion rejects a config whose schema_version falls
// outside supportedSchemaVersions, so an operator reload_config with a
// stale or too-new config file fails loudly instead of silently
// misapplying fields (spec §6.4).
func validateSchemaVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("appconfig: invalid schema_version %q: %w", version, err)
	}
	if !supportedSchemaVersions.Check(v) {
		return fmt.Errorf("appconfig: schema_version %q does not satisfy %s", version, supportedSchemaVersions.String())
	}
	return nil
}

// SessionWindowConfig is the YAML/env-friendly mirror of rules.SessionWindow.
type SessionWindowConfig struct {
	DayOfWeek int `mapstructure:"day_of_week" validate:"gte=0,lte=6"`
	StartMin  int `mapstructure:"start_min" validate:"gte=0,lt=1440"`
	EndMin    int `mapstructure:"end_min" validate:"gt=0,lte=1440"`
}

// AccountRules is one account's configured risk parameters (spec §4.3,
// §6.4 per-account overrides).
type AccountRules struct {
	AccountID              string                   `mapstructure:"account_id" validate:"required"`
	MaxContracts           int64                    `mapstructure:"max_contracts" validate:"gte=0"`
	MaxContractsPerSymbol  map[string]int64         `mapstructure:"max_contracts_per_symbol"`
	DailyRealizedLossLimit   string                 `mapstructure:"daily_realized_loss_limit"`
	DailyRealizedProfitLimit string                 `mapstructure:"daily_realized_profit_limit"`
	UnrealizedLossLimit    string                   `mapstructure:"unrealized_loss_limit"`
	UnrealizedProfitLimit  string                   `mapstructure:"unrealized_profit_limit"`
	TradeFrequencyWindow   time.Duration            `mapstructure:"trade_frequency_window"`
	TradeFrequencyMax      int                      `mapstructure:"trade_frequency_max" validate:"gte=0"`
	CooldownLossThreshold  string                   `mapstructure:"cooldown_loss_threshold"`
	CooldownDuration       time.Duration            `mapstructure:"cooldown_duration"`
	StopLossGrace          time.Duration            `mapstructure:"stop_loss_grace"`
	AllowedSessions        []SessionWindowConfig    `mapstructure:"allowed_sessions" validate:"dive"`
	BlockedSymbols         []string                 `mapstructure:"blocked_symbols"`
}

// Config is the full daemon configuration (spec §6.4).
type Config struct {
	Timezone          string         `mapstructure:"timezone" validate:"required"`
	DailyResetHour    int            `mapstructure:"daily_reset_hour" validate:"gte=0,lte=23"`
	DailyResetMinute  int            `mapstructure:"daily_reset_minute" validate:"gte=0,lte=59"`
	PersistDir        string         `mapstructure:"persist_dir" validate:"required"`
	QueueCapacity     int            `mapstructure:"queue_capacity" validate:"gt=0"`
	DedupCacheSize    int            `mapstructure:"dedup_cache_size" validate:"gt=0"`
	TickValues        map[string]float64 `mapstructure:"tick_values"`
	Accounts          []AccountRules `mapstructure:"accounts" validate:"dive"`

	ControlAddr     string `mapstructure:"control_addr"`
	ControlRateRPS  int    `mapstructure:"control_rate_rps" validate:"gt=0"`

	BrokerEventsTopic  string `mapstructure:"broker_events_topic"`
	BrokerCommandTopic string `mapstructure:"broker_command_topic"`

	AuditDSN string `mapstructure:"audit_dsn"`

	SchemaVersion string `mapstructure:"schema_version" validate:"required"`
}

// Load reads configuration from configPath (a directory containing
// config.yaml) and the RISKGUARD_-prefixed environment, applying defaults
// for anything unset, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/riskguard")
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("RISKGUARD")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("appconfig: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshal: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: invalid config: %w", err)
	}
	if err := validateSchemaVersion(cfg.SchemaVersion); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "America/Chicago")
	v.SetDefault("daily_reset_hour", 17)
	v.SetDefault("daily_reset_minute", 0)
	v.SetDefault("persist_dir", "./data/state")
	v.SetDefault("queue_capacity", 10000)
	v.SetDefault("dedup_cache_size", 1024)
	v.SetDefault("control_addr", ":8090")
	v.SetDefault("control_rate_rps", 20)
	v.SetDefault("broker_events_topic", "riskguard.events")
	v.SetDefault("broker_command_topic", "riskguard.commands")
	v.SetDefault("schema_version", "1.0.0")
}

// Location resolves the configured IANA timezone, logging and falling
// back to UTC if it cannot be loaded (spec §4.2's DST-aware reset depends
// on a real *time.Location, never a fixed offset).
func (c *Config) Location(logger *zap.Logger) *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		if logger != nil {
			logger.Warn("appconfig: unknown timezone, falling back to UTC",
				zap.String("timezone", c.Timezone), zap.Error(err))
		}
		return time.UTC
	}
	return loc
}

// RuleConfigFor builds a rules.Config for accountID from the matching
// AccountRules entry, or zero-value defaults if the account has no
// explicit entry (spec §6.4: unconfigured accounts get permissive
// defaults rather than a load failure).
func (c *Config) RuleConfigFor(accountID string, loc *time.Location) rules.Config {
	for _, a := range c.Accounts {
		if a.AccountID == accountID {
			return a.toRulesConfig(loc)
		}
	}
	return rules.Config{SessionLocation: loc}
}

func (a AccountRules) toRulesConfig(loc *time.Location) rules.Config {
	windows := make([]rules.SessionWindow, 0, len(a.AllowedSessions))
	for _, w := range a.AllowedSessions {
		windows = append(windows, rules.SessionWindow{
			DayOfWeek: time.Weekday(w.DayOfWeek),
			StartMin:  w.StartMin,
			EndMin:    w.EndMin,
		})
	}
	blocked := make(map[string]bool, len(a.BlockedSymbols))
	for _, s := range a.BlockedSymbols {
		blocked[s] = true
	}
	cfg := rules.Config{
		MaxContracts:          a.MaxContracts,
		MaxContractsPerSymbol: a.MaxContractsPerSymbol,
		TradeFrequencyWindow:  a.TradeFrequencyWindow,
		TradeFrequencyMax:     a.TradeFrequencyMax,
		CooldownDuration:      a.CooldownDuration,
		StopLossGrace:         a.StopLossGrace,
		AllowedSessions:       windows,
		BlockedSymbols:        blocked,
		SessionLocation:       loc,
	}
	cfg.DailyRealizedLossLimit = parseMoney(a.DailyRealizedLossLimit)
	cfg.DailyRealizedProfitLimit = parseMoney(a.DailyRealizedProfitLimit)
	cfg.UnrealizedLossLimit = parseMoney(a.UnrealizedLossLimit)
	cfg.UnrealizedProfitLimit = parseMoney(a.UnrealizedProfitLimit)
	cfg.CooldownLossThreshold = parseMoney(a.CooldownLossThreshold)
	return cfg
}

// parseMoney parses a decimal string into money.Money, returning the zero
// value for an unset field — rules treat a zero limit as "disabled"
// (e.g. MaxContracts <= 0, cfg.DailyRealizedLossLimit.IsZero()).
func parseMoney(s string) money.Money {
	if s == "" {
		return money.Zero
	}
	m, err := money.FromString(s)
	if err != nil {
		return money.Zero
	}
	return m
}
