package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
timezone: "America/New_York"
daily_reset_hour: 17
daily_reset_minute: 0
persist_dir: "./data/state"
queue_capacity: 5000
dedup_cache_size: 512
control_addr: ":8090"
control_rate_rps: 10
schema_version: "1.0.0"
tick_values:
  ES: 50.0
accounts:
  - account_id: "acct1"
    max_contracts: 10
    daily_realized_loss_limit: "-1000.00"
    trade_frequency_window: 60s
    trade_frequency_max: 5
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o644))
	return dir
}

// Load reads a YAML file and produces validated per-account rule config.
func TestLoad_ValidConfig(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, 17, cfg.DailyResetHour)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "acct1", cfg.Accounts[0].AccountID)
}

// An account with no matching entry in Accounts still resolves to
// permissive defaults rather than failing (spec §6.4).
func TestRuleConfigFor_UnknownAccount_ReturnsDefaults(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	cfg, err := Load(dir)
	require.NoError(t, err)
	rc := cfg.RuleConfigFor("unknown-account", time.UTC)
	assert.Equal(t, int64(0), rc.MaxContracts)
	assert.True(t, rc.DailyRealizedLossLimit.IsZero())
}

// A configured account's money-string limits parse through money.FromString.
func TestRuleConfigFor_KnownAccount_ParsesLimits(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	cfg, err := Load(dir)
	require.NoError(t, err)
	rc := cfg.RuleConfigFor("acct1", time.UTC)
	assert.Equal(t, int64(10), rc.MaxContracts)
	assert.False(t, rc.DailyRealizedLossLimit.IsZero())
	assert.Equal(t, "-1000.00", rc.DailyRealizedLossLimit.String())
}

// An unparseable timezone string falls back to UTC rather than panicking.
func TestLocation_UnknownTimezone_FallsBackToUTC(t *testing.T) {
	cfg := &Config{Timezone: "Not/A_Zone"}
	loc := cfg.Location(nil)
	assert.Equal(t, time.UTC, loc)
}

// Missing a required field (schema_version) fails validation.
func TestLoad_MissingRequiredField_Errors(t *testing.T) {
	dir := writeConfig(t, `
timezone: "UTC"
persist_dir: "./data/state"
queue_capacity: 100
dedup_cache_size: 100
control_rate_rps: 10
schema_version: ""
`)
	_, err := Load(dir)
	assert.Error(t, err)
}
