package main

import (
	"os"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
)

// newConfig loads the daemon's configuration from RISKGUARD_CONFIG_DIR (a
// directory containing config.yaml), or the working directory / /etc
// defaults appconfig.Load itself falls back to when unset.
func newConfig() (*appconfig.Config, error) {
	return appconfig.Load(os.Getenv("RISKGUARD_CONFIG_DIR"))
}
