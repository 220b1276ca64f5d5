package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/clock"
)

// NewClock supplies the production wall-clock source; tests substitute
// clock.Fake directly, never through this constructor.
func NewClock() clock.Clock {
	return clock.Real{}
}

// NewLocation resolves the configured IANA timezone once at startup,
// shared by the State Manager, rule registry, and timer source so daily
// reset / session-close boundaries agree (spec §4.2, §8 Scenario E).
func NewLocation(cfg *appconfig.Config, logger *zap.Logger) *time.Location {
	return cfg.Location(logger)
}
