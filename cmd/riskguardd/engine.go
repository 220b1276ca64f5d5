package main

import (
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/enforcement"
	"github.com/kestrel-trading/riskguard/internal/metrics"
	"github.com/kestrel-trading/riskguard/internal/riskengine"
	"github.com/kestrel-trading/riskguard/internal/rules"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// brokerCallsPerSecond / brokerCallBurst throttle the Enforcement Engine's
// calls into the broker adapter (spec §4.5: "throttled to avoid
// overwhelming the venue during a cascade").
const (
	brokerCallsPerSecond = 10
	brokerCallBurst      = 20
)

// NewEnforcementEngine builds the idempotent action executor (spec §4.5).
func NewEnforcementEngine(adapter broker.Adapter, manager *state.Manager, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *enforcement.Engine {
	return enforcement.New(adapter, manager, clk, logger, brokerCallsPerSecond, brokerCallBurst, m)
}

// NewRiskEngine builds the per-event evaluation/dispatch stage (spec §4.4),
// wired to the Enforcement Engine as its Executor.
func NewRiskEngine(ruleSet []rules.Rule, resolver riskengine.ConfigResolver, manager *state.Manager, enf *enforcement.Engine, logger *zap.Logger) *riskengine.Engine {
	return riskengine.New(ruleSet, resolver, manager, enf, logger)
}
