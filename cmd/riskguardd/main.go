// Command riskguardd is the risk-enforcement daemon entrypoint: it wires
// the Event Core, State Manager, Risk Engine, Enforcement Engine, broker
// adapter, and control surface together with go.uber.org/fx, mirroring
// the teacher's cmd/gateway and cmd/main.go provide-modules-then-Run
// convention.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			newLogger,
			newConfig,
			NewClock,
			NewLocation,
			NewConfigStore,
			NewPersister,
			NewBrokerAdapter,
			NewStateManager,
			NewRuleRegistry,
			NewConfigResolver,
			NewConfigReloader,
			NewShutdownRequester,
			NewHealthReporter,
			NewEnforcementEngine,
			NewRiskEngine,
			NewQueue,
			NewDispatcher,
			NewTimerSource,
			NewAuditStore,
			NewControlServer,
			NewPrometheusRegistry,
			NewMetrics,
		),
		fx.Invoke(registerLifecycle, RegisterMetricsHandler),
	)

	app.Run()
}

// newLogger builds the daemon's structured logger (spec ambient stack:
// zap, injected explicitly rather than a package-level global).
func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
