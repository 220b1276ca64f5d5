package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
)

// TestApp_StartsAndStopsCleanly wires every provider the same way main()
// does, overriding only the control-surface address and persist directory
// so the smoke test never touches a real port or the working directory
// (mirrors the teacher's tests/integration/gateway/gateway_test.go
// fx/fxtest wiring pattern).
func TestApp_StartsAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()

	testLogger := func() (*zap.Logger, error) { return zaptest.NewLogger(t), nil }

	app := fxtest.New(t,
		fx.Provide(
			testLogger,
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
		fx.Decorate(func(cfg *appconfig.Config) *appconfig.Config {
			clone := *cfg
			clone.ControlAddr = "127.0.0.1:0"
			clone.PersistDir = dir
			return &clone
		}),
		fx.Invoke(registerLifecycle),
	)

	require.NotPanics(t, func() {
		app.RequireStart()
		time.Sleep(10 * time.Millisecond)
		app.RequireStop()
	})
}
