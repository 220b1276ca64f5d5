package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// NewPersister builds the per-account file persister rooted at the
// configured state directory (spec §4.2 Persistence).
func NewPersister(cfg *appconfig.Config, logger *zap.Logger) (*state.Persister, error) {
	return state.NewPersister(cfg.PersistDir, logger)
}

// NewStateManager builds the Manager, wires its tick-value resolution
// (static config table first, broker adapter second — spec §9 Open
// Question), its per-account frequency window resolver, and loads
// whatever was persisted from a previous run (spec §4.2 "on load").
func NewStateManager(cfg *appconfig.Config, loc *time.Location, clk clock.Clock, logger *zap.Logger, persist *state.Persister, adapter broker.Adapter, store *configStore) (*state.Manager, error) {
	staticTick := func(symbol string) (float64, bool) {
		v, ok := cfg.TickValues[symbol]
		return v, ok
	}
	brokerTick := func(symbol string) (float64, bool) {
		v, err := adapter.TickValue(context.Background(), symbol)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	manager := state.NewManager(state.Config{
		Timezone:        loc,
		DailyResetHour:  cfg.DailyResetHour,
		DailyResetMin:   cfg.DailyResetMinute,
		StaticTickValue: staticTick,
		BrokerTickValue: brokerTick,
	}, clk, logger, persist)

	manager.SetFrequencyWindowFunc(store.frequencyWindow)

	if err := manager.LoadAll(); err != nil {
		return nil, err
	}
	return manager, nil
}
