package main

import (
	"context"
	"os"

	gmbroker "go-micro.dev/v4/broker"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/broker"
)

// NewBrokerAdapter selects the BrokerAdapter implementation (spec §6.1).
// RISKGUARD_BROKER=micro wires the live go-micro-backed adapter against
// the configured event/command topics; anything else (including local
// runs with no venue connection) defaults to the deterministic in-memory
// Simulator, mirroring the teacher's events.NewBroker default-to-HTTP
// fallback for an unrecognized broker type.
func NewBrokerAdapter(cfg *appconfig.Config, logger *zap.Logger) broker.Adapter {
	if os.Getenv("RISKGUARD_BROKER") != "micro" {
		return broker.NewSimulator()
	}

	b := gmbroker.NewBroker()
	tickValue := func(ctx context.Context, symbol string) (float64, error) {
		if tv, ok := cfg.TickValues[symbol]; ok {
			return tv, nil
		}
		return 1.0, nil
	}
	return broker.NewMicroAdapter(b, cfg.BrokerEventsTopic, cfg.BrokerCommandTopic, tickValue, logger)
}
