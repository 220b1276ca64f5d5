package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/control"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// controlCacheTTL bounds how long a cached query response is served
// before the control surface re-reads the State Manager.
const controlCacheTTL = 2 * time.Second

// shutdownRequester implements control.ShutdownRequester over fx's own
// Shutdowner, so a control-surface request_shutdown command ends the
// fx.App the same way an operator's SIGTERM would (spec §6.2).
type shutdownRequester struct {
	shutdowner fx.Shutdowner
}

func (s shutdownRequester) RequestShutdown(ctx context.Context) error {
	return s.shutdowner.Shutdown()
}

// NewShutdownRequester wires the control surface's request_shutdown
// command to fx's graceful-shutdown path.
func NewShutdownRequester(shutdowner fx.Shutdowner) control.ShutdownRequester {
	return shutdownRequester{shutdowner: shutdowner}
}

// healthReporter implements control.HealthReporter from the queue's depth/
// error_state and every tracked account's own error_state (spec §6.2
// get_health, §7 QueueOverflow safe mode).
type healthReporter struct {
	queue   *eventcore.Queue
	manager *state.Manager
}

func (h *healthReporter) Health() control.HealthStatus {
	status := control.HealthStatus{
		QueueDepth:   h.queue.Depth(),
		QueueHealthy: !h.queue.InErrorState(),
	}
	for _, accountID := range h.manager.AccountIDs() {
		snap := h.manager.Snapshot(accountID)
		if snap.ErrorState {
			status.ErrorState = true
			status.ErrorReason = snap.ErrorReason
			break
		}
	}
	return status
}

// NewHealthReporter builds the control surface's get_health backing.
func NewHealthReporter(queue *eventcore.Queue, manager *state.Manager) control.HealthReporter {
	return &healthReporter{queue: queue, manager: manager}
}

// NewControlServer builds the gin/websocket control surface (spec §6.2).
// *state.Manager already satisfies control.Queries (Snapshot/AccountIDs),
// so it is passed straight through without an adapter type.
func NewControlServer(cfg *appconfig.Config, manager *state.Manager, reloader control.ConfigReloader, shutdown control.ShutdownRequester, health control.HealthReporter, logger *zap.Logger) *control.Server {
	return control.New(cfg.ControlAddr, manager, reloader, shutdown, health, cfg.ControlRateRPS, controlCacheTTL, logger)
}
