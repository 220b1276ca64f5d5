package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/audit"
	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/control"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// shutdownBudget bounds OnStop: every component gets a slice of this
// window to drain (spec §5 Shutdown: "graceful shutdown completes within
// 30 seconds").
const shutdownBudget = 30 * time.Second

// reconcilePoolSize bounds ReconcileAll's worker fan-out (spec §4.2
// Reconciliation).
const reconcilePoolSize = 8

// lifecycleParams collects every component registerLifecycle wires
// together, following the teacher's fx.In-struct convention (see
// internal/events/broker.go's BrokerParams) rather than a long positional
// parameter list.
type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Logger     *zap.Logger
	Config     *appconfig.Config
	Clock      clock.Clock
	Manager    *state.Manager
	Adapter    broker.Adapter
	Queue      *eventcore.Queue
	Dispatcher *eventcore.Dispatcher
	Timer      *clock.TimerSource
	Control    *control.Server
	Audit      *audit.Store `optional:"true"`
}

// registerLifecycle wires every component's Start/Stop into the fx
// lifecycle: broker connect, startup reconciliation, the dispatcher and
// timer-source goroutines, and the control surface on OnStart; a bounded
// graceful drain on OnStop (spec §5 Startup/Shutdown sequences). Daily
// reset runs inside the dispatcher's own TimeTick handling (spec §5
// single-writer invariant), so it needs no lifecycle hook of its own.
func registerLifecycle(p lifecycleParams) {
	runCtx, cancelRun := context.WithCancel(context.Background())
	handler := buildEventHandler(p.Queue, p.Clock, p.Logger)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Audit != nil {
				p.Control.SetHistoryLookup(auditHistoryLookup(p.Audit))
			}

			if err := p.Adapter.Connect(runCtx, handler); err != nil {
				return err
			}

			reconcileStartup(ctx, p.Config, p.Manager, p.Adapter, p.Logger)

			go p.Dispatcher.Run(runCtx)
			go p.Timer.Run(runCtx)

			if err := p.Control.Start(); err != nil {
				return err
			}

			p.Logger.Info("riskguardd: started", zap.String("control_addr", p.Config.ControlAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("riskguardd: shutting down")
			drainCtx, cancelDrain := context.WithTimeout(context.Background(), shutdownBudget)
			defer cancelDrain()

			if err := p.Control.Stop(drainCtx); err != nil {
				p.Logger.Warn("riskguardd: control surface stop error", zap.Error(err))
			}

			cancelRun()
			p.Queue.Close()

			if err := p.Adapter.Disconnect(drainCtx); err != nil {
				p.Logger.Warn("riskguardd: broker disconnect error", zap.Error(err))
			}
			if err := p.Manager.FlushAll(); err != nil {
				p.Logger.Error("riskguardd: flush on shutdown failed", zap.Error(err))
			}
			if p.Audit != nil {
				if err := p.Audit.Close(); err != nil {
					p.Logger.Warn("riskguardd: audit store close error", zap.Error(err))
				}
			}
			return nil
		},
	})
}

// auditHistoryLookup adapts audit.Store.History to control.HistoryLookup.
func auditHistoryLookup(store *audit.Store) control.HistoryLookup {
	const historyLimit = 100
	return func(ctx context.Context, accountID string) ([]interface{}, error) {
		entries, err := store.History(ctx, accountID, historyLimit)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return out, nil
	}
}

// reconcileStartup aligns every known account's in-memory state with the
// broker's authoritative positions before the daemon begins dispatching
// live events (spec §4.2 Reconciliation, §5 Startup). Known accounts are
// whatever persisted state loaded plus every account named in config, so
// a brand-new account with no prior state still gets reconciled.
func reconcileStartup(ctx context.Context, cfg *appconfig.Config, manager *state.Manager, adapter broker.Adapter, logger *zap.Logger) {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(cfg.Accounts))
	for _, id := range manager.AccountIDs() {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, a := range cfg.Accounts {
		if !seen[a.AccountID] {
			seen[a.AccountID] = true
			ids = append(ids, a.AccountID)
		}
	}
	if len(ids) == 0 {
		return
	}

	lister := func(ctx context.Context, accountID string) ([]state.BrokerPositionView, error) {
		snapshots, err := adapter.CurrentPositions(ctx, accountID)
		if err != nil {
			return nil, err
		}
		views := make([]state.BrokerPositionView, 0, len(snapshots))
		for _, s := range snapshots {
			price, err := decimal.NewFromString(s.EntryPrice)
			if err != nil {
				continue
			}
			views = append(views, state.BrokerPositionView{
				PositionID: s.PositionID,
				Symbol:     s.Symbol,
				Side:       state.Side(s.Side),
				Quantity:   s.Quantity,
				EntryPrice: price,
			})
		}
		return views, nil
	}

	for _, result := range manager.ReconcileAll(ctx, ids, lister, reconcilePoolSize) {
		if result.Err != nil {
			logger.Warn("riskguardd: startup reconciliation failed",
				zap.String("account_id", result.AccountID), zap.Error(result.Err))
			continue
		}
		logger.Info("riskguardd: startup reconciliation complete",
			zap.String("account_id", result.AccountID), zap.Int("added", result.Added), zap.Int("removed", result.Removed))
	}
}
