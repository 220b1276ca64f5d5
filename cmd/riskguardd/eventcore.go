package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/metrics"
	"github.com/kestrel-trading/riskguard/internal/riskengine"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// timerInterval is the TimeTick cadence (spec §4.1 TimeTick); session
// close is detected once per day at the configured daily-reset time.
const timerInterval = 1 * time.Minute

// NewQueue builds the bounded, deduplicating priority queue (spec §4.1).
func NewQueue(cfg *appconfig.Config, logger *zap.Logger) (*eventcore.Queue, error) {
	return eventcore.NewQueue(cfg.QueueCapacity, cfg.DedupCacheSize, logger, func(w eventcore.HealthWarning) {
		logger.Warn("riskguardd: event queue at high-water mark",
			zap.Int("depth", w.Depth), zap.Int("capacity", w.Capacity))
	})
}

// NewDispatcher wires the dispatcher's three eventcore.Stage closures: the
// config-reload stage, the State Manager's state-update stage, then the
// Risk Engine's combined evaluate-and-dispatch stage (spec §4.1.b/c
// collapse into one step from the dispatcher's perspective — see
// internal/riskengine.Engine.Process). Running the config swap here,
// rather than from the HTTP handler's own goroutine, keeps it ordered
// against every other state transition the single dispatcher owns (spec
// §5, §6.4 ConfigReload).
func NewDispatcher(queue *eventcore.Queue, manager *state.Manager, engine *riskengine.Engine, store *configStore, m *metrics.Metrics, logger *zap.Logger) *eventcore.Dispatcher {
	stages := []eventcore.Stage{
		func(ctx context.Context, ev eventcore.Event) error {
			if ev.Type != eventcore.TypeConfigReload {
				return nil
			}
			if err := store.reload(logger); err != nil {
				logger.Error("riskguardd: config reload failed", zap.Error(err))
				return err
			}
			logger.Info("riskguardd: config reloaded")
			return nil
		},
		func(ctx context.Context, ev eventcore.Event) error {
			return manager.ApplyEvent(ev)
		},
		engine.Process,
	}
	d := eventcore.NewDispatcher(queue, logger, stages...)
	d.OnEventProcessed(func(ev eventcore.Event, _ error) {
		m.ObserveDispatch(time.Since(ev.Timestamp))
	})
	return d
}

// NewTimerSource builds the TimeTick/SessionTick producer, fanning each
// tick out to every known account (spec §4.1: rules like NoStopLossGrace
// and SessionBlockOutside evaluate per-account against a specific
// account's state, so a tick must carry an AccountID like any other
// event). The session-close time-of-day reuses the daily-reset hour/
// minute: this daemon treats the configured daily reset as the trading
// session's close.
func NewTimerSource(manager *state.Manager, clk clock.Clock, cfg *appconfig.Config, loc *time.Location, queue *eventcore.Queue, logger *zap.Logger) *clock.TimerSource {
	sessionClose := time.Date(0, 1, 1, cfg.DailyResetHour, cfg.DailyResetMinute, 0, 0, time.UTC)

	emit := func(typ eventcore.Type) func(time.Time) {
		return func(now time.Time) {
			for _, accountID := range manager.AccountIDs() {
				ev := eventcore.New(eventcore.NewEventID(), typ, accountID, now, eventcore.Payload{})
				if err := queue.Enqueue(ev); err != nil {
					logger.Error("riskguardd: failed to enqueue timer event",
						zap.String("account_id", accountID), zap.String("type", string(typ)), zap.Error(err))
				}
			}
		}
	}

	return clock.NewTimerSource(clk, timerInterval, loc, sessionClose, emit(eventcore.TypeTimeTick), emit(eventcore.TypeSessionTick))
}
