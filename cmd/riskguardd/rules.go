package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/appconfig"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/control"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/riskengine"
	"github.com/kestrel-trading/riskguard/internal/rules"
)

// configStore holds the live appconfig.Config behind a mutex so a hot
// ConfigReload (spec §6.4) can swap it without any downstream component
// holding a stale pointer. riskengine only ever sees configStore.resolve
// as a riskengine.ConfigResolver closure.
type configStore struct {
	mu  sync.RWMutex
	cfg *appconfig.Config
	loc *time.Location
}

// NewConfigStore seeds the store with the config loaded at startup.
func NewConfigStore(cfg *appconfig.Config, loc *time.Location) *configStore {
	return &configStore{cfg: cfg, loc: loc}
}

func (s *configStore) resolve(accountID string) rules.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.RuleConfigFor(accountID, s.loc)
}

// frequencyWindow backs Manager.SetFrequencyWindowFunc (spec §4.3 row 7):
// RecordTrade needs the account's configured window at the moment a Fill
// lands, not just at startup.
func (s *configStore) frequencyWindow(accountID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.cfg.Accounts {
		if a.AccountID == accountID {
			return a.TradeFrequencyWindow
		}
	}
	return 0
}

func (s *configStore) reload(logger *zap.Logger) error {
	cfg, err := appconfig.Load(os.Getenv("RISKGUARD_CONFIG_DIR"))
	if err != nil {
		return err
	}
	loc := cfg.Location(logger)
	s.mu.Lock()
	s.cfg = cfg
	s.loc = loc
	s.mu.Unlock()
	return nil
}

// NewRuleRegistry builds the closed 12-rule set (spec §4.3), parameterized
// by the daily reset schedule the daily-PnL rules need to compute a
// lockout instant.
func NewRuleRegistry(cfg *appconfig.Config, loc *time.Location) []rules.Rule {
	return rules.DefaultRegistry(loc, cfg.DailyResetHour, cfg.DailyResetMinute)
}

// NewConfigResolver exposes configStore.resolve as the riskengine.Engine's
// per-account Config lookup.
func NewConfigResolver(store *configStore) riskengine.ConfigResolver {
	return store.resolve
}

// configReloader implements control.ConfigReloader by enqueuing a
// ConfigReload event rather than swapping configStore directly from the
// HTTP handler's own goroutine (spec §6.2: "emits a ConfigReload event
// into the queue"). The actual swap happens inside the dispatcher-owned
// stage wired in NewDispatcher, so a reload is ordered against every
// other state transition instead of racing one (spec §5).
type configReloader struct {
	queue *eventcore.Queue
	clock clock.Clock
}

func (r *configReloader) ReloadConfig(ctx context.Context) error {
	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeConfigReload, "", r.clock.Now(), eventcore.Payload{
		ConfigKind: "full",
	})
	ev.Source = "control"
	ev.CorrelationID = uuid.NewString()
	return r.queue.Enqueue(ev)
}

// NewConfigReloader wires the control surface's reload_config command
// (spec §6.4 ConfigReload) onto the event queue.
func NewConfigReloader(queue *eventcore.Queue, clk clock.Clock) control.ConfigReloader {
	return &configReloader{queue: queue, clock: clk}
}
