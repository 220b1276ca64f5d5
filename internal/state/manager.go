package state

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/money"
	riskerrors "github.com/kestrel-trading/riskguard/pkg/errors"
)

// TickValueFunc resolves the dollar value of one unit of price movement per
// contract for a symbol. Spec §6.1/§9: the static config table (if it has
// an entry) wins over the broker-provided value — see NewManager.
type TickValueFunc func(symbol string) (float64, bool)

// Manager is the authoritative State Manager (spec §4.2). The account map
// is guarded by a RWMutex so the read-only control-surface queries (§6.2)
// take consistent snapshots; a query waits only while a mutation holds the
// lock. The dispatcher itself is the only writer and never contends with
// another writer (spec §5).
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*AccountState

	clock        clock.Clock
	logger       *zap.Logger
	staticTick   TickValueFunc
	brokerTick   TickValueFunc
	location     *time.Location
	resetHour    int
	resetMinute  int

	persist *Persister

	frequencyWindowFor func(accountID string) time.Duration
}

// SetFrequencyWindowFunc wires the per-account trade-frequency window
// resolver used by ApplyEvent when recording a Fill (spec §4.3 row 7).
func (m *Manager) SetFrequencyWindowFunc(fn func(accountID string) time.Duration) {
	m.frequencyWindowFor = fn
}

// Config bundles the Manager's construction-time parameters (spec §6.4).
type Config struct {
	Timezone        *time.Location
	DailyResetHour  int
	DailyResetMin   int
	StaticTickValue TickValueFunc
	BrokerTickValue TickValueFunc
}

// NewManager builds a Manager. persist may be nil for tests that don't
// exercise persistence.
func NewManager(cfg Config, clk clock.Clock, logger *zap.Logger, persist *Persister) *Manager {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.DailyResetHour == 0 && cfg.DailyResetMin == 0 {
		cfg.DailyResetHour = 17
	}
	return &Manager{
		accounts:    make(map[string]*AccountState),
		clock:       clk,
		logger:      logger,
		staticTick:  cfg.StaticTickValue,
		brokerTick:  cfg.BrokerTickValue,
		location:    cfg.Timezone,
		resetHour:   cfg.DailyResetHour,
		resetMinute: cfg.DailyResetMin,
		persist:     persist,
	}
}

// tickValue resolves a symbol's tick value, static-table-first (§9 Open
// Question: "the static table is authoritative if present").
func (m *Manager) tickValue(symbol string) float64 {
	if m.staticTick != nil {
		if v, ok := m.staticTick(symbol); ok {
			return v
		}
	}
	if m.brokerTick != nil {
		if v, ok := m.brokerTick(symbol); ok {
			return v
		}
	}
	return 1
}

// Account returns the account state, creating an empty one if absent.
// Callers inside the dispatcher get the live pointer; everything else
// should use Snapshot.
func (m *Manager) Account(accountID string) *AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountLocked(accountID)
}

func (m *Manager) accountLocked(accountID string) *AccountState {
	a, ok := m.accounts[accountID]
	if !ok {
		a = NewAccountState(accountID, m.clock.Now())
		m.accounts[accountID] = a
	}
	return a
}

// Snapshot returns a deep copy of the account state for read-only queries
// (§6.2), never blocking the dispatcher for longer than the copy itself.
func (m *Manager) Snapshot(accountID string) *AccountState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return NewAccountState(accountID, m.clock.Now())
	}
	return a.clone()
}

func (a *AccountState) clone() *AccountState {
	out := *a
	out.OpenPositions = make(map[string]*Position, len(a.OpenPositions))
	for id, p := range a.OpenPositions {
		cp := *p
		out.OpenPositions[id] = &cp
	}
	out.FrequencyWindows = make(map[string]*FrequencyWindow, len(a.FrequencyWindows))
	for id, w := range a.FrequencyWindows {
		cw := *w
		out.FrequencyWindows[id] = &cw
	}
	return &out
}

// PositionIDs returns the ids of every open position for accountID, used
// by FlattenAccount confirmation to close each one individually.
func (m *Manager) PositionIDs(accountID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(a.OpenPositions))
	for id := range a.OpenPositions {
		ids = append(ids, id)
	}
	return ids
}

// AccountIDs returns every account currently tracked.
func (m *Manager) AccountIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	return ids
}

// AddOrMergePosition applies a Fill: creates a position or merges into the
// existing one keyed by (account, symbol, side), weighted-averaging the
// entry price (spec §4.2).
func (m *Manager) AddOrMergePosition(accountID, positionID, symbol string, side Side, qty int64, price decimal.Decimal, now time.Time) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)

	for _, p := range a.OpenPositions {
		if p.Symbol == symbol && p.Side == side {
			totalQty := p.Quantity + qty
			weighted := p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity)).
				Add(price.Mul(decimal.NewFromInt(qty))).
				Div(decimal.NewFromInt(totalQty))
			p.EntryPrice = weighted
			p.Quantity = totalQty
			p.LastUpdate = now
			p.RecomputeUnrealized(m.tickValue(symbol))
			m.markDirty(accountID, false)
			return p
		}
	}

	p := &Position{
		PositionID:   positionID,
		AccountID:    accountID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   price,
		CurrentPrice: price,
		OpenedAt:     now,
		LastUpdate:   now,
	}
	p.RecomputeUnrealized(m.tickValue(symbol))
	a.OpenPositions[positionID] = p
	m.markDirty(accountID, false)
	return p
}

// UpdatePrice recomputes unrealized PnL for every open position in symbol
// (spec §4.2 update_price).
func (m *Manager) UpdatePrice(accountID, symbol string, price decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	for _, p := range a.OpenPositions {
		if p.Symbol == symbol {
			p.CurrentPrice = price
			p.LastUpdate = now
			p.RecomputeUnrealized(m.tickValue(symbol))
		}
	}
	m.markDirty(accountID, false)
}

// ClosePosition removes a position and adds realized to RealizedPnLToday
// (spec §4.2 close_position). Only called from a confirmed close — never
// optimistically (spec §4.5 state update ordering).
func (m *Manager) ClosePosition(accountID, positionID string, realized money.Money, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	delete(a.OpenPositions, positionID)
	a.RealizedPnLToday = a.RealizedPnLToday.Add(realized)
	m.markDirty(accountID, true)
}

// ReducePosition removes qty contracts from a position (a partial close
// confirmation), adding realized PnL for the reduced portion. If qty
// equals the full position it is removed entirely.
func (m *Manager) ReducePosition(accountID, positionID string, qty int64, realized money.Money, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	p, ok := a.OpenPositions[positionID]
	if !ok {
		return
	}
	a.RealizedPnLToday = a.RealizedPnLToday.Add(realized)
	if qty >= p.Quantity {
		delete(a.OpenPositions, positionID)
	} else {
		p.Quantity -= qty
		p.LastUpdate = now
		p.PendingClose = false
		p.RecomputeUnrealized(m.tickValue(p.Symbol))
	}
	m.markDirty(accountID, true)
}

// MarkPendingClose flags a position as awaiting enforcement confirmation.
// Set true BEFORE the adapter call is dispatched (spec §4.5 ordering).
func (m *Manager) MarkPendingClose(accountID, positionID string, pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	if p, ok := a.OpenPositions[positionID]; ok {
		p.PendingClose = pending
	}
	m.markDirty(accountID, false)
}

// SetLockout sets LockoutUntil, only ever advancing forward or clearing on
// daily reset (spec §3 invariant, §8 property 4: lockout monotonicity).
func (m *Manager) SetLockout(accountID string, until time.Time, cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	if a.LockoutUntil != nil && !until.After(*a.LockoutUntil) {
		if m.logger != nil {
			m.logger.Warn("state: ignoring non-advancing lockout",
				zap.String("account_id", accountID), zap.Time("requested_until", until),
				zap.Time("current_until", *a.LockoutUntil))
		}
		return
	}
	a.LockoutUntil = &until
	a.LockoutCause = cause
	m.markDirty(accountID, true)
}

// StartCooldown sets CooldownUntil to now+d.
func (m *Manager) StartCooldown(accountID string, d time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	until := now.Add(d)
	a.CooldownUntil = &until
	m.markDirty(accountID, false)
}

// RecordTrade increments ruleID's frequency window and returns the count
// after the increment (spec §4.2 record_trade, §3 FrequencyWindow).
func (m *Manager) RecordTrade(accountID, ruleID string, windowDur time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	w := a.FrequencyWindowFor(ruleID, windowDur, now)
	count := w.touch(now)
	m.markDirty(accountID, false)
	return count
}

// MarkStopLossAttached flips StopLossAttached true for positionID,
// observed from an OrderUpdate carrying a stop-type order against that
// position (spec §9 Open Question: NoStopLossGrace detection).
func (m *Manager) MarkStopLossAttached(accountID, positionID string, price *decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	if p, ok := a.OpenPositions[positionID]; ok {
		p.StopLossAttached = true
		p.StopLossPrice = price
	}
	m.markDirty(accountID, false)
}

// SetErrorState records the safe-mode flag (spec §7 QueueOverflow).
func (m *Manager) SetErrorState(accountID string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	a.ErrorState = true
	a.ErrorReason = reason
	m.markDirty(accountID, true)
}

// SetLastProcessedEventID records dedup-across-restarts bookkeeping.
func (m *Manager) SetLastProcessedEventID(accountID, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)
	a.LastProcessedEventID = eventID
	m.markDirty(accountID, false)
}

// markDirty schedules a persistence flush: immediate+fsync for critical
// mutations, debounced for routine ones (spec §4.2 Persistence). Must be
// called with m.mu held.
func (m *Manager) markDirty(accountID string, critical bool) {
	if m.persist == nil {
		return
	}
	a := m.accounts[accountID]
	snap := a.clone()
	if critical {
		m.persist.FlushCritical(snap)
	} else {
		m.persist.ScheduleDebounced(snap)
	}
}

// FlushAll persists every account synchronously with fsync — called on
// graceful shutdown (spec §4.2 Shutdown, §5 Shutdown budget).
func (m *Manager) FlushAll() error {
	m.mu.RLock()
	snaps := make([]*AccountState, 0, len(m.accounts))
	for _, a := range m.accounts {
		snaps = append(snaps, a.clone())
	}
	m.mu.RUnlock()

	if m.persist == nil {
		return nil
	}
	var firstErr error
	for _, snap := range snaps {
		if err := m.persist.FlushCritical(snap); err != nil && firstErr == nil {
			firstErr = riskerrors.Wrap(err, riskerrors.StateInconsistency, "flush on shutdown failed")
		}
	}
	return firstErr
}

// LoadAll loads every persisted account file found in the state directory
// into the manager (spec §4.2 Persistence "on load").
func (m *Manager) LoadAll() error {
	if m.persist == nil {
		return nil
	}
	loaded, err := m.persist.LoadAll()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range loaded {
		m.accounts[id] = a
	}
	return nil
}
