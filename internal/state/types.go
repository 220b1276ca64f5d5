// Package state implements the authoritative in-memory per-account state
// (spec §3, §4.2): positions, realized PnL, lockouts, frequency windows,
// plus crash-safe persistence, startup reconciliation, and the DST-aware
// daily reset. It is mutated only by the Event Core's single dispatch
// goroutine (spec §5); the manager's mutators still take its RWMutex so
// read-only snapshots see a consistent copy.
package state

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/riskguard/internal/money"
)

// Side mirrors eventcore.FillSide; kept as its own type so this package
// does not import eventcore for a single enum.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long, -1 for short, used in unrealized PnL (spec §3).
func (s Side) Sign() int64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Position is a single open position. Spec §3.
type Position struct {
	PositionID   string          `json:"position_id"`
	AccountID    string          `json:"account_id"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Quantity     int64           `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	UnrealizedPnL money.Money    `json:"unrealized_pnl"`
	OpenedAt     time.Time       `json:"opened_at"`
	LastUpdate   time.Time       `json:"last_update"`

	PendingClose bool `json:"pending_close"`

	StopLossAttached      bool             `json:"stop_loss_attached"`
	StopLossPrice         *decimal.Decimal `json:"stop_loss_price,omitempty"`
	StopLossGraceExpires  *time.Time       `json:"stop_loss_grace_expires,omitempty"`
}

// RecomputeUnrealized sets UnrealizedPnL from CurrentPrice, EntryPrice,
// Quantity, Side and the instrument's tick value, quantized to cents with
// half-up rounding (spec §3: unrealized_pnl formula).
func (p *Position) RecomputeUnrealized(tickValue float64) {
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	qty := decimal.NewFromInt(p.Quantity)
	tv := decimal.NewFromFloat(tickValue)
	signed := diff.Mul(qty).Mul(tv)
	if p.Side == SideShort {
		signed = signed.Neg()
	}
	p.UnrealizedPnL = money.FromDecimal(signed)
}

// FrequencyWindow tracks fills-per-window for TradeFrequencyLimit (rule 7).
// Spec §3: lazily reset on first access after ResetsAt.
type FrequencyWindow struct {
	RuleID     string        `json:"rule_id"`
	WindowStart time.Time    `json:"window_start"`
	Duration   time.Duration `json:"window_duration"`
	TradeCount int           `json:"trade_count"`
	ResetsAt   time.Time     `json:"resets_at"`
}

// touch lazily resets the window if `now` has crossed ResetsAt, then
// increments the trade count. Returns the count after the increment.
func (w *FrequencyWindow) touch(now time.Time) int {
	if !now.Before(w.ResetsAt) {
		w.WindowStart = now
		w.ResetsAt = now.Add(w.Duration)
		w.TradeCount = 0
	}
	w.TradeCount++
	return w.TradeCount
}

// AccountState is the authoritative per-account runtime state. Spec §3.
type AccountState struct {
	AccountID string `json:"account_id"`

	OpenPositions map[string]*Position `json:"open_positions"` // keyed by position_id

	RealizedPnLToday money.Money `json:"realized_pnl_today"`

	LockoutUntil  *time.Time `json:"lockout_until,omitempty"`
	LockoutCause  string     `json:"lockout_cause,omitempty"` // "daily" clears on reset
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	FrequencyWindows map[string]*FrequencyWindow `json:"frequency_windows"`

	LastDailyReset time.Time `json:"last_daily_reset"`

	LastProcessedEventID string `json:"last_processed_event_id"`

	ErrorState  bool   `json:"error_state"`
	ErrorReason string `json:"error_reason,omitempty"`

	// Extensions preserves unknown fields encountered on load so a
	// forward-compatible reader never drops data it doesn't understand
	// (spec §6.3).
	Extensions map[string]interface{} `json:"-"`

	SavedAt time.Time `json:"saved_at"`
}

// NewAccountState builds an empty, just-initialized AccountState.
func NewAccountState(accountID string, now time.Time) *AccountState {
	return &AccountState{
		AccountID:        accountID,
		OpenPositions:    make(map[string]*Position),
		RealizedPnLToday: money.Zero,
		FrequencyWindows: make(map[string]*FrequencyWindow),
		LastDailyReset:   now,
	}
}

// CombinedExposure is realized + sum(unrealized), computed on demand —
// never stored, never allowed to drift (spec §3 invariant).
func (a *AccountState) CombinedExposure() money.Money {
	total := a.RealizedPnLToday
	for _, p := range a.OpenPositions {
		total = total.Add(p.UnrealizedPnL)
	}
	return total
}

// PositionCount is the number of open positions.
func (a *AccountState) PositionCount() int {
	return len(a.OpenPositions)
}

// CountBySymbol sums quantity of open positions for symbol, across sides.
func (a *AccountState) CountBySymbol(symbol string) int64 {
	var total int64
	for _, p := range a.OpenPositions {
		if p.Symbol == symbol {
			total += p.Quantity
		}
	}
	return total
}

// TotalQuantity sums quantity across all open positions (rule 1:
// MaxContracts).
func (a *AccountState) TotalQuantity() int64 {
	var total int64
	for _, p := range a.OpenPositions {
		total += p.Quantity
	}
	return total
}

// IsLockedOut reports whether now is before LockoutUntil.
func (a *AccountState) IsLockedOut(now time.Time) bool {
	return a.LockoutUntil != nil && now.Before(*a.LockoutUntil)
}

// IsInCooldown reports whether now is before CooldownUntil.
func (a *AccountState) IsInCooldown(now time.Time) bool {
	return a.CooldownUntil != nil && now.Before(*a.CooldownUntil)
}

// FrequencyWindowFor returns (creating if absent) the window for ruleID,
// applying its lazy reset (spec §3 FrequencyWindow).
func (a *AccountState) FrequencyWindowFor(ruleID string, dur time.Duration, now time.Time) *FrequencyWindow {
	w, ok := a.FrequencyWindows[ruleID]
	if !ok {
		w = &FrequencyWindow{
			RuleID:      ruleID,
			WindowStart: now,
			Duration:    dur,
			ResetsAt:    now.Add(dur),
		}
		a.FrequencyWindows[ruleID] = w
	}
	return w
}

// PositionsBySymbolSide returns open positions for (symbol, side), oldest
// OpenedAt first — the LIFO-excess rules close from the end of this slice.
func (a *AccountState) PositionsBySymbolSide(symbol string, side Side) []*Position {
	var out []*Position
	for _, p := range a.OpenPositions {
		if p.Symbol == symbol && p.Side == side {
			out = append(out, p)
		}
	}
	sortByOpenedAt(out)
	return out
}

// AllPositionsSorted returns every open position, oldest OpenedAt first.
func (a *AccountState) AllPositionsSorted() []*Position {
	out := make([]*Position, 0, len(a.OpenPositions))
	for _, p := range a.OpenPositions {
		out = append(out, p)
	}
	sortByOpenedAt(out)
	return out
}

func sortByOpenedAt(ps []*Position) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j-1].OpenedAt.After(ps[j].OpenedAt); j-- {
			ps[j-1], ps[j] = ps[j], ps[j-1]
		}
	}
}
