package state

import (
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/money"
)

// CheckDailyReset resets accountID's daily state if `now` has crossed the
// most recent local reset-time occurrence since LastDailyReset (spec §4.2
// Daily reset). Performed atomically: realized_pnl_today zeroed, a
// daily-caused lockout cleared, daily frequency windows reset, and
// LastDailyReset set to the exact local-reset-time instant — never a
// fixed UTC offset (spec §8 Scenario E, DST safety). Called from
// ApplyEvent on every TimeTick (spec §4.2: "a scheduled check runs every
// minute"), so it runs on the dispatcher goroutine like every other state
// mutation — no second writer ever touches AccountState (spec §5).
func (m *Manager) CheckDailyReset(accountID string, now time.Time) bool {
	lastOccurrence := clock.LastLocalOccurrence(now, m.resetHour, m.resetMinute, m.location)

	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)

	if !a.LastDailyReset.Before(lastOccurrence) {
		return false
	}

	a.RealizedPnLToday = money.Zero
	if a.LockoutCause == "daily" {
		a.LockoutUntil = nil
		a.LockoutCause = ""
	}
	for _, w := range a.FrequencyWindows {
		w.WindowStart = now
		w.ResetsAt = now.Add(w.Duration)
		w.TradeCount = 0
	}
	a.LastDailyReset = lastOccurrence

	if m.logger != nil {
		m.logger.Info("state: daily reset applied",
			zap.String("account_id", accountID), zap.Time("reset_instant", lastOccurrence))
	}
	m.markDirty(accountID, true)
	return true
}
