package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/money"
)

func newApplyTestManager(t *testing.T) *Manager {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewManager(Config{
		Timezone:        time.UTC,
		StaticTickValue: func(string) (float64, bool) { return 1.0, true },
	}, clk, zaptest.NewLogger(t), nil)
}

// A Fill event opens a position and increments the trade-frequency window
// in one ApplyEvent call, so a rule evaluated right after sees both
// effects (spec §4.1.a).
func TestApplyEvent_Fill_OpensPositionAndRecordsTrade(t *testing.T) {
	m := newApplyTestManager(t)
	m.SetFrequencyWindowFunc(func(string) time.Duration { return 1 * time.Hour })

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 3, Price: "100.50",
	})
	require.NoError(t, m.ApplyEvent(ev))

	snap := m.Snapshot("acct1")
	require.Contains(t, snap.OpenPositions, "pos1")
	assert.Equal(t, int64(3), snap.OpenPositions["pos1"].Quantity)
	require.Contains(t, snap.FrequencyWindows, FrequencyWindowRuleID)
	assert.Equal(t, 1, snap.FrequencyWindows[FrequencyWindowRuleID].TradeCount)
}

// A PositionUpdate event re-marks the position's price and recomputes its
// unrealized PnL.
func TestApplyEvent_PositionUpdate_RecomputesUnrealized(t *testing.T) {
	m := newApplyTestManager(t)
	fill := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 2, Price: "100.00",
	})
	require.NoError(t, m.ApplyEvent(fill))

	update := eventcore.New(eventcore.NewEventID(), eventcore.TypePositionUpdate, "acct1", time.Now(), eventcore.Payload{
		Symbol: "ES", CurrentPrice: "105.00",
	})
	require.NoError(t, m.ApplyEvent(update))

	snap := m.Snapshot("acct1")
	assert.Equal(t, "10.00", snap.OpenPositions["pos1"].UnrealizedPnL.String())
}

// An OrderUpdate for a stop-type order flips StopLossAttached true, used
// by NoStopLossGrace (rule 9).
func TestApplyEvent_StopOrderUpdate_MarksStopLossAttached(t *testing.T) {
	m := newApplyTestManager(t)
	fill := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 1, Price: "100.00",
	})
	require.NoError(t, m.ApplyEvent(fill))

	order := eventcore.New(eventcore.NewEventID(), eventcore.TypeOrderUpdate, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", IsStopOrder: true, StopPrice: "95.00",
	})
	require.NoError(t, m.ApplyEvent(order))

	snap := m.Snapshot("acct1")
	assert.True(t, snap.OpenPositions["pos1"].StopLossAttached)
	require.NotNil(t, snap.OpenPositions["pos1"].StopLossPrice)
	assert.Equal(t, "95.00", snap.OpenPositions["pos1"].StopLossPrice.String())
}

// A TimeTick within the same trading day as the account's last reset
// changes nothing: no reset boundary has been crossed yet.
func TestApplyEvent_TimeTick_SameDay_NoStateMutation(t *testing.T) {
	m := newApplyTestManager(t)
	m.Account("acct1") // seeds LastDailyReset at the fake clock's 2026-03-01 09:00 UTC

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeTimeTick, "acct1", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), eventcore.Payload{})
	require.NoError(t, m.ApplyEvent(ev))

	snap := m.Snapshot("acct1")
	assert.Empty(t, snap.OpenPositions)
	assert.True(t, snap.LastDailyReset.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
}

// A TimeTick that crosses the configured reset hour applies the daily
// reset inline, since it runs through the same ApplyEvent path as every
// other event (spec §4.2 Daily reset, §5 single-writer invariant).
func TestApplyEvent_TimeTick_CrossesResetBoundary_AppliesDailyReset(t *testing.T) {
	m := newApplyTestManager(t)
	m.Account("acct1")
	m.SetFrequencyWindowFunc(func(string) time.Duration { return 1 * time.Hour })

	fill := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 1, Price: "100.00",
	})
	require.NoError(t, m.ApplyEvent(fill))
	loss, err := money.FromString("-25.00")
	require.NoError(t, err)
	m.Account("acct1").RealizedPnLToday = loss

	tick := eventcore.New(eventcore.NewEventID(), eventcore.TypeTimeTick, "acct1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), eventcore.Payload{})
	require.NoError(t, m.ApplyEvent(tick))

	snap := m.Snapshot("acct1")
	assert.True(t, snap.RealizedPnLToday.IsZero())
	assert.True(t, snap.LastDailyReset.Equal(time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, snap.FrequencyWindows[FrequencyWindowRuleID].TradeCount)
}
