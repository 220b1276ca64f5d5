package enforcement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/money"
	"github.com/kestrel-trading/riskguard/internal/rules"
	"github.com/kestrel-trading/riskguard/internal/state"
)

func newTestEngine(t *testing.T) (*Engine, *broker.Simulator, *state.Manager) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	mgr := state.NewManager(state.Config{
		Timezone:        time.UTC,
		StaticTickValue: func(string) (float64, bool) { return 1.0, true },
	}, clk, zaptest.NewLogger(t), nil)
	sim := broker.NewSimulator()
	eng := New(sim, mgr, clk, zaptest.NewLogger(t), 1000, 1000, nil)
	return eng, sim, mgr
}

// A confirmed ClosePosition action crystallizes the position's unrealized
// PnL into realized and removes the position from open state (spec §4.5
// confirm step).
func TestExecute_ClosePosition_Confirms(t *testing.T) {
	eng, sim, mgr := newTestEngine(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 2, decimal.NewFromInt(100), time.Now())
	mgr.UpdatePrice("acct1", "ES", decimal.NewFromInt(105), time.Now())
	sim.SeedPositions("acct1", []broker.PositionSnapshot{{PositionID: "pos1", Symbol: "ES", Side: "long", Quantity: 2, EntryPrice: "100"}})

	action := rules.Action{Type: rules.ActionClosePosition, PositionID: "pos1"}
	err := eng.Execute(context.Background(), "acct1", action)
	require.NoError(t, err)

	snap := mgr.Snapshot("acct1")
	_, stillOpen := snap.OpenPositions["pos1"]
	assert.False(t, stillOpen)
	assert.True(t, snap.RealizedPnLToday.Decimal().GreaterThan(decimal.Zero))
}

// A transient adapter failure is retried until it succeeds, rather than
// giving up after one attempt (spec §4.5 retry policy).
func TestExecute_TransientFailure_Retries(t *testing.T) {
	eng, sim, mgr := newTestEngine(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 1, decimal.NewFromInt(100), time.Now())
	sim.SeedPositions("acct1", []broker.PositionSnapshot{{PositionID: "pos1", Symbol: "ES", Side: "long", Quantity: 1, EntryPrice: "100"}})
	sim.FailNextClose(&broker.AdapterError{Class: broker.ErrorTransient, Op: "ClosePosition", Err: assertErr{}})

	action := rules.Action{Type: rules.ActionClosePosition, PositionID: "pos1"}
	err := eng.Execute(context.Background(), "acct1", action)
	require.NoError(t, err)

	snap := mgr.Snapshot("acct1")
	_, stillOpen := snap.OpenPositions["pos1"]
	assert.False(t, stillOpen)
}

// A second identical action while the first is still in flight is
// dropped rather than double-executed (spec §4.5 idempotency).
func TestExecute_DuplicateInFlight_Dropped(t *testing.T) {
	eng, sim, mgr := newTestEngine(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 1, decimal.NewFromInt(100), time.Now())
	sim.SeedPositions("acct1", []broker.PositionSnapshot{{PositionID: "pos1", Symbol: "ES", Side: "long", Quantity: 1, EntryPrice: "100"}})

	// Mark the key in-flight the way Execute would mid-dispatch, then
	// confirm the second call short-circuits without touching the broker.
	eng.mu.Lock()
	eng.inFlight["acct1|close_position|pos1"] = struct{}{}
	eng.mu.Unlock()

	action := rules.Action{Type: rules.ActionClosePosition, PositionID: "pos1"}
	err := eng.Execute(context.Background(), "acct1", action)
	require.NoError(t, err)

	snap := mgr.Snapshot("acct1")
	_, stillOpen := snap.OpenPositions["pos1"]
	assert.True(t, stillOpen, "duplicate in-flight action must not confirm a close")
}

// A set_lockout action never calls the broker at all; it only mutates
// state directly on confirm.
func TestExecute_SetLockout_NoBrokerCall(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 1, decimal.NewFromInt(100), time.Now())

	until := time.Now().Add(1 * time.Hour)
	action := rules.Action{Type: rules.ActionSetLockout, LockoutUntil: until, Violation: rules.Violation{RuleName: "DailyRealizedLoss"}}
	err := eng.Execute(context.Background(), "acct1", action)
	require.NoError(t, err)

	snap := mgr.Snapshot("acct1")
	require.NotNil(t, snap.LockoutUntil)
	assert.True(t, snap.IsLockedOut(time.Now()))
}

// A FlattenAccount action carrying a non-zero LockoutUntil — exactly what
// DailyRealizedLoss/DailyRealizedProfit's Enforcement returns — must set
// the account's lockout on confirmation, not just close positions (spec
// §8 Scenario B: "FlattenAccount then SetLockout... is_locked_out = true").
func TestExecute_FlattenAccount_FromDailyRealizedLoss_SetsLockout(t *testing.T) {
	eng, sim, mgr := newTestEngine(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 2, decimal.NewFromInt(100), time.Now())
	mgr.UpdatePrice("acct1", "ES", decimal.NewFromInt(50), time.Now())
	sim.SeedPositions("acct1", []broker.PositionSnapshot{{PositionID: "pos1", Symbol: "ES", Side: "long", Quantity: 2, EntryPrice: "100"}})

	rule := rules.DailyRealizedLoss{Location: time.UTC, ResetHour: 17, ResetMinute: 0}
	snap := mgr.Snapshot("acct1")
	cfg := rules.Config{DailyRealizedLossLimit: mustMoney(t, "-50")}
	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypePositionUpdate, "acct1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), eventcore.Payload{})
	violation := rule.Evaluate(ev, snap, cfg)
	require.NotNil(t, violation, "combined exposure must breach the configured daily loss limit")

	action := rule.Enforcement(*violation)
	require.Equal(t, rules.ActionFlattenAccount, action.Type)
	require.False(t, action.LockoutUntil.IsZero())

	err := eng.Execute(context.Background(), "acct1", action)
	require.NoError(t, err)

	after := mgr.Snapshot("acct1")
	_, stillOpen := after.OpenPositions["pos1"]
	assert.False(t, stillOpen, "flatten must close every open position")
	require.NotNil(t, after.LockoutUntil)
	assert.True(t, after.IsLockedOut(ev.Timestamp))
}

func mustMoney(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.FromString(s)
	require.NoError(t, err)
	return m
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated transient failure" }
