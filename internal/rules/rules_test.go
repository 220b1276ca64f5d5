package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/money"
	"github.com/kestrel-trading/riskguard/internal/state"
)

func mustMoney(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.FromString(s)
	require.NoError(t, err)
	return m
}

func newAccount(t *testing.T) *state.AccountState {
	t.Helper()
	return state.NewAccountState("acct1", time.Now())
}

// Spec §8 Scenario A: a fill that pushes total contracts over the limit
// is flagged for closing exactly the excess quantity.
func TestMaxContracts_ExcessOverLimit(t *testing.T) {
	acc := newAccount(t)
	acc.OpenPositions["pos1"] = &state.Position{PositionID: "pos1", Symbol: "ES", Side: state.SideLong, Quantity: 8, OpenedAt: time.Now()}

	cfg := Config{MaxContracts: 5}
	ev := eventcore.New("ev1", eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{Symbol: "ES"})

	v := MaxContracts{}.Evaluate(ev, acc, cfg)
	require.NotNil(t, v)
	assert.Equal(t, int64(3), v.ExcessQuantity)

	action := MaxContracts{}.Enforcement(*v)
	assert.Equal(t, ActionClosePosition, action.Type)
	require.NotNil(t, action.Quantity)
	assert.Equal(t, int64(3), *action.Quantity)
}

// Exactly at the limit produces no violation (inclusive ceiling).
func TestMaxContracts_AtLimit_NoViolation(t *testing.T) {
	acc := newAccount(t)
	acc.OpenPositions["pos1"] = &state.Position{PositionID: "pos1", Symbol: "ES", Side: state.SideLong, Quantity: 5, OpenedAt: time.Now()}
	cfg := Config{MaxContracts: 5}
	ev := eventcore.New("ev1", eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{Symbol: "ES"})
	assert.Nil(t, MaxContracts{}.Evaluate(ev, acc, cfg))
}

// Spec §8 Scenario B: combined exposure breaching the daily loss floor
// flattens the account and sets a lockout to the next local reset.
func TestDailyRealizedLoss_BreachFlattensAndLocks(t *testing.T) {
	acc := newAccount(t)
	acc.RealizedPnLToday = mustMoney(t, "-1200.00")

	r := DailyRealizedLoss{Location: time.UTC, ResetHour: 17, ResetMinute: 0}
	cfg := Config{DailyRealizedLossLimit: mustMoney(t, "-1000.00")}
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := eventcore.New("ev1", eventcore.TypeFill, "acct1", ts, eventcore.Payload{})

	v := r.Evaluate(ev, acc, cfg)
	require.NotNil(t, v)
	assert.False(t, v.LockoutUntil.IsZero())
	assert.True(t, v.LockoutUntil.After(ts))

	action := r.Enforcement(*v)
	assert.Equal(t, ActionFlattenAccount, action.Type)
}

// A zero-value limit means the daily loss rule is disabled, not an
// always-true floor of 0.
func TestDailyRealizedLoss_UnconfiguredLimit_Disabled(t *testing.T) {
	acc := newAccount(t)
	acc.RealizedPnLToday = mustMoney(t, "-50000.00")
	r := DailyRealizedLoss{Location: time.UTC}
	ev := eventcore.New("ev1", eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{})
	assert.Nil(t, r.Evaluate(ev, acc, Config{}))
}

// Spec §8 Scenario D: a single position's unrealized loss breaching the
// per-trade floor is closed, independent of other positions' PnL.
func TestUnrealizedLoss_SinglePositionBreach(t *testing.T) {
	acc := newAccount(t)
	losing := &state.Position{PositionID: "pos1", Symbol: "ES", UnrealizedPnL: mustMoney(t, "-600.00"), OpenedAt: time.Now()}
	winning := &state.Position{PositionID: "pos2", Symbol: "NQ", UnrealizedPnL: mustMoney(t, "800.00"), OpenedAt: time.Now()}
	acc.OpenPositions["pos1"] = losing
	acc.OpenPositions["pos2"] = winning

	cfg := Config{UnrealizedLossLimit: mustMoney(t, "-500.00")}
	ev := eventcore.New("ev1", eventcore.TypePositionUpdate, "acct1", time.Now(), eventcore.Payload{Symbol: "ES"})

	v := UnrealizedLoss{}.Evaluate(ev, acc, cfg)
	require.NotNil(t, v)
	assert.Equal(t, "pos1", v.PositionID)

	ev2 := eventcore.New("ev2", eventcore.TypePositionUpdate, "acct1", time.Now(), eventcore.Payload{Symbol: "NQ"})
	assert.Nil(t, UnrealizedLoss{}.Evaluate(ev2, acc, cfg))
}

// A fill on a configured blocked symbol is flagged for closing, a fill on
// any other symbol is not.
func TestSymbolBlock_BlocksConfiguredSymbolOnly(t *testing.T) {
	acc := newAccount(t)
	cfg := Config{BlockedSymbols: map[string]bool{"CL": true}}

	blocked := eventcore.New("ev1", eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{Symbol: "CL", PositionID: "pos1"})
	v := SymbolBlock{}.Evaluate(blocked, acc, cfg)
	require.NotNil(t, v)
	assert.Equal(t, "CL", v.Symbol)

	allowed := eventcore.New("ev2", eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{Symbol: "ES", PositionID: "pos2"})
	assert.Nil(t, SymbolBlock{}.Evaluate(allowed, acc, cfg))
}

// A broker disconnect always raises an AuthLossGuard alert, never a
// position action.
func TestAuthLossGuard_Disconnect_RaisesAlert(t *testing.T) {
	acc := newAccount(t)
	ev := eventcore.New("ev1", eventcore.TypeConnectionChange, "acct1", time.Now(), eventcore.Payload{
		ConnectionState: eventcore.ConnectionDisconnected,
	})
	v := AuthLossGuard{}.Evaluate(ev, acc, Config{})
	require.NotNil(t, v)
	action := AuthLossGuard{}.Enforcement(*v)
	assert.Equal(t, ActionSendAlert, action.Type)

	reconnected := eventcore.New("ev2", eventcore.TypeConnectionChange, "acct1", time.Now(), eventcore.Payload{
		ConnectionState: eventcore.ConnectionConnected,
	})
	assert.Nil(t, AuthLossGuard{}.Evaluate(reconnected, acc, Config{}))
}
