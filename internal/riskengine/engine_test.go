package riskengine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/rules"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// recordingExecutor captures every Action dispatched to it, standing in
// for the Enforcement Engine so riskengine can be tested without a broker.
type recordingExecutor struct {
	actions []rules.Action
}

func (r *recordingExecutor) Execute(ctx context.Context, accountID string, action rules.Action) error {
	r.actions = append(r.actions, action)
	return nil
}

func newTestManager(t *testing.T) *state.Manager {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	mgr := state.NewManager(state.Config{
		Timezone:        time.UTC,
		DailyResetHour:  0,
		DailyResetMin:   0,
		StaticTickValue: func(string) (float64, bool) { return 1.0, true },
	}, clk, zaptest.NewLogger(t), nil)
	return mgr
}

func testConfig() rules.Config {
	return rules.Config{MaxContracts: 5}
}

// A fill that pushes total quantity over MaxContracts should dispatch
// exactly one ClosePosition action for the excess (spec §8 Scenario A).
func TestEngine_MaxContractsViolation_DispatchesClose(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 6, decimal.NewFromInt(100), time.Now())

	exec := &recordingExecutor{}
	ruleSet := rules.DefaultRegistry(time.UTC, 0, 0)
	engine := New(ruleSet, func(string) rules.Config { return testConfig() }, mgr, exec, zaptest.NewLogger(t))

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 6, Price: "100",
	})

	err := engine.Process(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, exec.actions, 1)
	assert.Equal(t, rules.ActionClosePosition, exec.actions[0].Type)
	assert.Equal(t, "pos1", exec.actions[0].PositionID)
	require.NotNil(t, exec.actions[0].Quantity)
	assert.Equal(t, int64(1), *exec.actions[0].Quantity)
}

// A fill within limits produces no violation and no dispatched action.
func TestEngine_NoViolation_NoAction(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 2, decimal.NewFromInt(100), time.Now())

	exec := &recordingExecutor{}
	ruleSet := rules.DefaultRegistry(time.UTC, 0, 0)
	engine := New(ruleSet, func(string) rules.Config { return testConfig() }, mgr, exec, zaptest.NewLogger(t))

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 2, Price: "100",
	})

	err := engine.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, exec.actions)
}

// A fill arriving during an active lockout is rejected regardless of the
// ordinary rule set, and dispatches a LockoutEnforcement close instead
// (spec §4.4 lockout short-circuit).
func TestEngine_LockedOutAccount_RejectsFill(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 1, decimal.NewFromInt(100), time.Now())
	mgr.SetLockout("acct1", time.Now().Add(1*time.Hour), "daily")

	exec := &recordingExecutor{}
	ruleSet := rules.DefaultRegistry(time.UTC, 0, 0)
	engine := New(ruleSet, func(string) rules.Config { return testConfig() }, mgr, exec, zaptest.NewLogger(t))

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 1, Price: "100",
	})

	err := engine.Process(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, exec.actions, 1)
	assert.Equal(t, "LockoutEnforcement", exec.actions[0].Violation.RuleName)
}

// A nil executor (no Enforcement Engine wired) is a safe no-op, never a
// nil-pointer panic.
func TestEngine_NilExecutor_NoPanic(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AddOrMergePosition("acct1", "pos1", "ES", state.SideLong, 6, decimal.NewFromInt(100), time.Now())
	ruleSet := rules.DefaultRegistry(time.UTC, 0, 0)
	engine := New(ruleSet, func(string) rules.Config { return testConfig() }, mgr, nil, zaptest.NewLogger(t))

	ev := eventcore.New(eventcore.NewEventID(), eventcore.TypeFill, "acct1", time.Now(), eventcore.Payload{
		PositionID: "pos1", Symbol: "ES", Side: eventcore.FillLong, Quantity: 6, Price: "100",
	})
	assert.NoError(t, engine.Process(context.Background(), ev))
}
