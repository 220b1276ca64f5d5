// Package riskengine orchestrates per-event rule evaluation against the
// live account state: lockout short-circuiting, rule gathering,
// violation prioritization, and bounded cascade re-evaluation (spec
// §4.4). It is the second of the three per-event dispatch stages (spec
// §4.1.b); it never mutates AccountState directly — only through the
// Enforcement Engine's confirmed actions.
package riskengine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/rules"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// maxCascades bounds the re-evaluation loop after an action changes state
// in a way that can trigger further rules, preventing infinite loops
// (spec §4.4 step 6).
const maxCascades = 3

// cascadeRuleNames are re-evaluated after every enforcement execution — a
// close converting unrealized into realized can trip the daily limits.
var cascadeRuleNames = map[string]bool{
	"DailyRealizedLoss":   true,
	"DailyRealizedProfit": true,
}

// Executor dispatches an Action to the Enforcement Engine. Wired by
// cmd/riskguardd to *enforcement.Engine.Execute, kept as an interface so
// riskengine can be tested without a broker adapter.
type Executor interface {
	Execute(ctx context.Context, accountID string, action rules.Action) error
}

// ConfigResolver resolves the active rule Config for an account — account
// parameters can differ and can be hot-reloaded (spec §6.4, ConfigReload).
type ConfigResolver func(accountID string) rules.Config

// Engine is the Risk Engine of spec §4.4.
type Engine struct {
	rules      []rules.Rule
	resolveCfg ConfigResolver
	manager    *state.Manager
	executor   Executor
	logger     *zap.Logger
}

// New builds an Engine over the closed rule set, the account state
// manager, and the action executor.
func New(ruleSet []rules.Rule, resolveCfg ConfigResolver, manager *state.Manager, executor Executor, logger *zap.Logger) *Engine {
	return &Engine{rules: ruleSet, resolveCfg: resolveCfg, manager: manager, executor: executor, logger: logger}
}

// Process is the risk-evaluation + enforcement-dispatch stage wired into
// the Event Core's Dispatcher (spec §4.1.b, §4.1.c combined: a Risk Engine
// decision and its execution are one atomic step from the dispatcher's
// perspective — no other event interleaves).
func (e *Engine) Process(ctx context.Context, ev eventcore.Event) error {
	if ev.Type == eventcore.TypeConfigReload {
		return nil
	}
	acc := e.manager.Account(ev.AccountID)
	cfg := e.resolveCfg(ev.AccountID)

	if acc.IsLockedOut(ev.Timestamp) && ev.Type == eventcore.TypeFill {
		qty := ev.Payload.Quantity
		action := rules.Action{
			Type:       rules.ActionClosePosition,
			PositionID: ev.Payload.PositionID,
			Quantity:   &qty,
			Violation: rules.Violation{
				RuleName:  "LockoutEnforcement",
				Severity:  rules.SeverityCritical,
				AccountID: ev.AccountID,
				EventID:   ev.EventID,
				Message:   "fill rejected during lockout",
			},
		}
		if e.logger != nil {
			e.logger.Warn("riskengine: rejected fill during lockout",
				zap.String("account_id", ev.AccountID), zap.String("event_id", ev.EventID))
		}
		return e.dispatch(ctx, ev.AccountID, action)
	}

	if acc.IsInCooldown(ev.Timestamp) && ev.Type == eventcore.TypeFill {
		qty := ev.Payload.Quantity
		action := rules.Action{
			Type:       rules.ActionClosePosition,
			PositionID: ev.Payload.PositionID,
			Quantity:   &qty,
			Violation: rules.Violation{
				RuleName:  "CooldownEnforcement",
				Severity:  rules.SeverityCritical,
				AccountID: ev.AccountID,
				EventID:   ev.EventID,
				Message:   "fill rejected during cooldown",
			},
		}
		return e.dispatch(ctx, ev.AccountID, action)
	}

	if err := e.evaluateAndDispatch(ctx, ev, cfg); err != nil {
		return err
	}

	for i := 0; i < maxCascades; i++ {
		fired, err := e.cascade(ctx, ev, cfg)
		if err != nil {
			return err
		}
		if !fired {
			break
		}
	}
	return nil
}

// evaluateAndDispatch gathers every rule applying to ev.Type, evaluates
// them all, prioritizes the violations, and executes the single
// highest-priority action (spec §4.4 steps 3-5).
func (e *Engine) evaluateAndDispatch(ctx context.Context, ev eventcore.Event, cfg rules.Config) error {
	acc := e.manager.Account(ev.AccountID)
	violations := e.evaluateAll(ev, acc, cfg, nil)
	if len(violations) == 0 {
		return nil
	}
	top := prioritize(violations)
	rule := e.ruleByName(top.RuleName)
	if rule == nil {
		return nil
	}
	action := rule.Enforcement(top)
	if e.logger != nil {
		e.logger.Info("riskengine: violation", zap.String("rule", top.RuleName),
			zap.String("account_id", top.AccountID), zap.String("event_id", top.EventID),
			zap.String("severity", string(top.Severity)), zap.String("message", top.Message))
	}
	return e.dispatch(ctx, ev.AccountID, action)
}

// cascade re-evaluates only the daily PnL rules after an enforcement
// execution, since closing a position can convert unrealized into
// realized and newly breach the daily limits (spec §4.4 step 6).
func (e *Engine) cascade(ctx context.Context, ev eventcore.Event, cfg rules.Config) (bool, error) {
	acc := e.manager.Account(ev.AccountID)
	violations := e.evaluateAll(ev, acc, cfg, cascadeRuleNames)
	if len(violations) == 0 {
		return false, nil
	}
	top := prioritize(violations)
	rule := e.ruleByName(top.RuleName)
	if rule == nil {
		return false, nil
	}
	action := rule.Enforcement(top)
	if err := e.dispatch(ctx, ev.AccountID, action); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) evaluateAll(ev eventcore.Event, acc *state.AccountState, cfg rules.Config, only map[string]bool) []rules.Violation {
	var out []rules.Violation
	for _, r := range e.rules {
		if only != nil && !only[r.Name()] {
			continue
		}
		if !r.AppliesTo(ev.Type) {
			continue
		}
		if v := r.Evaluate(ev, acc, cfg); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (e *Engine) ruleByName(name string) rules.Rule {
	for _, r := range e.rules {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// prioritize orders violations by severity, then the strict tie-break
// order of spec §4.4 step 5, and returns the highest-priority one.
func prioritize(violations []rules.Violation) rules.Violation {
	sort.SliceStable(violations, func(i, j int) bool {
		si, sj := rules.SeverityRank[violations[i].Severity], rules.SeverityRank[violations[j].Severity]
		if si != sj {
			return si < sj
		}
		return rules.TieBreakOrder[violations[i].RuleName] < rules.TieBreakOrder[violations[j].RuleName]
	})
	return violations[0]
}

func (e *Engine) dispatch(ctx context.Context, accountID string, action rules.Action) error {
	if e.executor == nil {
		return nil
	}
	return e.executor.Execute(ctx, accountID, action)
}
