package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// UnrealizedLoss is rule 5: any single open position's unrealized PnL
// breaching a per-trade floor is closed (spec §4.3 row 5, §8 Scenario D).
type UnrealizedLoss struct{}

func (UnrealizedLoss) Name() string { return "UnrealizedLoss" }

func (UnrealizedLoss) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypePositionUpdate }

func (UnrealizedLoss) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.UnrealizedLossLimit.IsZero() {
		return nil
	}
	for _, p := range acc.AllPositionsSorted() {
		if p.Symbol != ev.Payload.Symbol {
			continue
		}
		if !p.UnrealizedPnL.LessThanOrEqual(cfg.UnrealizedLossLimit) {
			continue
		}
		return &Violation{
			RuleName:     "UnrealizedLoss",
			Severity:     SeverityWarning,
			CurrentValue: p.UnrealizedPnL.String(),
			Limit:        cfg.UnrealizedLossLimit.String(),
			ExceededBy:   cfg.UnrealizedLossLimit.Sub(p.UnrealizedPnL).String(),
			AccountID:    acc.AccountID,
			EventID:      ev.EventID,
			PositionID:   p.PositionID,
			Symbol:       p.Symbol,
			Message:      fmt.Sprintf("position %s unrealized %s breaches per-trade loss limit %s", p.PositionID, p.UnrealizedPnL, cfg.UnrealizedLossLimit),
		}
	}
	return nil
}

func (UnrealizedLoss) Enforcement(v Violation) Action {
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Violation: v}
}

// UnrealizedProfit is rule 6: symmetric to rule 5 for a per-trade profit
// ceiling (spec §4.3 row 6).
type UnrealizedProfit struct{}

func (UnrealizedProfit) Name() string { return "UnrealizedProfit" }

func (UnrealizedProfit) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypePositionUpdate }

func (UnrealizedProfit) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.UnrealizedProfitLimit.IsZero() {
		return nil
	}
	for _, p := range acc.AllPositionsSorted() {
		if p.Symbol != ev.Payload.Symbol {
			continue
		}
		if !p.UnrealizedPnL.GreaterThanOrEqual(cfg.UnrealizedProfitLimit) {
			continue
		}
		return &Violation{
			RuleName:     "UnrealizedProfit",
			Severity:     SeverityWarning,
			CurrentValue: p.UnrealizedPnL.String(),
			Limit:        cfg.UnrealizedProfitLimit.String(),
			ExceededBy:   p.UnrealizedPnL.Sub(cfg.UnrealizedProfitLimit).String(),
			AccountID:    acc.AccountID,
			EventID:      ev.EventID,
			PositionID:   p.PositionID,
			Symbol:       p.Symbol,
			Message:      fmt.Sprintf("position %s unrealized %s breaches per-trade profit limit %s", p.PositionID, p.UnrealizedPnL, cfg.UnrealizedProfitLimit),
		}
	}
	return nil
}

func (UnrealizedProfit) Enforcement(v Violation) Action {
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Violation: v}
}
