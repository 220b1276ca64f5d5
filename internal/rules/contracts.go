package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// MaxContracts is rule 1: total open quantity across the account must not
// exceed a configured ceiling; excess is closed LIFO by opened_at (spec
// §4.3 row 1, §8 Scenario A).
type MaxContracts struct{}

func (MaxContracts) Name() string { return "MaxContracts" }

func (MaxContracts) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeFill }

func (MaxContracts) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.MaxContracts <= 0 {
		return nil
	}
	total := acc.TotalQuantity()
	if total <= cfg.MaxContracts {
		return nil
	}
	excess := total - cfg.MaxContracts
	newest := newestPosition(acc.AllPositionsSorted())
	if newest == nil {
		return nil
	}
	if excess > newest.Quantity {
		excess = newest.Quantity
	}
	return &Violation{
		RuleName:       "MaxContracts",
		Severity:       SeverityWarning,
		CurrentValue:   fmt.Sprintf("%d", total),
		Limit:          fmt.Sprintf("%d", cfg.MaxContracts),
		ExceededBy:     fmt.Sprintf("%d", excess),
		ExcessQuantity: excess,
		AccountID:      acc.AccountID,
		EventID:        ev.EventID,
		PositionID:     newest.PositionID,
		Symbol:         newest.Symbol,
		Message:        fmt.Sprintf("total contracts %d exceeds limit %d", total, cfg.MaxContracts),
	}
}

func (MaxContracts) Enforcement(v Violation) Action {
	qty := v.ExcessQuantity
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Quantity: &qty, Violation: v}
}

// MaxContractsPerInstrument is rule 2: per-symbol quantity ceiling, excess
// closed LIFO for that symbol only (spec §4.3 row 2).
type MaxContractsPerInstrument struct{}

func (MaxContractsPerInstrument) Name() string { return "MaxContractsPerInstrument" }

func (MaxContractsPerInstrument) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeFill }

func (MaxContractsPerInstrument) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	symbol := ev.Payload.Symbol
	limit, ok := cfg.MaxContractsPerSymbol[symbol]
	if !ok || limit <= 0 {
		return nil
	}
	count := acc.CountBySymbol(symbol)
	if count <= limit {
		return nil
	}
	excess := count - limit
	candidates := positionsForSymbol(acc, symbol)
	newest := newestPosition(candidates)
	if newest == nil {
		return nil
	}
	if excess > newest.Quantity {
		excess = newest.Quantity
	}
	return &Violation{
		RuleName:       "MaxContractsPerInstrument",
		Severity:       SeverityWarning,
		CurrentValue:   fmt.Sprintf("%d", count),
		Limit:          fmt.Sprintf("%d", limit),
		ExceededBy:     fmt.Sprintf("%d", excess),
		ExcessQuantity: excess,
		AccountID:      acc.AccountID,
		EventID:        ev.EventID,
		PositionID:     newest.PositionID,
		Symbol:         symbol,
		Message:        fmt.Sprintf("%s contracts %d exceeds per-instrument limit %d", symbol, count, limit),
	}
}

func (MaxContractsPerInstrument) Enforcement(v Violation) Action {
	qty := v.ExcessQuantity
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Quantity: &qty, Violation: v}
}

func positionsForSymbol(acc *state.AccountState, symbol string) []*state.Position {
	all := acc.AllPositionsSorted()
	out := make([]*state.Position, 0, len(all))
	for _, p := range all {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// newestPosition returns the most-recently-opened position from a slice
// already sorted oldest-first (LIFO excess-close selection).
func newestPosition(sorted []*state.Position) *state.Position {
	if len(sorted) == 0 {
		return nil
	}
	return sorted[len(sorted)-1]
}
