package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// SymbolBlock is rule 11: a Fill on a configured blocked symbol is closed
// (spec §4.3 row 11).
type SymbolBlock struct{}

func (SymbolBlock) Name() string { return "SymbolBlock" }

func (SymbolBlock) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeFill }

func (SymbolBlock) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if !cfg.BlockedSymbols[ev.Payload.Symbol] {
		return nil
	}
	return &Violation{
		RuleName:   "SymbolBlock",
		Severity:   SeverityWarning,
		AccountID:  acc.AccountID,
		EventID:    ev.EventID,
		PositionID: ev.Payload.PositionID,
		Symbol:     ev.Payload.Symbol,
		Message:    fmt.Sprintf("symbol %s is blocked", ev.Payload.Symbol),
	}
}

func (SymbolBlock) Enforcement(v Violation) Action {
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Violation: v}
}

// AuthLossGuard is rule 12: a broker disconnect always raises an alert,
// no position action (spec §4.3 row 12).
type AuthLossGuard struct{}

func (AuthLossGuard) Name() string { return "AuthLossGuard" }

func (AuthLossGuard) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeConnectionChange }

func (AuthLossGuard) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if ev.Payload.ConnectionState != eventcore.ConnectionDisconnected {
		return nil
	}
	return &Violation{
		RuleName:  "AuthLossGuard",
		Severity:  SeverityInfo,
		AccountID: acc.AccountID,
		EventID:   ev.EventID,
		Message:   "broker connection lost",
	}
}

func (AuthLossGuard) Enforcement(v Violation) Action {
	return Action{Type: ActionSendAlert, AlertSeverity: SeverityInfo, AlertText: v.Message, Violation: v}
}
