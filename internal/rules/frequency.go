package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// FrequencyRuleID is the FrequencyWindow key this rule's trade count is
// tracked under (the state-update stage calls Manager.RecordTrade with
// this id for every Fill, before rule evaluation runs — spec §4.2
// record_trade, §4.3 row 7).
const FrequencyRuleID = "TradeFrequencyLimit"

// TradeFrequencyLimit is rule 7: once the rolling window's fill count
// reaches a configured maximum, the just-filled contracts are closed;
// existing positions are left alone (spec §4.3 row 7).
type TradeFrequencyLimit struct{}

func (TradeFrequencyLimit) Name() string { return FrequencyRuleID }

func (TradeFrequencyLimit) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeFill }

func (TradeFrequencyLimit) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.TradeFrequencyMax <= 0 {
		return nil
	}
	w, ok := acc.FrequencyWindows[FrequencyRuleID]
	if !ok || w.TradeCount < cfg.TradeFrequencyMax {
		return nil
	}
	return &Violation{
		RuleName:       FrequencyRuleID,
		Severity:       SeverityWarning,
		CurrentValue:   fmt.Sprintf("%d", w.TradeCount),
		Limit:          fmt.Sprintf("%d", cfg.TradeFrequencyMax),
		ExceededBy:     fmt.Sprintf("%d", w.TradeCount-cfg.TradeFrequencyMax),
		ExcessQuantity: ev.Payload.Quantity,
		AccountID:      acc.AccountID,
		EventID:        ev.EventID,
		PositionID:     ev.Payload.PositionID,
		Symbol:         ev.Payload.Symbol,
		Message:        fmt.Sprintf("fill count %d in window reached max %d", w.TradeCount, cfg.TradeFrequencyMax),
	}
}

func (TradeFrequencyLimit) Enforcement(v Violation) Action {
	qty := v.ExcessQuantity
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Quantity: &qty, Violation: v}
}
