package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/money"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// CooldownAfterLoss is rule 8: a losing close beyond a configured
// threshold starts a cooldown during which new fills are immediately
// closed (spec §4.3 row 8, §4.4 Cooldown semantics). A "close event" is a
// Fill carrying a non-empty RealizedPnL payload — the closing leg of a
// position, as opposed to an opening/adding fill.
type CooldownAfterLoss struct{}

func (CooldownAfterLoss) Name() string { return "CooldownAfterLoss" }

func (CooldownAfterLoss) AppliesTo(typ eventcore.Type) bool { return typ == eventcore.TypeFill }

func (CooldownAfterLoss) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.CooldownLossThreshold.IsZero() || ev.Payload.RealizedPnL == "" {
		return nil
	}
	realized, err := money.FromString(ev.Payload.RealizedPnL)
	if err != nil {
		return nil
	}
	if !realized.LessThanOrEqual(cfg.CooldownLossThreshold) {
		return nil
	}
	return &Violation{
		RuleName:         "CooldownAfterLoss",
		Severity:         SeverityInfo,
		CurrentValue:     realized.String(),
		Limit:            cfg.CooldownLossThreshold.String(),
		ExceededBy:       cfg.CooldownLossThreshold.Sub(realized).String(),
		AccountID:        acc.AccountID,
		EventID:          ev.EventID,
		PositionID:       ev.Payload.PositionID,
		Symbol:           ev.Payload.Symbol,
		Message:          fmt.Sprintf("close realized %s breaches cooldown threshold %s", realized, cfg.CooldownLossThreshold),
		CooldownDuration: cfg.CooldownDuration,
	}
}

func (c CooldownAfterLoss) Enforcement(v Violation) Action {
	return Action{Type: ActionStartCooldown, CooldownDuration: v.CooldownDuration, Violation: v}
}
