package rules

import (
	"fmt"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// NoStopLossGrace is rule 9: a position with no stop-loss attached past a
// configured grace period is closed (spec §4.3 row 9). Stop-loss
// attachment is detected from an OrderUpdate signal (the state-update
// stage flips Position.StopLossAttached when a stop-type order is
// observed against that position); this rule also fires from TimeTick as
// a polling fallback for a position whose stop-order is never observed
// (spec §9 Open Question). Grace expiry is computed purely from the
// triggering event's own timestamp, never the wall clock.
type NoStopLossGrace struct{}

func (NoStopLossGrace) Name() string { return "NoStopLossGrace" }

func (NoStopLossGrace) AppliesTo(typ eventcore.Type) bool {
	return typ == eventcore.TypeFill || typ == eventcore.TypeOrderUpdate || typ == eventcore.TypeTimeTick
}

func (NoStopLossGrace) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.StopLossGrace <= 0 {
		return nil
	}
	for _, p := range acc.AllPositionsSorted() {
		if p.StopLossAttached {
			continue
		}
		expires := p.OpenedAt.Add(cfg.StopLossGrace)
		if !ev.Timestamp.After(expires) {
			continue
		}
		return &Violation{
			RuleName:   "NoStopLossGrace",
			Severity:   SeverityWarning,
			AccountID:  acc.AccountID,
			EventID:    ev.EventID,
			PositionID: p.PositionID,
			Symbol:     p.Symbol,
			Message:    fmt.Sprintf("position %s has no stop-loss attached %s after grace expiry %s", p.PositionID, ev.Timestamp.Sub(expires), cfg.StopLossGrace),
		}
	}
	return nil
}

func (NoStopLossGrace) Enforcement(v Violation) Action {
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Violation: v}
}
