package rules

import (
	"fmt"
	"time"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// SessionBlockOutside is rule 10: a Fill outside the configured allowed
// trading days/times is closed; the SessionTick event (emitted once daily
// by the timer source at the configured session-close time) always
// flattens the account (spec §4.3 row 10).
type SessionBlockOutside struct{}

func (SessionBlockOutside) Name() string { return "SessionBlockOutside" }

func (SessionBlockOutside) AppliesTo(typ eventcore.Type) bool {
	return typ == eventcore.TypeFill || typ == eventcore.TypeSessionTick
}

func (SessionBlockOutside) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if ev.Type == eventcore.TypeSessionTick {
		return &Violation{
			RuleName:  "SessionBlockOutside",
			Severity:  SeverityCritical,
			AccountID: acc.AccountID,
			EventID:   ev.EventID,
			Message:   "session close reached, flattening account",
		}
	}

	if len(cfg.AllowedSessions) == 0 {
		return nil
	}
	loc := cfg.SessionLocation
	if loc == nil {
		loc = time.UTC
	}
	local := ev.Timestamp.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	for _, w := range cfg.AllowedSessions {
		if w.DayOfWeek != local.Weekday() {
			continue
		}
		if minuteOfDay >= w.StartMin && minuteOfDay < w.EndMin {
			return nil
		}
	}
	return &Violation{
		RuleName:   "SessionBlockOutside",
		Severity:   SeverityCritical,
		AccountID:  acc.AccountID,
		EventID:    ev.EventID,
		PositionID: ev.Payload.PositionID,
		Symbol:     ev.Payload.Symbol,
		Message:    fmt.Sprintf("fill at %s is outside allowed trading sessions", local),
	}
}

func (SessionBlockOutside) Enforcement(v Violation) Action {
	if v.PositionID == "" {
		return Action{Type: ActionFlattenAccount, Violation: v}
	}
	return Action{Type: ActionClosePosition, PositionID: v.PositionID, Violation: v}
}
