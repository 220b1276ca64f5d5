package rules

import (
	"fmt"
	"time"

	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// DailyRealizedLoss is rule 3: combined exposure breaching the configured
// daily loss floor flattens the account and locks out until the next
// local reset (spec §4.3 row 3, §8 Scenario B). `<=` is inclusive. The
// lockout instant is computed from the triggering event's own timestamp,
// never the wall clock, so Evaluate stays pure (spec §8 property 7).
type DailyRealizedLoss struct {
	Location    *time.Location
	ResetHour   int
	ResetMinute int
}

func (DailyRealizedLoss) Name() string { return "DailyRealizedLoss" }

func (DailyRealizedLoss) AppliesTo(typ eventcore.Type) bool {
	return typ == eventcore.TypePositionUpdate || typ == eventcore.TypeFill || typ == eventcore.TypeOrderUpdate
}

func (r DailyRealizedLoss) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.DailyRealizedLossLimit.IsZero() {
		return nil
	}
	combined := acc.CombinedExposure()
	if !combined.LessThanOrEqual(cfg.DailyRealizedLossLimit) {
		return nil
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	until := clock.NextLocalOccurrence(ev.Timestamp, r.ResetHour, r.ResetMinute, loc)
	return &Violation{
		RuleName:     "DailyRealizedLoss",
		Severity:     SeverityCritical,
		CurrentValue: combined.String(),
		Limit:        cfg.DailyRealizedLossLimit.String(),
		ExceededBy:   cfg.DailyRealizedLossLimit.Sub(combined).String(),
		AccountID:    acc.AccountID,
		EventID:      ev.EventID,
		Message:      fmt.Sprintf("combined exposure %s breaches daily loss limit %s", combined, cfg.DailyRealizedLossLimit),
		LockoutUntil: until,
	}
}

func (DailyRealizedLoss) Enforcement(v Violation) Action {
	return Action{Type: ActionFlattenAccount, LockoutUntil: v.LockoutUntil, Violation: v}
}

// DailyRealizedProfit is rule 4: symmetric to rule 3 for a profit ceiling
// (spec §4.3 row 4).
type DailyRealizedProfit struct {
	Location    *time.Location
	ResetHour   int
	ResetMinute int
}

func (DailyRealizedProfit) Name() string { return "DailyRealizedProfit" }

func (DailyRealizedProfit) AppliesTo(typ eventcore.Type) bool {
	return typ == eventcore.TypePositionUpdate || typ == eventcore.TypeFill || typ == eventcore.TypeOrderUpdate
}

func (r DailyRealizedProfit) Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation {
	if cfg.DailyRealizedProfitLimit.IsZero() {
		return nil
	}
	combined := acc.CombinedExposure()
	if !combined.GreaterThanOrEqual(cfg.DailyRealizedProfitLimit) {
		return nil
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	until := clock.NextLocalOccurrence(ev.Timestamp, r.ResetHour, r.ResetMinute, loc)
	return &Violation{
		RuleName:     "DailyRealizedProfit",
		Severity:     SeverityCritical,
		CurrentValue: combined.String(),
		Limit:        cfg.DailyRealizedProfitLimit.String(),
		ExceededBy:   combined.Sub(cfg.DailyRealizedProfitLimit).String(),
		AccountID:    acc.AccountID,
		EventID:      ev.EventID,
		Message:      fmt.Sprintf("combined exposure %s breaches daily profit limit %s", combined, cfg.DailyRealizedProfitLimit),
		LockoutUntil: until,
	}
}

func (DailyRealizedProfit) Enforcement(v Violation) Action {
	return Action{Type: ActionFlattenAccount, LockoutUntil: v.LockoutUntil, Violation: v}
}
