package state

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
)

// ApplyEvent is the dispatcher's state-update stage (spec §4.1.a): it
// mutates AccountState from the event payload before rule evaluation
// runs, so every rule sees state that already reflects the event that
// triggered it (e.g. TradeFrequencyLimit reads a window already
// incremented by this same Fill).
func (m *Manager) ApplyEvent(ev eventcore.Event) error {
	switch ev.Type {
	case eventcore.TypeFill:
		return m.applyFill(ev)
	case eventcore.TypePositionUpdate:
		m.applyPositionUpdate(ev)
	case eventcore.TypeOrderUpdate:
		m.applyOrderUpdate(ev)
	case eventcore.TypeTimeTick:
		m.CheckDailyReset(ev.AccountID, ev.Timestamp)
	case eventcore.TypeConfigReload, eventcore.TypeConnectionChange,
		eventcore.TypeSessionTick, eventcore.TypeHeartbeat:
		// No state mutation; these are observed directly by rules/control.
	}
	return nil
}

func (m *Manager) applyFill(ev eventcore.Event) error {
	price, err := decimal.NewFromString(ev.Payload.Price)
	if err != nil {
		return err
	}
	side := Side(ev.Payload.Side)
	m.AddOrMergePosition(ev.AccountID, ev.Payload.PositionID, ev.Payload.Symbol, side, ev.Payload.Quantity, price, ev.Timestamp)
	m.RecordTrade(ev.AccountID, FrequencyWindowRuleID, m.frequencyWindowDuration(ev.AccountID), ev.Timestamp)
	return nil
}

func (m *Manager) applyPositionUpdate(ev eventcore.Event) {
	price, err := decimal.NewFromString(ev.Payload.CurrentPrice)
	if err != nil {
		return
	}
	m.UpdatePrice(ev.AccountID, ev.Payload.Symbol, price, ev.Timestamp)
}

func (m *Manager) applyOrderUpdate(ev eventcore.Event) {
	if !ev.Payload.IsStopOrder {
		return
	}
	var price *decimal.Decimal
	if ev.Payload.StopPrice != "" {
		if p, err := decimal.NewFromString(ev.Payload.StopPrice); err == nil {
			price = &p
		}
	}
	m.MarkStopLossAttached(ev.AccountID, ev.Payload.PositionID, price)
}

// FrequencyWindowRuleID mirrors rules.FrequencyRuleID; duplicated as a
// constant here (rather than importing internal/rules) to keep state
// free of a dependency on the rule plugins it is evaluated against.
const FrequencyWindowRuleID = "TradeFrequencyLimit"

// frequencyWindowDuration resolves the configured trade-frequency window
// for accountID. cmd/riskguardd wires this through SetFrequencyWindowFunc
// at startup to a lookup in the live daemon config, so a reload takes
// effect on the next Fill; it defaults to zero (disabled) until wired.
func (m *Manager) frequencyWindowDuration(accountID string) time.Duration {
	if m.frequencyWindowFor == nil {
		return 0
	}
	return m.frequencyWindowFor(accountID)
}
