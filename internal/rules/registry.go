package rules

import "time"

// TieBreakOrder is the strict ordering within a severity tier used to
// prioritize simultaneous violations (spec §4.4 step 5): SessionBlock/
// SymbolBlock → Daily (loss/profit) → Unrealized per-trade → Contract
// limits → Frequency/cooldown → Grace.
var TieBreakOrder = map[string]int{
	"SessionBlockOutside":      0,
	"SymbolBlock":              0,
	"DailyRealizedLoss":        1,
	"DailyRealizedProfit":      1,
	"UnrealizedLoss":           2,
	"UnrealizedProfit":         2,
	"MaxContracts":             3,
	"MaxContractsPerInstrument": 3,
	"TradeFrequencyLimit":      4,
	"CooldownAfterLoss":        4,
	"NoStopLossGrace":          5,
	"AuthLossGuard":            6,
}

// SeverityRank orders severities for prioritization: critical first.
var SeverityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityInfo:     2,
}

// DefaultRegistry builds the closed, statically-registered set of all 12
// rule plugins (spec Design Notes: "a closed tagged variant... the core
// knows statically"), parameterized by the account's configured timezone
// and daily reset time for the rules that compute a lockout instant.
func DefaultRegistry(location *time.Location, resetHour, resetMinute int) []Rule {
	return []Rule{
		MaxContracts{},
		MaxContractsPerInstrument{},
		DailyRealizedLoss{Location: location, ResetHour: resetHour, ResetMinute: resetMinute},
		DailyRealizedProfit{Location: location, ResetHour: resetHour, ResetMinute: resetMinute},
		UnrealizedLoss{},
		UnrealizedProfit{},
		TradeFrequencyLimit{},
		CooldownAfterLoss{},
		NoStopLossGrace{},
		SessionBlockOutside{},
		SymbolBlock{},
		AuthLossGuard{},
	}
}
