package rules

import (
	"time"

	"github.com/kestrel-trading/riskguard/internal/money"
)

// SessionWindow is one allowed trading window within SessionBlockOutside
// (rule 10): DayOfWeek 0=Sunday, Start/End are minutes-of-day in the
// account's configured timezone.
type SessionWindow struct {
	DayOfWeek time.Weekday
	StartMin  int
	EndMin    int
}

// Config bundles every per-account risk rule parameter named in spec §4.3's
// columns and §6.4's configuration surface. One Config is resolved per
// account (accounts may carry different limits).
type Config struct {
	// Rule 1: MaxContracts
	MaxContracts int64

	// Rule 2: MaxContractsPerInstrument
	MaxContractsPerSymbol map[string]int64

	// Rule 3/4: DailyRealizedLoss / DailyRealizedProfit
	DailyRealizedLossLimit   money.Money // negative, e.g. -1000.00
	DailyRealizedProfitLimit money.Money // positive

	// Rule 5/6: UnrealizedLoss / UnrealizedProfit (per position)
	UnrealizedLossLimit   money.Money // negative
	UnrealizedProfitLimit money.Money // positive

	// Rule 7: TradeFrequencyLimit
	TradeFrequencyMax    int
	TradeFrequencyWindow time.Duration

	// Rule 8: CooldownAfterLoss
	CooldownLossThreshold money.Money // negative; realized-of-close <= this triggers
	CooldownDuration      time.Duration

	// Rule 9: NoStopLossGrace
	StopLossGrace time.Duration

	// Rule 10: SessionBlockOutside
	AllowedSessions []SessionWindow
	SessionLocation *time.Location

	// Rule 11: SymbolBlock
	BlockedSymbols map[string]bool
}
