// Package rules implements the 12 pluggable risk rules of spec §4.3 behind
// a single closed interface (spec Design Notes: "Plugin classes with
// runtime discovery → replace with a closed tagged variant... a new
// variant is added, there is no need for runtime code loading"). Every
// rule's Evaluate is a pure function of (event, account state) — no side
// effects, no state mutation, no action enqueue (spec §8 property 7).
package rules

import (
	"time"

	"github.com/kestrel-trading/riskguard/internal/eventcore"
	"github.com/kestrel-trading/riskguard/internal/state"
)

// Severity classifies a RuleViolation. Spec §4.3 severity mapping.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Violation is a rule's judgment that (event, state) breaches
// configuration. Spec §3 RuleViolation.
// CurrentValue, Limit and ExceededBy are pre-rendered strings rather than
// a single typed quantity: some rules compare dollar amounts (money.Money)
// and others compare raw contract counts, and a RuleViolation just needs
// to carry whatever breached the limit for logging and the enforcement
// decision — not participate in further arithmetic.
type Violation struct {
	RuleName     string
	Severity     Severity
	CurrentValue string
	Limit        string
	ExceededBy   string
	AccountID    string
	EventID      string
	PositionID   string
	Symbol       string
	Message      string

	// ExcessQuantity is set by the contract-count rules (1, 2, 7) to the
	// number of contracts the enforcement action should close — kept as
	// a typed field rather than parsed back out of ExceededBy.
	ExcessQuantity int64

	// LockoutUntil is set by the daily PnL rules (3, 4), computed purely
	// from the triggering event's own timestamp so Enforcement never
	// reads the wall clock (spec §8 property 7: Evaluate has no
	// observable side effects).
	LockoutUntil time.Time

	// CooldownDuration is set by CooldownAfterLoss (rule 8) from config,
	// since Enforcement only receives the Violation, not the Config.
	CooldownDuration time.Duration
}

// ActionType is the tag of the EnforcementAction variant. Spec §3.
type ActionType string

const (
	ActionClosePosition  ActionType = "close_position"
	ActionFlattenAccount ActionType = "flatten_account"
	ActionSetLockout     ActionType = "set_lockout"
	ActionStartCooldown  ActionType = "start_cooldown"
	ActionSendAlert      ActionType = "send_alert"
)

// Action is the tagged EnforcementAction variant, carrying its originating
// Violation. Spec §3 EnforcementAction.
type Action struct {
	Type ActionType

	// ClosePosition
	PositionID string
	Quantity   *int64 // nil means close the full position

	// SetLockout
	LockoutUntil time.Time

	// StartCooldown
	CooldownDuration time.Duration

	// SendAlert
	AlertSeverity Severity
	AlertText     string

	Violation Violation
}

// Rule is the closed interface every risk rule implements. Spec §4.3.
type Rule interface {
	// Name identifies the rule for logging, severity lookup, and
	// enforcement ordering.
	Name() string
	// AppliesTo reports whether this rule evaluates on events of typ.
	AppliesTo(typ eventcore.Type) bool
	// Evaluate is pure: no mutation, no I/O, no enqueue (spec §8 property 7).
	Evaluate(ev eventcore.Event, acc *state.AccountState, cfg Config) *Violation
	// Enforcement maps a violation this rule produced to the action to
	// dispatch.
	Enforcement(v Violation) Action
}
