// Package broker defines the BrokerAdapter capability boundary (spec §6.1)
// and the adapters behind it: a go-micro-backed live adapter and a
// deterministic in-memory simulator used in tests and local runs.
package broker

import (
	"context"
	"time"
)

// ErrorClass tags a broker-originating failure as retryable or not,
// mirroring the teacher's durability error taxonomy generalized to the
// adapter boundary (spec §4.5: "transient vs permanent retry policy").
type ErrorClass string

const (
	ErrorTransient      ErrorClass = "transient"
	ErrorPermanent      ErrorClass = "permanent"
	ErrorFullCloseOnly  ErrorClass = "full_close_only"
)

// AdapterError wraps a broker call failure with its retry class.
type AdapterError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsFullCloseOnly reports whether err is an AdapterError signaling the
// broker cannot partially close a position — the enforcement engine falls
// back to closing the full position for this class; it does not reopen the
// remainder.
func IsFullCloseOnly(err error) bool {
	ae, ok := err.(*AdapterError)
	return ok && ae.Class == ErrorFullCloseOnly
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	ae, ok := err.(*AdapterError)
	return ok && ae.Class == ErrorTransient
}

// PositionSnapshot is the broker's view of an open position, used during
// startup reconciliation (spec §4.2 Reconcile).
type PositionSnapshot struct {
	PositionID string
	Symbol     string
	Side       string
	Quantity   int64
	EntryPrice string
}

// EventHandler receives broker-originated events (fills, order updates,
// connection changes) to feed into the Event Core.
type EventHandler func(ctx context.Context, accountID string, typ string, payload map[string]interface{})

// Adapter is the BrokerAdapter capability interface of spec §6.1: the
// daemon's only point of contact with the outside trading venue.
type Adapter interface {
	// Connect establishes the broker connection and begins emitting events
	// to handler. Blocking calls (subscribe) run until ctx is canceled.
	Connect(ctx context.Context, handler EventHandler) error
	// Disconnect tears down the connection.
	Disconnect(ctx context.Context) error

	// CurrentPositions returns the broker's authoritative open positions
	// for accountID, used by reconciliation at startup.
	CurrentPositions(ctx context.Context, accountID string) ([]PositionSnapshot, error)

	// ClosePosition closes positionID, in full if quantity is nil or
	// partially otherwise. Returns an AdapterError tagged ErrorFullCloseOnly
	// if this adapter cannot partially close.
	ClosePosition(ctx context.Context, accountID, positionID string, quantity *int64) error

	// FlattenAccount closes every open position for accountID.
	FlattenAccount(ctx context.Context, accountID string) error

	// TickValue returns the per-contract tick value for symbol, consulted
	// when the static config table (spec §6.4) has no entry (spec §9 Open
	// Question: static config wins when present).
	TickValue(ctx context.Context, symbol string) (float64, error)
}

// ConnectionWatcher is implemented by adapters that can report their own
// liveness independent of an explicit Connect/Disconnect call (e.g. after
// a silent network drop). Nothing in the daemon polls it; ConnectionChange
// events (spec §4.1 TypeConnectionChange) arrive from the broker's own
// event stream.
type ConnectionWatcher interface {
	Connected() bool
}

// ReconnectBackoff is the default reconnect schedule for adapters that
// manage their own retry loop.
var ReconnectBackoff = []time.Duration{
	1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
}
