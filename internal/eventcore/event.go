// Package eventcore implements the single-threaded priority event loop:
// deterministic ordering, bounded backpressure, and de-duplication (spec
// §4.1). It is the only place account state is mutated from.
package eventcore

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Type identifies the kind of event flowing through the core.
type Type string

const (
	TypeConnectionChange Type = "connection_change"
	TypeFill             Type = "fill"
	TypeOrderUpdate      Type = "order_update"
	TypePositionUpdate   Type = "position_update"
	TypeConfigReload     Type = "config_reload"
	TypeTimeTick         Type = "time_tick"
	TypeSessionTick      Type = "session_tick"
	TypeHeartbeat        Type = "heartbeat"
)

// Priority is the fixed per-type dispatch priority, 1 highest. Spec §4.1.
func (t Type) Priority() int {
	switch t {
	case TypeConnectionChange:
		return 1
	case TypeFill, TypeOrderUpdate, TypePositionUpdate:
		return 2
	case TypeConfigReload:
		return 3
	case TypeTimeTick:
		return 4
	case TypeSessionTick:
		return 5
	case TypeHeartbeat:
		return 6
	default:
		return 6
	}
}

// ConnectionState is the payload variant of a ConnectionChange event.
type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionReconnecting ConnectionState = "reconnecting"
)

// FillSide mirrors Position.Side for a fill payload.
type FillSide string

const (
	FillLong  FillSide = "long"
	FillShort FillSide = "short"
)

// Payload carries the type-specific fields for an Event. Only the fields
// relevant to Event.Type are populated; the rest are zero.
type Payload struct {
	// ConnectionChange
	ConnectionState ConnectionState

	// Fill
	PositionID  string
	Symbol      string
	Side        FillSide
	Quantity    int64
	Price       string // decimal string, parsed through money.FromString
	RealizedPnL string // set on a closing fill, decimal string

	// OrderUpdate
	OrderID      string
	OrderStatus  string
	IsStopOrder  bool
	StopPrice    string

	// PositionUpdate
	CurrentPrice string

	// ConfigReload
	ConfigKind     string
	SchemaVersion  string

	// Heartbeat / TimeTick / SessionTick carry no extra fields.
}

// Event is the unit of work dispatched by the core. Spec §3.
type Event struct {
	EventID       string
	Type          Type
	Priority      int
	Timestamp     time.Time
	MonotonicSeq  uint64
	AccountID     string
	Source        string
	CorrelationID string
	Payload       Payload
}

// NewEventID mints a k-sortable event identifier, so dedup/ordering
// debugging reads chronologically (DESIGN.md: internal/eventcore).
func NewEventID() string {
	return ksuid.New().String()
}

// New builds an Event with its priority derived from Type. MonotonicSeq is
// left zero; the queue assigns it atomically at enqueue (spec §4.1).
func New(eventID string, typ Type, accountID string, ts time.Time, payload Payload) Event {
	return Event{
		EventID:   eventID,
		Type:      typ,
		Priority:  typ.Priority(),
		Timestamp: ts,
		AccountID: accountID,
		Payload:   payload,
	}
}
