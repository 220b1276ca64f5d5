package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/broker"
	"github.com/kestrel-trading/riskguard/internal/clock"
	"github.com/kestrel-trading/riskguard/internal/eventcore"
)

// buildEventHandler adapts a broker.Adapter's wire events into
// eventcore.Events and enqueues them. eventcore.Type's string values
// already match the broker wire contract's typ field ("fill",
// "order_update", "position_update", "connection_change"), so no
// translation table is needed for the type tag itself — only the payload.
func buildEventHandler(queue *eventcore.Queue, clk clock.Clock, logger *zap.Logger) broker.EventHandler {
	return func(ctx context.Context, accountID string, typ string, payload map[string]interface{}) {
		ev := eventcore.New(eventcore.NewEventID(), eventcore.Type(typ), accountID, clk.Now(), payloadFromWire(payload))
		ev.Source = "broker"
		ev.CorrelationID = correlationIDFromWire(payload)
		if err := queue.Enqueue(ev); err != nil {
			logger.Error("riskguardd: failed to enqueue broker event",
				zap.String("account_id", accountID), zap.String("type", typ), zap.Error(err))
		}
	}
}

// correlationIDFromWire carries the venue's own correlation_id through
// when the wire payload sets one, otherwise mints a fresh one so every
// event processed by the dispatcher can still be traced end-to-end
// through logs (spec §7 observability).
func correlationIDFromWire(raw map[string]interface{}) string {
	if id := wireString(raw, "correlation_id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// payloadFromWire extracts eventcore.Payload's type-specific fields from a
// broker wire event's untyped JSON payload. Only the fields relevant to
// the event's Type are ever populated upstream; anything absent here is
// simply left zero.
func payloadFromWire(raw map[string]interface{}) eventcore.Payload {
	return eventcore.Payload{
		ConnectionState: eventcore.ConnectionState(wireString(raw, "connection_state")),
		PositionID:      wireString(raw, "position_id"),
		Symbol:          wireString(raw, "symbol"),
		Side:            eventcore.FillSide(wireString(raw, "side")),
		Quantity:        wireInt64(raw, "quantity"),
		Price:           wireString(raw, "price"),
		RealizedPnL:     wireString(raw, "realized_pnl"),
		OrderID:         wireString(raw, "order_id"),
		OrderStatus:     wireString(raw, "order_status"),
		IsStopOrder:     wireBool(raw, "is_stop_order"),
		StopPrice:       wireString(raw, "stop_price"),
		CurrentPrice:    wireString(raw, "current_price"),
		ConfigKind:      wireString(raw, "config_kind"),
		SchemaVersion:   wireString(raw, "schema_version"),
	}
}

func wireString(raw map[string]interface{}, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func wireBool(raw map[string]interface{}, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// wireInt64 handles the float64 numeric type encoding/json leaves numbers
// as once decoded into interface{}, which is how go-micro delivers a
// JSON-unmarshaled payload map.
func wireInt64(raw map[string]interface{}, key string) int64 {
	v, ok := raw[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
