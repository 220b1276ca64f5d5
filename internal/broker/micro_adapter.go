package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	gmbroker "go-micro.dev/v4/broker"
	"go.uber.org/zap"
)

// TickValueFunc resolves an instrument's tick value from the venue. A live
// deployment wires this to an instrument-reference lookup; it is kept
// separate from the subscribe/publish concern go-micro covers.
type TickValueFunc func(ctx context.Context, symbol string) (float64, error)

// MicroAdapter is the live Adapter backed by go-micro's broker abstraction
// (grounded on events.NewBroker's lifecycle-hook pattern, generalized here
// from an fx-provided pub/sub handle into a typed event source implementing
// Adapter). Fills, order updates, and connection changes all arrive as
// broker.Event messages on the single events topic, each message carrying
// its account_id; ClosePosition/FlattenAccount
// publish command messages the venue gateway consumes on its own topic.
type MicroAdapter struct {
	b            gmbroker.Broker
	eventsTopic  string
	commandTopic string
	tickValue    TickValueFunc
	logger       *zap.Logger

	connected int32
	sub       gmbroker.Subscriber
}

// NewMicroAdapter wraps an already-configured go-micro broker.Broker.
func NewMicroAdapter(b gmbroker.Broker, eventsTopic, commandTopic string, tickValue TickValueFunc, logger *zap.Logger) *MicroAdapter {
	return &MicroAdapter{b: b, eventsTopic: eventsTopic, commandTopic: commandTopic, tickValue: tickValue, logger: logger}
}

type wireEvent struct {
	AccountID string                 `json:"account_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
}

func (a *MicroAdapter) Connect(ctx context.Context, handler EventHandler) error {
	if err := a.b.Connect(); err != nil {
		return &AdapterError{Class: ErrorTransient, Op: "Connect", Err: err}
	}
	sub, err := a.b.Subscribe(a.eventsTopic, func(evt gmbroker.Event) error {
		var we wireEvent
		if err := json.Unmarshal(evt.Message().Body, &we); err != nil {
			a.logger.Warn("broker: malformed event", zap.Error(err))
			return nil
		}
		handler(ctx, we.AccountID, we.Type, we.Payload)
		return nil
	})
	if err != nil {
		return &AdapterError{Class: ErrorTransient, Op: "Subscribe", Err: err}
	}
	a.sub = sub
	atomic.StoreInt32(&a.connected, 1)
	a.logger.Info("broker: connected", zap.String("topic", a.eventsTopic))
	return nil
}

func (a *MicroAdapter) Disconnect(ctx context.Context) error {
	atomic.StoreInt32(&a.connected, 0)
	if a.sub != nil {
		if err := a.sub.Unsubscribe(); err != nil {
			a.logger.Warn("broker: unsubscribe error", zap.Error(err))
		}
	}
	if err := a.b.Disconnect(); err != nil {
		return &AdapterError{Class: ErrorTransient, Op: "Disconnect", Err: err}
	}
	return nil
}

func (a *MicroAdapter) Connected() bool {
	return atomic.LoadInt32(&a.connected) == 1
}

type command struct {
	AccountID  string  `json:"account_id"`
	Op         string  `json:"op"`
	PositionID string  `json:"position_id,omitempty"`
	Quantity   *int64  `json:"quantity,omitempty"`
}

func (a *MicroAdapter) publish(op string, accountID, positionID string, quantity *int64) error {
	body, err := json.Marshal(command{AccountID: accountID, Op: op, PositionID: positionID, Quantity: quantity})
	if err != nil {
		return &AdapterError{Class: ErrorPermanent, Op: op, Err: err}
	}
	if err := a.b.Publish(a.commandTopic, &gmbroker.Message{Body: body}); err != nil {
		return &AdapterError{Class: ErrorTransient, Op: op, Err: err}
	}
	return nil
}

func (a *MicroAdapter) ClosePosition(ctx context.Context, accountID, positionID string, quantity *int64) error {
	return a.publish("close_position", accountID, positionID, quantity)
}

func (a *MicroAdapter) FlattenAccount(ctx context.Context, accountID string) error {
	return a.publish("flatten_account", accountID, "", nil)
}

func (a *MicroAdapter) CurrentPositions(ctx context.Context, accountID string) ([]PositionSnapshot, error) {
	return nil, &AdapterError{Class: ErrorPermanent, Op: "CurrentPositions",
		Err: fmt.Errorf("go-micro adapter requires a request/reply transport not wired for this topic; use a venue-specific REST reconciliation call instead")}
}

func (a *MicroAdapter) TickValue(ctx context.Context, symbol string) (float64, error) {
	if a.tickValue == nil {
		return 1.0, nil
	}
	return a.tickValue(ctx, symbol)
}

var _ Adapter = (*MicroAdapter)(nil)
var _ ConnectionWatcher = (*MicroAdapter)(nil)
