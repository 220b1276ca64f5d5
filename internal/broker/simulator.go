package broker

import (
	"context"
	"fmt"
	"sync"
)

// Simulator is a deterministic in-memory Adapter used by tests and local
// runs without a live venue connection. ClosePosition fails only when
// primed via FailNextClose, so tests can drive exact retry/backoff paths,
// or with a permanent AdapterError when the position is unknown.
type Simulator struct {
	mu        sync.Mutex
	positions map[string][]PositionSnapshot // accountID -> positions
	tickValues map[string]float64
	connected bool
	handler   EventHandler

	failNextClose *AdapterError
}

// NewSimulator builds an empty Simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		positions:  make(map[string][]PositionSnapshot),
		tickValues: make(map[string]float64),
	}
}

// SeedPositions primes the broker's view of accountID's open positions,
// as if the venue already had them open before the daemon started
// (exercised by reconciliation tests).
func (s *Simulator) SeedPositions(accountID string, positions []PositionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[accountID] = positions
}

// SetTickValue primes TickValue's response for symbol.
func (s *Simulator) SetTickValue(symbol string, tv float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickValues[symbol] = tv
}

// FailNextClose makes the next ClosePosition/FlattenAccount call return
// err, then clears itself — used to exercise enforcement's retry path.
func (s *Simulator) FailNextClose(err *AdapterError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextClose = err
}

func (s *Simulator) Connect(ctx context.Context, handler EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.handler = handler
	return nil
}

func (s *Simulator) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) CurrentPositions(ctx context.Context, accountID string) ([]PositionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PositionSnapshot, len(s.positions[accountID]))
	copy(out, s.positions[accountID])
	return out, nil
}

func (s *Simulator) consumeFailure() *AdapterError {
	if s.failNextClose == nil {
		return nil
	}
	err := s.failNextClose
	s.failNextClose = nil
	return err
}

func (s *Simulator) ClosePosition(ctx context.Context, accountID, positionID string, quantity *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumeFailure(); err != nil {
		return err
	}
	positions := s.positions[accountID]
	for i, p := range positions {
		if p.PositionID != positionID {
			continue
		}
		if quantity == nil || *quantity >= p.Quantity {
			s.positions[accountID] = append(positions[:i], positions[i+1:]...)
			return nil
		}
		positions[i].Quantity -= *quantity
		return nil
	}
	return &AdapterError{Class: ErrorPermanent, Op: "ClosePosition", Err: fmt.Errorf("position %s not found", positionID)}
}

func (s *Simulator) FlattenAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumeFailure(); err != nil {
		return err
	}
	delete(s.positions, accountID)
	return nil
}

func (s *Simulator) TickValue(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tv, ok := s.tickValues[symbol]; ok {
		return tv, nil
	}
	return 1.0, nil
}

var _ Adapter = (*Simulator)(nil)
var _ ConnectionWatcher = (*Simulator)(nil)
