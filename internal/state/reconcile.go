package state

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BrokerPositionView is the minimal broker-reported position shape needed
// for reconciliation (spec §4.2 Reconciliation, §6.1 get_current_positions).
// Kept local to state rather than importing internal/broker, so state has
// no dependency on the adapter package.
type BrokerPositionView struct {
	PositionID string
	Symbol     string
	Side       Side
	Quantity   int64
	EntryPrice decimal.Decimal
}

// PositionLister fetches an account's current broker-side positions.
type PositionLister func(ctx context.Context, accountID string) ([]BrokerPositionView, error)

// ReconcileResult summarizes one account's reconciliation for logging/
// the startup report.
type ReconcileResult struct {
	AccountID string
	Added     int
	Removed   int
	Err       error
}

// Reconcile aligns accountID's in-memory state with the broker-reported
// positions (spec §4.2 Reconciliation): broker-extra positions are added
// as pending_close=false, stop_loss_attached=false; state-extra positions
// are removed with realized=0. combined_exposure is recomputed from
// scratch afterward.
func (m *Manager) Reconcile(ctx context.Context, accountID string, list PositionLister) ReconcileResult {
	brokerPositions, err := list(ctx, accountID)
	if err != nil {
		return ReconcileResult{AccountID: accountID, Err: err}
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accountLocked(accountID)

	brokerByID := make(map[string]BrokerPositionView, len(brokerPositions))
	for _, bp := range brokerPositions {
		brokerByID[bp.PositionID] = bp
	}

	var added, removed int

	for id, bp := range brokerByID {
		if _, exists := a.OpenPositions[id]; exists {
			continue
		}
		p := &Position{
			PositionID:   id,
			AccountID:    accountID,
			Symbol:       bp.Symbol,
			Side:         bp.Side,
			Quantity:     bp.Quantity,
			EntryPrice:   bp.EntryPrice,
			CurrentPrice: bp.EntryPrice,
			OpenedAt:     now,
			LastUpdate:   now,
			PendingClose: false,
		}
		p.RecomputeUnrealized(m.tickValue(bp.Symbol))
		a.OpenPositions[id] = p
		added++
		if m.logger != nil {
			m.logger.Info("state: reconciliation added position",
				zap.String("account_id", accountID), zap.String("position_id", id), zap.String("symbol", bp.Symbol))
		}
	}

	for id := range a.OpenPositions {
		if _, atBroker := brokerByID[id]; atBroker {
			continue
		}
		delete(a.OpenPositions, id)
		removed++
		if m.logger != nil {
			m.logger.Info("state: reconciliation removed position",
				zap.String("account_id", accountID), zap.String("position_id", id))
		}
	}

	m.markDirty(accountID, true)
	return ReconcileResult{AccountID: accountID, Added: added, Removed: removed}
}

// ReconcileAll runs Reconcile for every account concurrently, fanned out
// over a bounded worker pool (grounded on
// internal/architecture/fx/workerpool/worker_pool.go's panjf2000/ants
// usage — DESIGN.md: internal/state). Concurrency is across accounts
// only: each account's own Reconcile call still mutates only that
// account's state under m.mu.
func (m *Manager) ReconcileAll(ctx context.Context, accountIDs []string, list PositionLister, poolSize int) []ReconcileResult {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		// Fall back to sequential reconciliation rather than skipping it.
		results := make([]ReconcileResult, 0, len(accountIDs))
		for _, id := range accountIDs {
			results = append(results, m.Reconcile(ctx, id, list))
		}
		return results
	}
	defer pool.Release()

	results := make([]ReconcileResult, len(accountIDs))
	var wg sync.WaitGroup
	for i, id := range accountIDs {
		i, id := i, id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = m.Reconcile(ctx, id, list)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = m.Reconcile(ctx, id, list)
		}
	}
	wg.Wait()
	return results
}
