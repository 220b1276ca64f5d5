package eventcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Every stage runs in order for each event, and the dispatcher continues
// to the next event after a stage error rather than stopping (spec §4.1
// Failure).
func TestDispatcher_RunsStagesInOrderAndContinuesAfterError(t *testing.T) {
	q := newTestQueue(t, 10)
	var mu sync.Mutex
	var order []string

	failing := New(NewEventID(), TypeFill, "acct1", time.Now(), Payload{})
	ok1 := New(NewEventID(), TypeFill, "acct2", time.Now(), Payload{})

	stage1 := func(ctx context.Context, ev Event) error {
		mu.Lock()
		order = append(order, "stage1:"+ev.AccountID)
		mu.Unlock()
		if ev.AccountID == "acct1" {
			return errors.New("boom")
		}
		return nil
	}
	stage2 := func(ctx context.Context, ev Event) error {
		mu.Lock()
		order = append(order, "stage2:"+ev.AccountID)
		mu.Unlock()
		return nil
	}

	d := NewDispatcher(q, zaptest.NewLogger(t), stage1, stage2)

	var processed sync.WaitGroup
	processed.Add(2)
	d.OnEventProcessed(func(ev Event, err error) { processed.Done() })

	require.NoError(t, q.Enqueue(failing))
	require.NoError(t, q.Enqueue(ok1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	waitOrTimeout(t, &processed)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, order, "stage1:acct1")
	assert.Contains(t, order, "stage1:acct2")
	assert.Contains(t, order, "stage2:acct2")
	assert.NotContains(t, order, "stage2:acct1", "stage2 must not run after stage1 fails for the same event")
}

// A panicking stage is recovered and reported as an error, never crashing
// the dispatch loop (spec §4.1).
func TestDispatcher_RecoversPanicInStage(t *testing.T) {
	q := newTestQueue(t, 10)
	panicking := func(ctx context.Context, ev Event) error {
		panic("stage exploded")
	}
	d := NewDispatcher(q, zaptest.NewLogger(t), panicking)

	var processed sync.WaitGroup
	processed.Add(1)
	var gotErr error
	d.OnEventProcessed(func(ev Event, err error) {
		gotErr = err
		processed.Done()
	})

	require.NoError(t, q.Enqueue(New(NewEventID(), TypeFill, "acct1", time.Now(), Payload{})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	waitOrTimeout(t, &processed)
	assert.Error(t, gotErr)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher to process events")
	}
}
