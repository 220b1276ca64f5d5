package eventcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestQueue(t *testing.T, capacity int) *Queue {
	t.Helper()
	q, err := NewQueue(capacity, 16, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	return q
}

// Events sharing one timestamp dequeue in priority order regardless of
// enqueue order (spec §4.1 total order).
func TestQueue_DequeueOrdersByPriority(t *testing.T) {
	q := newTestQueue(t, 10)
	now := time.Now()

	low := New(NewEventID(), TypeHeartbeat, "acct1", now, Payload{})    // priority 6
	high := New(NewEventID(), TypeConnectionChange, "acct1", now, Payload{}) // priority 1
	mid := New(NewEventID(), TypeFill, "acct1", now, Payload{})          // priority 2

	require.NoError(t, q.Enqueue(low))
	require.NoError(t, q.Enqueue(high))
	require.NoError(t, q.Enqueue(mid))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, TypeConnectionChange, first.Type)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, TypeFill, second.Type)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, TypeHeartbeat, third.Type)
}

// An event whose event_id was already marked dispatched is dropped
// silently rather than re-processed (spec §4.1 dedup).
func TestQueue_DuplicateEventID_Dropped(t *testing.T) {
	q := newTestQueue(t, 10)
	ev := New("dup-1", TypeFill, "acct1", time.Now(), Payload{})
	require.NoError(t, q.Enqueue(ev))
	dequeued, ok := q.Dequeue()
	require.True(t, ok)
	q.MarkDispatched(dequeued.EventID)

	require.NoError(t, q.Enqueue(ev))
	assert.Equal(t, 0, q.Depth())
}

// A full queue drops a Heartbeat silently but rejects anything else with
// ErrQueueOverflow and flips into error_state (spec §4.1, §7).
func TestQueue_Overflow_DropsHeartbeatRejectsOther(t *testing.T) {
	q := newTestQueue(t, 1)
	require.NoError(t, q.Enqueue(New(NewEventID(), TypeFill, "acct1", time.Now(), Payload{})))

	err := q.Enqueue(New(NewEventID(), TypeHeartbeat, "acct1", time.Now(), Payload{}))
	assert.NoError(t, err)
	assert.False(t, q.InErrorState())

	err = q.Enqueue(New(NewEventID(), TypeFill, "acct1", time.Now(), Payload{}))
	assert.ErrorIs(t, err, ErrQueueOverflow)
	assert.True(t, q.InErrorState())
}

// Close unblocks a blocked Dequeue call with ok=false.
func TestQueue_Close_UnblocksDequeue(t *testing.T) {
	q := newTestQueue(t, 10)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatal("Dequeue did not unblock after Close")
	}
}
