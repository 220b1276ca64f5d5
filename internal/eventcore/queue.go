package eventcore

import (
	"container/heap"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCapacity is the bounded queue size from spec §4.1 / §6.4.
const DefaultCapacity = 10000

// DefaultDedupSize is the dedup LRU size from spec §4.1 / §6.4.
const DefaultDedupSize = 1024

// highWaterFraction is the capacity fraction at which HealthWarning fires.
const highWaterFraction = 0.8

// eventHeap orders Events by (priority asc, timestamp asc, monotonic_seq
// asc), the same container/heap shape as the teacher's order-matching
// OrderHeap, generalized from price/time priority to the event core's
// total order (spec §4.1).
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.MonotonicSeq < b.MonotonicSeq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// HealthWarning is emitted when the queue crosses the high-water mark.
type HealthWarning struct {
	Depth    int
	Capacity int
}

// Queue is the bounded, deduplicating, priority-ordered event queue. The
// enqueue primitive is safe for concurrent producers (broker adapter,
// timer source); only a single consumer dispatches (spec §4.1, §5).
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	heap     eventHeap
	capacity int
	seq      uint64

	dispatched *lru.Cache[string, struct{}]

	logger   *zap.Logger
	onHealth func(HealthWarning)

	errorState atomic.Bool
	closed     atomic.Bool
}

// NewQueue builds a Queue with the given capacity and dedup size. onHealth
// is invoked (outside the lock) when the queue crosses the high-water
// mark; it may be nil.
func NewQueue(capacity, dedupSize int, logger *zap.Logger, onHealth func(HealthWarning)) (*Queue, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if dedupSize <= 0 {
		dedupSize = DefaultDedupSize
	}
	cache, err := lru.New[string, struct{}](dedupSize)
	if err != nil {
		return nil, err
	}
	q := &Queue{
		heap:       make(eventHeap, 0, capacity),
		capacity:   capacity,
		dispatched: cache,
		logger:     logger,
		onHealth:   onHealth,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	heap.Init(&q.heap)
	return q, nil
}

// ErrQueueOverflow is returned when the queue is full and the event is not
// a droppable Heartbeat (spec §4.1, §7 QueueOverflow).
var ErrQueueOverflow = errQueueOverflow{}

type errQueueOverflow struct{}

func (errQueueOverflow) Error() string { return "eventcore: queue overflow" }

// InErrorState reports whether the queue has previously overflowed and
// entered safe mode (spec §7: halt new enforcement except in-flight closes).
func (q *Queue) InErrorState() bool { return q.errorState.Load() }

// Enqueue assigns a monotonic sequence number and inserts ev in priority
// order. Duplicate event_ids (already dispatched) are dropped silently
// with a debug log. At ≥80% capacity a HealthWarning fires. At 100%
// capacity, only Heartbeat events are dropped; anything else returns
// ErrQueueOverflow and flips the queue into error_state.
func (q *Queue) Enqueue(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed.Load() {
		return nil
	}

	if q.dispatched.Contains(ev.EventID) {
		if q.logger != nil {
			q.logger.Debug("eventcore: dropping duplicate event", zap.String("event_id", ev.EventID))
		}
		return nil
	}

	depth := len(q.heap)
	if depth >= q.capacity {
		if ev.Type == TypeHeartbeat {
			if q.logger != nil {
				q.logger.Debug("eventcore: dropping heartbeat, queue full", zap.Int("depth", depth))
			}
			return nil
		}
		q.errorState.Store(true)
		if q.logger != nil {
			q.logger.Error("eventcore: queue overflow, entering error_state",
				zap.Int("capacity", q.capacity), zap.String("event_type", string(ev.Type)))
		}
		return ErrQueueOverflow
	}

	q.seq++
	ev.MonotonicSeq = q.seq
	heap.Push(&q.heap, ev)
	q.notEmpty.Signal()

	newDepth := len(q.heap)
	if float64(newDepth) >= float64(q.capacity)*highWaterFraction && float64(depth) < float64(q.capacity)*highWaterFraction {
		if q.logger != nil {
			q.logger.Error("eventcore: queue at high-water mark", zap.Int("depth", newDepth), zap.Int("capacity", q.capacity))
		}
		if q.onHealth != nil {
			go q.onHealth(HealthWarning{Depth: newDepth, Capacity: q.capacity})
		}
	}
	return nil
}

// Dequeue blocks until an event is available or the queue is closed, in
// which case ok is false. The event is NOT yet marked dispatched; call
// MarkDispatched once the handler has run (the Dispatcher does so whether
// or not the handler failed).
func (q *Queue) Dequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 && !q.closed.Load() {
		q.notEmpty.Wait()
	}
	if len(q.heap) == 0 {
		return Event{}, false
	}
	ev := heap.Pop(&q.heap).(Event)
	return ev, true
}

// MarkDispatched records ev's event_id in the dedup LRU, evicting the
// oldest entry by insertion order once the LRU is full (spec §4.1).
func (q *Queue) MarkDispatched(eventID string) {
	q.dispatched.Add(eventID, struct{}{})
}

// Depth returns the current queue length, for health reporting (§6.2).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Close unblocks any waiting Dequeue call and stops accepting new events.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed.Store(true)
	q.notEmpty.Broadcast()
}
