package eventcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Stage is one of the three per-event steps the dispatcher performs in
// order (spec §4.1.b): state update, rule evaluation, enforcement dispatch.
// Stages are wired as closures over the concrete State Manager / Risk
// Engine / Enforcement Engine by cmd/riskguardd, the same way
// clock.TimerSource is wired with emit closures rather than an interface —
// this keeps eventcore free of a dependency on any downstream package.
type Stage func(ctx context.Context, ev Event) error

// Dispatcher is the single consumer of a Queue. It is the only goroutine
// that invokes the Stage closures, so state mutated behind them is never
// touched concurrently (spec §5).
type Dispatcher struct {
	queue  *Queue
	stages []Stage
	logger *zap.Logger

	onEventProcessed func(Event, error)
}

// NewDispatcher builds a Dispatcher over queue, running stages in order
// for every event. A hook called after every event (success or failure),
// for metrics/testing, is registered separately via OnEventProcessed.
func NewDispatcher(queue *Queue, logger *zap.Logger, stages ...Stage) *Dispatcher {
	return &Dispatcher{queue: queue, stages: stages, logger: logger}
}

// OnEventProcessed registers a hook invoked after each event completes.
func (d *Dispatcher) OnEventProcessed(fn func(Event, error)) {
	d.onEventProcessed = fn
}

// Run blocks, dequeuing and dispatching events until ctx is canceled or the
// queue is closed. A handler error is logged with full event context and
// the loop continues with the next event (spec §4.1 Failure). A panic in
// any stage is recovered, logged critical, and the event marked failed —
// it never crashes the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := d.queue.Dequeue()
		if !ok {
			return
		}

		err := d.runStages(ctx, ev)
		d.queue.MarkDispatched(ev.EventID)

		if err != nil && d.logger != nil {
			d.logger.Error("eventcore: event handler failed",
				zap.String("event_id", ev.EventID),
				zap.String("event_type", string(ev.Type)),
				zap.String("account_id", ev.AccountID),
				zap.Error(err))
		}
		if d.onEventProcessed != nil {
			d.onEventProcessed(ev, err)
		}
	}
}

// runStages executes every stage for ev, recovering from any panic so a
// single bad handler can never take down the dispatch loop.
func (d *Dispatcher) runStages(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error("eventcore: panic recovered in dispatch",
					zap.String("event_id", ev.EventID),
					zap.Any("panic", r))
			}
			err = fmt.Errorf("eventcore: recovered panic: %v", r)
		}
	}()

	for _, stage := range d.stages {
		if stage == nil {
			continue
		}
		if stageErr := stage(ctx, ev); stageErr != nil {
			return stageErr
		}
	}
	return nil
}
