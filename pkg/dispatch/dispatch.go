// Package dispatch fans decoded events out to per-channel workers. Events
// for the same channel are processed strictly in arrival order; different
// channels proceed in parallel, so one slow channel never stalls another.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oopzlab/oopzbot/pkg/bus"
	"github.com/oopzlab/oopzbot/pkg/events"
)

const queueDepth = 64

// Sink receives events in per-channel arrival order.
type Sink func(ctx context.Context, ev events.InboundEvent)

type Dispatcher struct {
	sink Sink
	log  *slog.Logger

	mu     sync.Mutex
	queues map[string]chan events.InboundEvent
	wg     sync.WaitGroup
}

func New(sink Sink, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		log:    log,
		queues: make(map[string]chan events.InboundEvent),
	}
}

// Run consumes the bus until ctx is canceled, then waits for in-flight
// channel workers to drain.
func (d *Dispatcher) Run(ctx context.Context, eventBus *bus.EventBus) {
	for {
		ev, ok := eventBus.ConsumeEvent(ctx)
		if !ok {
			break
		}
		d.dispatch(ctx, ev)
	}
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev events.InboundEvent) {
	d.mu.Lock()
	q, ok := d.queues[ev.ChannelID]
	if !ok {
		q = make(chan events.InboundEvent, queueDepth)
		d.queues[ev.ChannelID] = q
		d.wg.Add(1)
		go d.worker(ctx, q)
	}
	d.mu.Unlock()

	select {
	case q <- ev:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) worker(ctx context.Context, q chan events.InboundEvent) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-q:
			d.sink(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}
