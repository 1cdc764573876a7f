// Package bus provides the buffered event bus connecting the gateway's read
// loop to downstream consumers, and handlers back to the gateway's send path.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/oopzlab/oopzbot/pkg/events"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	inbound  chan events.InboundEvent
	outbound chan events.OutboundAction
	done     chan struct{}
	closed   atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		inbound:  make(chan events.InboundEvent, 100),
		outbound: make(chan events.OutboundAction, 100),
		done:     make(chan struct{}),
	}
}

func (b *EventBus) PublishEvent(ctx context.Context, ev events.InboundEvent) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.inbound <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeEvent(ctx context.Context) (events.InboundEvent, bool) {
	select {
	case ev, ok := <-b.inbound:
		return ev, ok
	case <-b.done:
		return events.InboundEvent{}, false
	case <-ctx.Done():
		return events.InboundEvent{}, false
	}
}

func (b *EventBus) PublishAction(ctx context.Context, act events.OutboundAction) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.outbound <- act:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeAction(ctx context.Context) (events.OutboundAction, bool) {
	select {
	case act, ok := <-b.outbound:
		return act, ok
	case <-b.done:
		return events.OutboundAction{}, false
	case <-ctx.Done():
		return events.OutboundAction{}, false
	}
}

func (b *EventBus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
