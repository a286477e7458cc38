// Package channel is an in-process event bus carrying notification
// lifecycle events from the scheduler to the recorder.
package channel

import (
	"context"
	"errors"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records event bus metrics.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

type EventBus struct {
	ch      chan domain.NotificationEvent
	metrics MetricsSink
}

func NewEventBus(buffer int) *EventBus {
	return &EventBus{
		ch: make(chan domain.NotificationEvent, buffer),
	}
}

// WithMetrics attaches a metrics sink.
func (b *EventBus) WithMetrics(sink MetricsSink) *EventBus {
	b.metrics = sink
	return b
}

// Emit enqueues an event without blocking. A full buffer returns
// ErrBufferFull; the scheduler treats the event as best-effort and
// never waits on the bus.
func (b *EventBus) Emit(ctx context.Context, event domain.NotificationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case b.ch <- event:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	default:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.NotificationEvent {
	return b.ch
}

// Close closes the bus. Emit must not be called after Close.
func (b *EventBus) Close() {
	close(b.ch)
}
