package engine

import "context"

// Event is one of FillEvent, CancelEvent or BookChangeEvent.
type Event interface {
	event()
}

type FillEvent struct {
	TakerID   OrderID
	MakerID   OrderID
	TakerSide Side
	Price     Price
	Qty       Qty
}

type CancelEvent struct {
	ID          OrderID
	Side        Side
	Price       Price
	QtyCanceled Qty
}

// BookChangeEvent carries the new quantity of one level, zero when the
// level emptied. A market order reports Price 0 to mean the best level moved.
type BookChangeEvent struct {
	Side        Side
	Price       Price
	NewLevelQty Qty
}

func (FillEvent) event()       {}
func (CancelEvent) event()     {}
func (BookChangeEvent) event() {}

// Bus is a bounded event queue with one producer, the match engine, and
// one consumer. Publishing never blocks: a full bus drops the event.
type Bus struct {
	ch chan Event
}

func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// TryPublish enqueues e and reports false when the bus is full.
func (b *Bus) TryPublish(e Event) bool {
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}

// TryPoll dequeues one event without waiting.
func (b *Bus) TryPoll() (Event, bool) {
	select {
	case e := <-b.ch:
		return e, true
	default:
		return nil, false
	}
}

// Drain returns every queued event.
func (b *Bus) Drain() []Event {
	var out []Event
	for {
		e, ok := b.TryPoll()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func (b *Bus) Cap() int {
	return cap(b.ch)
}

// Run hands each event to fn until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.ch:
			fn(e)
		}
	}
}
