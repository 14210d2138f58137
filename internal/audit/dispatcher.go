package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher decouples callers from the sink: Emit enqueues, a single
// worker goroutine delivers. A nil Dispatcher is valid and discards
// everything, which is how a disabled trail is represented.
type Dispatcher struct {
	sink  Sink
	shed  bool
	queue chan Event

	mu     sync.RWMutex
	closed bool

	worker  sync.WaitGroup
	dropped atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:  sink,
		shed:  cfg.DropIfFull,
		queue: make(chan Event, cfg.BufferSize),
	}

	d.worker.Add(1)
	go func() {
		defer d.worker.Done()
		for event := range d.queue {
			d.sink.Emit(context.Background(), event)
		}
	}()

	return d
}

// Emit hands the event to the worker. In shedding mode a full buffer
// drops the event and counts it; otherwise Emit blocks until the worker
// catches up or ctx is cancelled.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	// The read lock keeps the queue open for the duration of the send,
	// so Close cannot close the channel underneath us.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.shed {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close stops accepting events and waits for the worker to deliver
// everything already buffered. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.worker.Wait()
}

// Dropped reports how many events shedding mode has discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
