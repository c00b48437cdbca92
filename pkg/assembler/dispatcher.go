package assembler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wxmesh/byteblaster/pkg/metrics"
)

// Subscriber receives completed files. Implementations must treat file as
// read-only; it may be shared concurrently with sibling subscribers.
type Subscriber interface {
	OnCompletedFile(ctx context.Context, file *CompletedFile) error
}

// Dispatcher fans a completed file out to every subscribed Subscriber
// concurrently and waits for all of them to settle before returning,
// providing the backpressure between successive completions that the
// assembler relies on. One subscriber's failure never affects its
// siblings or the assembler.
type Dispatcher struct {
	log     *slog.Logger
	metrics *metrics.Registry

	mu          sync.Mutex
	subscribers []Subscriber
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		log: slog.Default().With("service", "[DISP]"),
	}
}

// SetMetrics attaches a metrics registry that subscriber failures are
// reported against. Optional; nil (the default) disables instrumentation.
func (d *Dispatcher) SetMetrics(reg *metrics.Registry) {
	d.metrics = reg
}

// Subscribe registers handler, if not already present.
func (d *Dispatcher) Subscribe(handler Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subscribers {
		if s == handler {
			return
		}
	}
	d.subscribers = append(d.subscribers, handler)
}

// Unsubscribe removes handler. No-op if absent.
func (d *Dispatcher) Unsubscribe(handler Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subscribers {
		if s == handler {
			d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every current subscriber concurrently with file and
// blocks until all have settled.
func (d *Dispatcher) Dispatch(file CompletedFile) {
	d.mu.Lock()
	subs := append([]Subscriber{}, d.subscribers...)
	d.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, s := range subs {
		go func(s Subscriber) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("subscriber panicked", "panic", r, "filename", file.Filename)
					if d.metrics != nil {
						d.metrics.SubscriberFailures.Inc()
					}
				}
			}()
			if err := s.OnCompletedFile(context.Background(), &file); err != nil {
				d.log.Warn("subscriber failed", "error", err, "filename", file.Filename)
				if d.metrics != nil {
					d.metrics.SubscriberFailures.Inc()
				}
			}
		}(s)
	}
	wg.Wait()
}
