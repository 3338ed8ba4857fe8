package board

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/groutine"
)

// dispatcher runs deliveries one at a time, in submission order, on a single
// goroutine. The queue is unbounded: a slow subscriber delays values, it never
// loses them.
type dispatcher struct {
	logger *logrus.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(logger *logrus.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), "board-delivery", d.run)
	return d
}

// post queues fn; it reports false once the dispatcher is stopped.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) run(_ context.Context) {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.invoke(fn)
		}
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("Subscriber panicked")
		}
	}()
	fn()
}

// flush waits until everything queued so far has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	idle := make(chan struct{})
	if !d.post(func() { close(idle) }) {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop lets the queued deliveries finish and then ends the goroutine. It does
// not wait, so a subscriber may call it.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}
