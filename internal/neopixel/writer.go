package neopixel

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/groutine"
)

// WriteFunc sends one pixel payload to the accessory.
type WriteFunc func(ctx context.Context, payload []byte) error

// FrameWriterMetrics counts what happened to queued payloads.
type FrameWriterMetrics struct {
	Written    int64
	Superseded int64
	Failed     int64
}

// FrameWriter sends animation payloads without blocking the animation clock.
// Payloads go through a small overlapped ring; the writer goroutine only sends
// the newest one it finds, so a slow link drops stale frames instead of
// falling behind. Failed writes are logged and never retried.
type FrameWriter struct {
	write  WriteFunc
	logger *logrus.Logger
	ring   mpmc.RichOverlappedRingBuffer[[]byte]
	kick   chan struct{}

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	written    atomic.Int64
	superseded atomic.Int64
	failed     atomic.Int64
}

const frameRingSize = 8

func NewFrameWriter(write WriteFunc, logger *logrus.Logger) *FrameWriter {
	if logger == nil {
		logger = logrus.New()
	}
	return &FrameWriter{
		write:  write,
		logger: logger,
		ring:   mpmc.NewOverlappedRingBuffer[[]byte](frameRingSize),
		kick:   make(chan struct{}, 1),
	}
}

// Start launches the writer goroutine. Starting a running writer is an error.
func (w *FrameWriter) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("frame writer is already running")
	}
	w.Discard()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	done := w.done

	groutine.Go(ctx, "neopixel-frame-writer", func(ctx context.Context) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.kick:
				w.drain(ctx)
			}
		}
	})
	return nil
}

// Submit queues payload; it never blocks.
func (w *FrameWriter) Submit(payload []byte) {
	overwrites, err := w.ring.EnqueueM(payload)
	if err != nil {
		w.failed.Add(1)
		w.logger.WithField("error", err).Warn("Failed to queue pixel frame")
		return
	}
	w.superseded.Add(int64(overwrites))
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *FrameWriter) drain(ctx context.Context) {
	var latest []byte
	found := false
	for !w.ring.IsEmpty() {
		p, err := w.ring.Dequeue()
		if err != nil {
			break
		}
		if found {
			w.superseded.Add(1)
		}
		latest, found = p, true
	}
	if !found {
		return
	}
	if err := w.write(ctx, latest); err != nil {
		w.failed.Add(1)
		if ctx.Err() == nil {
			w.logger.WithField("error", err).Warn("Pixel frame write failed")
		}
		return
	}
	w.written.Add(1)
}

// Stop ends the writer goroutine and discards pending payloads. Once Stop
// returns no queued payload will be written.
func (w *FrameWriter) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.cancel()
	<-w.done
	w.Discard()
}

// Discard drops queued payloads without writing them.
func (w *FrameWriter) Discard() {
	for !w.ring.IsEmpty() {
		if _, err := w.ring.Dequeue(); err != nil {
			return
		}
		w.superseded.Add(1)
	}
}

func (w *FrameWriter) Metrics() FrameWriterMetrics {
	return FrameWriterMetrics{
		Written:    w.written.Load(),
		Superseded: w.superseded.Load(),
		Failed:     w.failed.Load(),
	}
}
