package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/sensor"
	"github.com/srg/adaboard/internal/series"
	"github.com/srg/adaboard/internal/service"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reading is one decoded sensor value.
type Reading[T any] struct {
	Kind        service.Kind `json:"kind"`
	AccessoryID string       `json:"accessory"`
	Value       T            `json:"value"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Stream is the typed face of one sensor service: enable and disable it, read
// its latest value, subscribe to decoded readings and access its history.
type Stream[T any] struct {
	board  *Board
	kind   service.Kind
	decode sensor.Decoder[T]

	// adjust post-processes decoded values, e.g. the orientation flip.
	adjust func(T) T
	// keep filters values out of the history.
	keep func(T) bool
	// afterEnable runs once the engine reports the service enabled.
	afterEnable func(ctx context.Context) error

	history       *series.Buffer[T]
	recordHistory atomic.Bool

	mu          sync.Mutex
	last        Reading[T]
	hasLast     bool
	nextID      uint64
	subscribers *orderedmap.OrderedMap[uint64, func(Reading[T])]
}

func newStream[T any](b *Board, kind service.Kind, decode sensor.Decoder[T]) *Stream[T] {
	s := &Stream[T]{
		board:       b,
		kind:        kind,
		decode:      decode,
		history:     series.NewBuffer[T](b.opts.HistoryCapacity),
		subscribers: orderedmap.New[uint64, func(Reading[T])](),
	}
	s.recordHistory.Store(b.opts.recordsHistory(kind))
	b.streams[kind] = s
	return s
}

func (s *Stream[T]) Kind() service.Kind { return s.kind }

// Enable enables the service with its default sample period.
func (s *Stream[T]) Enable(ctx context.Context) error {
	return s.enable(ctx, nil)
}

// EnableWithPeriod enables the service with an explicit period; a negative
// duration disables periodic measurements and zero means notify on change.
func (s *Stream[T]) EnableWithPeriod(ctx context.Context, every time.Duration) error {
	p := service.PeriodOf(every)
	return s.enable(ctx, &p)
}

func (s *Stream[T]) enable(ctx context.Context, period *service.Period) error {
	engine, err := s.board.currentEngine()
	if err != nil {
		return err
	}
	desc, ok := s.board.opts.Catalog.Get(s.kind)
	if !ok {
		return fmt.Errorf("%s: no descriptor", s.kind)
	}
	if err := engine.Enable(ctx, desc, service.EnableOptions{Period: period, OnSample: s.onSample}); err != nil {
		return err
	}
	if s.afterEnable != nil {
		if err := s.afterEnable(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Disable disables the service; history and the last value are kept.
func (s *Stream[T]) Disable(ctx context.Context) error {
	engine, err := s.board.currentEngine()
	if err != nil {
		return err
	}
	return engine.Disable(ctx, s.kind)
}

func (s *Stream[T]) IsEnabled() bool {
	engine, err := s.board.currentEngine()
	return err == nil && engine.IsEnabled(s.kind)
}

// State returns the position of the service in its enable/disable sequence.
func (s *Stream[T]) State() service.State {
	engine, err := s.board.currentEngine()
	if err != nil {
		return service.Idle
	}
	return engine.State(s.kind)
}

// Read reads and decodes the current value of an enabled service. The value
// is not recorded and not delivered to subscribers.
func (s *Stream[T]) Read(ctx context.Context) (T, error) {
	var zero T
	engine, err := s.board.currentEngine()
	if err != nil {
		return zero, err
	}
	data, err := engine.Read(ctx, s.kind)
	if err != nil {
		return zero, err
	}
	v, err := s.decode(data)
	if err != nil {
		return zero, err
	}
	return s.adjusted(v), nil
}

// LastValue returns the latest decoded value.
func (s *Stream[T]) LastValue() (T, bool) {
	r, ok := s.LastReading()
	return r.Value, ok
}

// LastReading returns the latest decoded reading.
func (s *Stream[T]) LastReading() (Reading[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Subscribe registers fn for every decoded reading. Readings are delivered in
// arrival order on the board's delivery goroutine; the returned func removes fn.
func (s *Stream[T]) Subscribe(fn func(Reading[T])) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers.Set(id, fn)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.subscribers.Delete(id)
			s.mu.Unlock()
		})
	}
}

// DataSeries returns the history buffer. It outlives enable and disable.
func (s *Stream[T]) DataSeries() *series.Buffer[T] { return s.history }

// SetHistoryEnabled switches history recording on or off.
func (s *Stream[T]) SetHistoryEnabled(on bool) { s.recordHistory.Store(on) }

func (s *Stream[T]) HistoryEnabled() bool { return s.recordHistory.Load() }

func (s *Stream[T]) adjusted(v T) T {
	if s.adjust != nil {
		return s.adjust(v)
	}
	return v
}

// onSample runs on the transport's notification goroutine.
func (s *Stream[T]) onSample(sample service.Sample) {
	log := s.board.logger.WithFields(logrus.Fields{
		"service":   s.kind,
		"accessory": sample.AccessoryID,
	})
	if sample.Err != nil {
		log.WithField("error", sample.Err).Warn("Subscription error")
		return
	}

	v, err := s.decode(sample.Data)
	if err != nil {
		if errors.Is(err, sensor.ErrChannelsUnknown) {
			log.Debug("Sound payload before channel count, dropped")
		} else {
			log.WithFields(logrus.Fields{
				"error": err,
				"bytes": len(sample.Data),
			}).Warn("Undecodable payload dropped")
		}
		return
	}
	v = s.adjusted(v)

	r := Reading[T]{Kind: s.kind, AccessoryID: sample.AccessoryID, Value: v, Timestamp: s.board.opts.Now()}
	if s.recordHistory.Load() && (s.keep == nil || s.keep(v)) {
		s.history.Append(v, r.Timestamp)
	}

	s.mu.Lock()
	s.last, s.hasLast = r, true
	s.mu.Unlock()

	s.board.deliver(func() { s.publish(r) })
}

func (s *Stream[T]) publish(r Reading[T]) {
	s.mu.Lock()
	fns := make([]func(Reading[T]), 0, s.subscribers.Len())
	for pair := s.subscribers.Oldest(); pair != nil; pair = pair.Next() {
		fns = append(fns, pair.Value)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Service is the kind-independent view of an enableable service.
type Service interface {
	Kind() service.Kind
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	IsEnabled() bool
}
