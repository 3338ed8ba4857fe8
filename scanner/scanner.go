// Package scanner discovers Adafruit boards from their advertisements.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/ringchan"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// EventType marks if the board was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

func (t EventType) String() string {
	if t == EventNew {
		return "new"
	}
	return "updated"
}

// Found is one discovered board.
type Found struct {
	Address     string      `json:"address"`
	Name        string      `json:"name"`
	RSSI        int         `json:"rssi"`
	Connectable bool        `json:"connectable"`
	Model       board.Model `json:"model"`
	// Recognized is false when the advertisement carries no known product id.
	Recognized       bool      `json:"recognized"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
}

type Event struct {
	Type  EventType
	Board Found
}

// Options configure scanning behavior
type Options struct {
	Duration        time.Duration
	DuplicateFilter bool
	AllowList       []string
	BlockList       []string
}

// DefaultOptions returns default scanning options
func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

const eventBuffer = 100

// Scanner collects Adafruit boards seen by a scanning device.
type Scanner struct {
	dev    device.ScanningDevice
	logger *logrus.Logger
	now    func() time.Time

	vendorServices []string
	found          *hashmap.Map[string, Found]
	events         *ringchan.RingChannel[Event]
	opts           *Options
}

// New creates a scanner on dev.
func New(dev device.ScanningDevice, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		dev:            dev,
		logger:         logger,
		now:            time.Now,
		vendorServices: device.NormalizeUUIDs(service.DefaultCatalog().ServiceUUIDs()),
		found:          hashmap.New[string, Found](),
		events:         ringchan.New[Event](eventBuffer),
	}
}

// Events returns a read-only channel of board events. When nobody reads it
// the oldest events are dropped.
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

// Scan listens for opts.Duration and returns the boards seen, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *Options, progress ProgressCallback) ([]Found, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}
	s.found = hashmap.New[string, Found]()
	s.opts = opts

	s.logger.WithField("duration", opts.Duration).Info("Starting board scan...")
	progress("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	err := s.dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	progress("Processing results")
	boards := make([]Found, 0, s.found.Len())
	s.found.Range(func(_ string, f Found) bool {
		boards = append(boards, f)
		return true
	})
	slices.SortFunc(boards, func(a, b Found) int {
		if a.RSSI != b.RSSI {
			return b.RSSI - a.RSSI
		}
		if a.Address < b.Address {
			return -1
		}
		if a.Address > b.Address {
			return 1
		}
		return 0
	})

	s.logger.WithField("board_count", len(boards)).Info("Board scan completed")
	return boards, nil
}

func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	addr := adv.Addr()
	prev, existing := s.found.Get(addr)
	if !existing && !s.allowed(addr) {
		return
	}

	model, err := board.ParseManufacturerData(adv.ManufacturerData())
	adafruit := err == nil
	_, recognized := board.ModelForProduct(model.ProductID)
	recognized = adafruit && recognized
	if !adafruit && !existing && !s.advertisesVendorService(adv) {
		return
	}

	f := Found{
		Address:          addr,
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		Model:            model,
		Recognized:       recognized,
		ManufacturerData: adv.ManufacturerData(),
		LastSeen:         s.now(),
	}
	if existing {
		// scan responses may omit the name or manufacturer data
		if f.Name == "" {
			f.Name = prev.Name
		}
		if !recognized && prev.Recognized {
			f.Model, f.Recognized, f.ManufacturerData = prev.Model, true, prev.ManufacturerData
		}
	}
	s.found.Set(addr, f)

	event := Event{Type: EventUpdated, Board: f}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"board":   f.Name,
			"address": f.Address,
			"model":   f.Model.Name,
			"rssi":    f.RSSI,
		}).Info("Discovered new board")
	}
	s.events.Send(event)
}

func (s *Scanner) allowed(addr string) bool {
	if slices.Contains(s.opts.BlockList, addr) {
		return false
	}
	return len(s.opts.AllowList) == 0 || slices.Contains(s.opts.AllowList, addr)
}

func (s *Scanner) advertisesVendorService(adv device.Advertisement) bool {
	for _, uuid := range adv.Services() {
		if slices.Contains(s.vendorServices, device.NormalizeUUID(uuid)) {
			return true
		}
	}
	return false
}
