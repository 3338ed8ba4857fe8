// Package simulated provides an in-memory Adafruit accessory that speaks the
// vendor service protocol: version and period characteristics, periodic
// notifications, change-only buttons, pixel and tone writes.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/codec"
	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/groutine"
	"github.com/srg/adaboard/internal/service"
)

// Product ids advertised in the Adafruit manufacturer data.
const (
	ProductCircuitPlaygroundBluefruit uint16 = 0x8045
	ProductCLUE                       uint16 = 0x8072
	ProductFeatherSense               uint16 = 0x8088
)

// Options describe the simulated accessory.
type Options struct {
	ID        string
	Name      string
	ProductID uint16
	// Services lists the kinds the accessory exposes; empty means all.
	Services []service.Kind
	// Versions overrides the version reported per kind; the default is 1.
	Versions map[service.Kind]int32
	// SoundChannels is the value of the channel count characteristic.
	SoundChannels uint8
	// Now drives the generated signals; defaults to time.Now.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.ID == "" {
		o.ID = "e621e1f8-c36c-495a-93fc-0c247a3e6e5f"
	}
	if o.Name == "" {
		o.Name = "Simulated CPB"
	}
	if o.ProductID == 0 {
		o.ProductID = ProductCircuitPlaygroundBluefruit
	}
	if o.SoundChannels == 0 {
		o.SoundChannels = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Write is one recorded characteristic write.
type Write struct {
	Kind service.Kind
	UUID string
	Data []byte
}

// Accessory is a connected simulated board. It implements device.Transport,
// device.AccessoryInfo and device.DisconnectNotifier.
type Accessory struct {
	opts   Options
	logger *logrus.Logger
	start  time.Time

	mu         sync.Mutex
	discovered bool
	chars      map[string]*characteristic // keyed by service/char
	streams    map[service.Kind]*stream
	buttons    int32
	writes     []Write

	wg           sync.WaitGroup
	disconnected chan struct{}
	closeOnce    sync.Once
}

var (
	_ device.Transport          = (*Accessory)(nil)
	_ device.AccessoryInfo      = (*Accessory)(nil)
	_ device.DisconnectNotifier = (*Accessory)(nil)
)

// New builds a simulated accessory that is already connected.
func New(opts Options, logger *logrus.Logger) *Accessory {
	opts.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	a := &Accessory{
		opts:         opts,
		logger:       logger,
		start:        opts.Now(),
		chars:        make(map[string]*characteristic),
		streams:      make(map[service.Kind]*stream),
		disconnected: make(chan struct{}),
	}
	a.build()
	return a
}

func charKey(serviceUUID, charUUID string) string {
	return device.NormalizeUUID(serviceUUID) + "/" + device.NormalizeUUID(charUUID)
}

func (a *Accessory) build() {
	catalog := service.DefaultCatalog()
	kinds := a.opts.Services
	if len(kinds) == 0 {
		kinds = catalog.Kinds()
	}
	for _, kind := range kinds {
		desc, ok := catalog.Get(kind)
		if !ok {
			continue
		}
		add := func(uuid string) {
			c := &characteristic{kind: kind, uuid: device.NormalizeUUID(uuid), serviceUUID: device.NormalizeUUID(desc.ServiceUUID)}
			a.chars[charKey(desc.ServiceUUID, uuid)] = c
		}
		add(desc.MainCharUUID)
		add(desc.VersionCharUUID)
		if desc.PeriodCharUUID != "" {
			add(desc.PeriodCharUUID)
		}
		if kind == service.Sound {
			add(service.SoundChannelsCharUUID)
		}
		a.streams[kind] = &stream{desc: desc, period: service.PeriodDisabled}
		if desc.DefaultPeriod != nil && *desc.DefaultPeriod == service.PeriodOnChange {
			a.streams[kind].period = service.PeriodOnChange
		}
	}
}

func (a *Accessory) ID() string   { return a.opts.ID }
func (a *Accessory) Name() string { return a.opts.Name }

// ManufacturerData returns the Adafruit company id followed by a product id field.
func (a *Accessory) ManufacturerData() []byte {
	b := codec.AppendUint16(nil, 0x0822)
	b = append(b, 0x04)
	b = codec.AppendUint16(b, 0x0001)
	return codec.AppendUint16(b, a.opts.ProductID)
}

func (a *Accessory) Disconnected() <-chan struct{} { return a.disconnected }

// Disconnect simulates a link loss: streams stop and Disconnected is closed.
func (a *Accessory) Disconnect() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		for _, s := range a.streams {
			s.stop()
		}
		for _, c := range a.chars {
			c.notifying.Store(false)
		}
		a.mu.Unlock()
		close(a.disconnected)
		a.wg.Wait()
		a.logger.WithField("accessory", a.opts.ID).Info("Simulated accessory disconnected")
	})
}

func (a *Accessory) connected() error {
	select {
	case <-a.disconnected:
		return device.ErrNotConnected
	default:
		return nil
	}
}

func (a *Accessory) DiscoverServices(ctx context.Context, serviceUUIDs []string) error {
	if err := a.connected(); err != nil {
		return err
	}
	a.mu.Lock()
	a.discovered = true
	a.mu.Unlock()
	a.logger.WithField("requested", len(serviceUUIDs)).Debug("Simulated service discovery")
	return ctx.Err()
}

func (a *Accessory) FindCharacteristic(_ context.Context, serviceUUID, charUUID string) (device.Characteristic, error) {
	if err := a.connected(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.discovered {
		return nil, fmt.Errorf("services not discovered: %w", device.ErrNotInitialized)
	}
	c, ok := a.chars[charKey(serviceUUID, charUUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return c, nil
}

func (a *Accessory) char(ch device.Characteristic) (*characteristic, error) {
	c, ok := ch.(*characteristic)
	if !ok {
		return nil, fmt.Errorf("foreign characteristic %s", ch.UUID())
	}
	return c, nil
}

func (a *Accessory) Read(_ context.Context, ch device.Characteristic) ([]byte, error) {
	if err := a.connected(); err != nil {
		return nil, err
	}
	c, err := a.char(ch)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch c.uuid {
	case device.NormalizeUUID(service.VersionCharUUID):
		v, ok := a.opts.Versions[c.kind]
		if !ok {
			v = service.DefaultVersion
		}
		return codec.EncodeInt32(v), nil
	case device.NormalizeUUID(service.PeriodCharUUID):
		return codec.EncodeInt32(int32(a.streams[c.kind].period)), nil
	case device.NormalizeUUID(service.SoundChannelsCharUUID):
		return []byte{a.opts.SoundChannels}, nil
	}
	return a.sampleLocked(c.kind), nil
}

func (a *Accessory) Write(_ context.Context, ch device.Characteristic, data []byte, _ bool) error {
	if err := a.connected(); err != nil {
		return err
	}
	c, err := a.char(ch)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes = append(a.writes, Write{Kind: c.kind, UUID: c.uuid, Data: append([]byte(nil), data...)})

	if c.uuid == device.NormalizeUUID(service.PeriodCharUUID) {
		p, err := codec.Int32(data)
		if err != nil {
			return fmt.Errorf("period write: %w", err)
		}
		s := a.streams[c.kind]
		s.period = service.Period(p)
		a.restartLocked(s)
	}
	return nil
}

func (a *Accessory) Subscribe(_ context.Context, ch device.Characteristic, handler device.NotificationHandler) error {
	if err := a.connected(); err != nil {
		return err
	}
	c, err := a.char(ch)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.streams[c.kind]
	s.char = c
	s.handler = handler
	c.notifying.Store(true)
	a.restartLocked(s)
	return nil
}

func (a *Accessory) SetNotifyHandler(ch device.Characteristic, handler device.NotificationHandler) error {
	c, err := a.char(ch)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.streams[c.kind]
	if !c.notifying.Load() {
		return fmt.Errorf("%s is not notifying", c.uuid)
	}
	s.handler = handler
	return nil
}

func (a *Accessory) Unsubscribe(_ context.Context, ch device.Characteristic) error {
	if err := a.connected(); err != nil {
		return err
	}
	c, err := a.char(ch)
	if err != nil {
		return err
	}
	a.mu.Lock()
	s := a.streams[c.kind]
	s.stop()
	s.handler = nil
	c.notifying.Store(false)
	a.mu.Unlock()
	return nil
}

// SetButtons changes the buttons state and notifies a subscribed buttons stream.
func (a *Accessory) SetButtons(mask int32) {
	a.mu.Lock()
	changed := a.buttons != mask
	a.buttons = mask
	s, ok := a.streams[service.Buttons]
	var h device.NotificationHandler
	if ok && changed && s.char != nil && s.char.notifying.Load() {
		h = s.handler
	}
	a.mu.Unlock()
	if h != nil {
		h(codec.EncodeInt32(mask), nil)
	}
}

// Writes returns every write received so far, optionally filtered by kind.
func (a *Accessory) Writes(kind service.Kind) []Write {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Write
	for _, w := range a.writes {
		if kind == "" || w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

// Period returns the sample period last written for kind.
func (a *Accessory) Period(kind service.Kind) service.Period {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.streams[kind]; ok {
		return s.period
	}
	return service.PeriodDisabled
}

// restartLocked (re)starts the periodic notifier of s to match its period and subscription.
func (a *Accessory) restartLocked(s *stream) {
	s.stop()
	if s.char == nil || !s.char.notifying.Load() || s.period <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	interval := time.Duration(s.period) * time.Millisecond
	kind := s.desc.Kind

	groutine.GoWait(ctx, "simulated-"+string(kind), &a.wg, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.mu.Lock()
				if ctx.Err() != nil {
					a.mu.Unlock()
					return
				}
				h := s.handler
				data := a.sampleLocked(kind)
				a.mu.Unlock()
				if h != nil {
					h(data, nil)
				}
			}
		}
	})
}

type characteristic struct {
	kind        service.Kind
	uuid        string
	serviceUUID string
	notifying   atomic.Bool
}

func (c *characteristic) UUID() string        { return c.uuid }
func (c *characteristic) ServiceUUID() string { return c.serviceUUID }
func (c *characteristic) IsNotifying() bool   { return c.notifying.Load() }

type stream struct {
	desc    service.Descriptor
	period  service.Period
	char    *characteristic
	handler device.NotificationHandler
	cancel  context.CancelFunc
}

func (s *stream) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
