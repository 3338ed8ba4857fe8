// Package board is the facade over one connected Adafruit accessory: it runs
// service setup, turns notifications into typed readings with history, and
// sends pixel and tone commands.
package board

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/groutine"
	"github.com/srg/adaboard/internal/neopixel"
	"github.com/srg/adaboard/internal/sensor"
	"github.com/srg/adaboard/internal/service"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNoAccessory is returned by operations that need a connected accessory.
var ErrNoAccessory = errors.New("no accessory")

// Board owns at most one accessory connection at a time. Streams, their
// subscribers and their history belong to the Board and survive reconnects.
type Board struct {
	logger *logrus.Logger
	opts   Options

	streams map[service.Kind]Service

	temperature   *Stream[float32]
	light         *Stream[float32]
	humidity      *Stream[float32]
	pressure      *Stream[float32]
	accelerometer *Stream[sensor.Vector3]
	gyroscope     *Stream[sensor.Vector3]
	magnetometer  *Stream[sensor.Vector3]
	quaternion    *Stream[sensor.Quaternion]
	buttons       *Stream[sensor.ButtonsState]
	color         *Stream[sensor.Color]
	sound         *Stream[sensor.Amplitudes]
	soundDecoder  sensor.SoundDecoder

	setupMu sync.Mutex
	mu      sync.RWMutex
	conn    *connection
}

// connection is the per-accessory state, dropped on teardown.
type connection struct {
	transport device.Transport
	engine    *service.Engine
	model     Model
	pixels    *neopixel.PixelState
	writer    *neopixel.FrameWriter
	delivery  *dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	animMu    sync.Mutex
	animation *neopixel.Animation
}

// New creates a board with no accessory; call Setup to attach one.
func New(logger *logrus.Logger, opts Options) *Board {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()

	b := &Board{
		logger:  logger,
		opts:    opts,
		streams: make(map[service.Kind]Service),
	}

	b.temperature = newStream(b, service.Temperature, sensor.DecodeScalar)
	b.light = newStream(b, service.Light, sensor.DecodeScalar)
	b.humidity = newStream(b, service.Humidity, sensor.DecodeScalar)
	b.pressure = newStream(b, service.Pressure, sensor.DecodeScalar)

	b.accelerometer = newStream(b, service.Accelerometer, sensor.DecodeVector3)
	b.accelerometer.adjust = func(v sensor.Vector3) sensor.Vector3 {
		if b.flipsOrientation() {
			return sensor.FlipAcceleration(v)
		}
		return v
	}
	b.gyroscope = newStream(b, service.Gyroscope, sensor.DecodeVector3)
	b.magnetometer = newStream(b, service.Magnetometer, sensor.DecodeVector3)
	b.quaternion = newStream(b, service.Quaternion, sensor.DecodeQuaternion)
	b.quaternion.adjust = func(q sensor.Quaternion) sensor.Quaternion {
		if b.flipsOrientation() {
			return sensor.FlipQuaternion(q)
		}
		return q
	}

	b.buttons = newStream(b, service.Buttons, sensor.DecodeButtons)
	b.color = newStream(b, service.Color, sensor.DecodeColor)

	b.sound = newStream(b, service.Sound, b.soundDecoder.Decode)
	b.sound.afterEnable = b.readSoundChannels
	b.sound.keep = func(a sensor.Amplitudes) bool {
		for _, v := range a {
			if math.IsNaN(v) {
				return false
			}
		}
		return true
	}

	b.streams[service.Neopixels] = &commandService{board: b, kind: service.Neopixels}
	b.streams[service.ToneGenerator] = &commandService{board: b, kind: service.ToneGenerator}
	return b
}

// Typed streams, one per sensor service.

func (b *Board) Temperature() *Stream[float32]          { return b.temperature }
func (b *Board) Light() *Stream[float32]                { return b.light }
func (b *Board) Humidity() *Stream[float32]             { return b.humidity }
func (b *Board) Pressure() *Stream[float32]             { return b.pressure }
func (b *Board) Accelerometer() *Stream[sensor.Vector3] { return b.accelerometer }
func (b *Board) Gyroscope() *Stream[sensor.Vector3]     { return b.gyroscope }
func (b *Board) Magnetometer() *Stream[sensor.Vector3]  { return b.magnetometer }
func (b *Board) Quaternion() *Stream[sensor.Quaternion] { return b.quaternion }
func (b *Board) Buttons() *Stream[sensor.ButtonsState]  { return b.buttons }
func (b *Board) Color() *Stream[sensor.Color]           { return b.color }
func (b *Board) Sound() *Stream[sensor.Amplitudes]      { return b.sound }
func (b *Board) Catalog() *service.Catalog              { return b.opts.Catalog }

// Service returns the kind-independent controller of kind.
func (b *Board) Service(kind service.Kind) (Service, bool) {
	s, ok := b.streams[kind]
	return s, ok
}

// ButtonsReadState reads the current buttons state from the accessory.
func (b *Board) ButtonsReadState(ctx context.Context) (sensor.ButtonsState, error) {
	return b.buttons.Read(ctx)
}

// SoundLastAmplitude returns the amplitude of the first channel of the last sound reading.
func (b *Board) SoundLastAmplitude() (float64, bool) {
	a, ok := b.sound.LastValue()
	if !ok || len(a) == 0 {
		return 0, false
	}
	return a[0], true
}

// Model returns the model of the connected accessory.
func (b *Board) Model() (Model, error) {
	c, err := b.current()
	if err != nil {
		return Model{}, err
	}
	return c.model, nil
}

// AccessoryID returns the identifier of the connected accessory.
func (b *Board) AccessoryID() (string, error) {
	c, err := b.current()
	if err != nil {
		return "", err
	}
	return c.transport.ID(), nil
}

func (b *Board) current() (*connection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return nil, ErrNoAccessory
	}
	return b.conn, nil
}

func (b *Board) currentEngine() (*service.Engine, error) {
	c, err := b.current()
	if err != nil {
		return nil, err
	}
	return c.engine, nil
}

func (b *Board) flipsOrientation() bool {
	if b.opts.KeepRawOrientation {
		return false
	}
	c, err := b.current()
	return err == nil && c.model.FlipsOrientation
}

func (b *Board) deliver(fn func()) {
	c, err := b.current()
	if err != nil {
		return
	}
	if !c.delivery.post(fn) {
		b.logger.Debug("Delivery stopped, reading not published")
	}
}

// Flush waits until every reading received so far has been handed to subscribers.
func (b *Board) Flush(ctx context.Context) error {
	c, err := b.current()
	if err != nil {
		return err
	}
	return c.delivery.flush(ctx)
}

func (b *Board) readSoundChannels(ctx context.Context) error {
	engine, err := b.currentEngine()
	if err != nil {
		return err
	}
	data, err := engine.ReadSibling(ctx, service.Sound, service.SoundChannelsCharUUID)
	if err != nil {
		return fmt.Errorf("%s: read channel count: %w", service.Sound, err)
	}
	if err := b.soundDecoder.SetChannelsFrom(data); err != nil {
		return fmt.Errorf("%s: %w", service.Sound, err)
	}
	n, _ := b.soundDecoder.Channels()
	b.logger.WithField("channels", n).Debug("Sound channel count cached")
	return nil
}

// SetupReport holds the outcome of every service requested from Setup, in request order.
type SetupReport struct {
	Model   Model
	Results *orderedmap.OrderedMap[service.Kind, error]
}

// Enabled returns the kinds that were enabled.
func (r *SetupReport) Enabled() []service.Kind { return r.filter(true) }

// Failed returns the kinds that failed to enable.
func (r *SetupReport) Failed() []service.Kind { return r.filter(false) }

func (r *SetupReport) filter(ok bool) []service.Kind {
	var kinds []service.Kind
	for pair := r.Results.Oldest(); pair != nil; pair = pair.Next() {
		if (pair.Value == nil) == ok {
			kinds = append(kinds, pair.Key)
		}
	}
	return kinds
}

// Err joins the errors of every failed service, or returns nil.
func (r *SetupReport) Err() error {
	var errs []error
	for pair := r.Results.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value != nil {
			errs = append(errs, pair.Value)
		}
	}
	return errors.Join(errs...)
}

// Setup attaches transport, discovers the vendor services once and enables
// kinds concurrently. It fails only when discovery fails; per-service
// failures are reported in the returned SetupReport.
func (b *Board) Setup(ctx context.Context, transport device.Transport, kinds ...service.Kind) (*SetupReport, error) {
	b.setupMu.Lock()
	defer b.setupMu.Unlock()

	if _, err := b.current(); err == nil {
		return nil, fmt.Errorf("setup: %w", device.ErrAlreadyConnected)
	}
	for _, k := range kinds {
		if _, ok := b.streams[k]; !ok {
			return nil, fmt.Errorf("setup: unknown service %q", k)
		}
	}

	log := b.logger.WithField("accessory", transport.ID())
	log.WithField("services", kinds).Info("Setting up accessory")

	if err := transport.DiscoverServices(ctx, b.opts.Catalog.ServiceUUIDs()); err != nil {
		log.WithField("error", err).Error("Service discovery failed")
		return nil, fmt.Errorf("discover services: %w", err)
	}

	model := UnknownModel
	if info, ok := transport.(device.AccessoryInfo); ok {
		m, err := ParseManufacturerData(info.ManufacturerData())
		if err != nil {
			log.WithField("error", err).Debug("Board model not advertised, using defaults")
		}
		model = m
	}
	log.WithFields(logrus.Fields{
		"model":  model.Name,
		"pixels": model.Pixels,
	}).Info("Accessory attached")

	c := b.attach(transport, model)

	results := make([]error, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		svc := b.streams[kind]
		groutine.GoWait(ctx, "board-setup-"+string(kind), &wg, func(ctx context.Context) {
			results[i] = svc.Enable(ctx)
		})
	}
	wg.Wait()

	report := &SetupReport{Model: c.model, Results: orderedmap.New[service.Kind, error](len(kinds))}
	for i, kind := range kinds {
		report.Results.Set(kind, results[i])
	}
	if failed := report.Failed(); len(failed) > 0 {
		log.WithFields(logrus.Fields{
			"failed": failed,
			"error":  report.Err(),
		}).Warn("Some services could not be enabled")
	}
	log.WithField("enabled", report.Enabled()).Info("Accessory setup complete")
	return report, nil
}

func (b *Board) attach(transport device.Transport, model Model) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		transport: transport,
		engine:    service.NewEngine(transport, b.logger),
		model:     model,
		pixels:    neopixel.NewPixelState(model.Pixels),
		delivery:  newDispatcher(b.logger),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.writer = neopixel.NewFrameWriter(c.writePixels, b.logger)

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()

	if n, ok := transport.(device.DisconnectNotifier); ok {
		groutine.Go(ctx, "board-disconnect-watch", func(ctx context.Context) {
			select {
			case <-n.Disconnected():
				b.logger.WithField("accessory", transport.ID()).Warn("Accessory disconnected")
				b.teardown(c)
			case <-ctx.Done():
			}
		})
	}
	return c
}

// WillDisconnect turns every pixel off while the accessory can still be
// commanded. Call it before the transport goes away.
func (b *Board) WillDisconnect(ctx context.Context) error {
	c, err := b.current()
	if err != nil {
		return err
	}
	c.animMu.Lock()
	defer c.animMu.Unlock()
	c.stopAnimation()
	if !c.engine.IsEnabled(service.Neopixels) {
		return nil
	}
	return c.writeFrame(ctx, neopixel.Fill(c.pixels.Pixels(), neopixel.Off))
}

// Close turns the pixels off and tears the connection down.
func (b *Board) Close(ctx context.Context) error {
	err := b.WillDisconnect(ctx)
	b.Teardown()
	if errors.Is(err, ErrNoAccessory) {
		return nil
	}
	return err
}

// Teardown drops the accessory without talking to it: sessions are cleared,
// the animation and the frame writer stop, and delivery ends once the queued
// readings are published.
func (b *Board) Teardown() {
	c, err := b.current()
	if err != nil {
		return
	}
	b.teardown(c)
}

func (b *Board) teardown(c *connection) {
	b.mu.Lock()
	if b.conn != c {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.mu.Unlock()

	c.animMu.Lock()
	c.stopAnimation()
	c.animMu.Unlock()

	c.engine.Teardown()
	c.cancel()
	c.delivery.stop()
	b.soundDecoder.Reset()

	b.logger.WithField("accessory", c.transport.ID()).Info("Accessory torn down")
}

// commandService is a service without notifications: pixels and tone.
type commandService struct {
	board *Board
	kind  service.Kind
}

func (s *commandService) Kind() service.Kind { return s.kind }

func (s *commandService) Enable(ctx context.Context) error {
	engine, err := s.board.currentEngine()
	if err != nil {
		return err
	}
	return engine.Enable(ctx, s.board.opts.Catalog.MustGet(s.kind), service.EnableOptions{})
}

func (s *commandService) Disable(ctx context.Context) error {
	engine, err := s.board.currentEngine()
	if err != nil {
		return err
	}
	return engine.Disable(ctx, s.kind)
}

func (s *commandService) IsEnabled() bool {
	engine, err := s.board.currentEngine()
	return err == nil && engine.IsEnabled(s.kind)
}
