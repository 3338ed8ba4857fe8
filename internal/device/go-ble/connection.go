package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/bledb"
	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/groutine"
)

const (
	// DefaultConnectTimeout bounds ble.Dial when the caller context carries no deadline.
	DefaultConnectTimeout = 30 * time.Second
)

// ----------------------------
// BLE Connection
// ----------------------------

// BLEConnection is a device.Transport backed by a go-ble client.
type BLEConnection struct {
	address string
	name    string
	mfgData []byte

	client     ble.Client
	logger     *logrus.Logger
	writeMutex sync.Mutex
	connMutex  sync.RWMutex

	profile  *ble.Profile
	services map[string]map[string]*BLECharacteristic // service uuid -> char uuid -> char

	disconnected chan struct{}
	closeOnce    sync.Once
}

var (
	_ device.Transport          = (*BLEConnection)(nil)
	_ device.AccessoryInfo      = (*BLEConnection)(nil)
	_ device.DisconnectNotifier = (*BLEConnection)(nil)
)

// NewBLEConnection creates an unconnected transport for the accessory at address.
// name and manufacturerData usually come from the advertisement seen while scanning.
func NewBLEConnection(address, name string, manufacturerData []byte, logger *logrus.Logger) *BLEConnection {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEConnection{
		address:      address,
		name:         name,
		mfgData:      manufacturerData,
		logger:       logger,
		services:     make(map[string]map[string]*BLECharacteristic),
		disconnected: make(chan struct{}),
	}
}

// ID returns the accessory address.
func (c *BLEConnection) ID() string { return c.address }

// Name returns the advertised local name, or the name reported by the client once connected.
func (c *BLEConnection) Name() string {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if c.name == "" && c.client != nil {
		return c.client.Name()
	}
	return c.name
}

// ManufacturerData returns the manufacturer specific advertisement data.
func (c *BLEConnection) ManufacturerData() []byte { return c.mfgData }

// Disconnected is closed once the link goes down.
func (c *BLEConnection) Disconnected() <-chan struct{} { return c.disconnected }

// Connect dials the accessory.
func (c *BLEConnection) Connect(ctx context.Context) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(c.address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}
	if c.client != nil {
		c.logger.WithField("address", c.address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	connCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	c.logger.WithField("address", c.address).Info("Connecting to BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(c.address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", c.address, NormalizeError(err))
	}
	c.client = client

	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-notifier.Disconnected():
				c.logger.WithField("address", c.address).Warn("BLE device reported disconnection")
				c.markDisconnected()
			case <-c.disconnected:
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	c.logger.WithField("address", c.address).Info("BLE device connected")
	return nil
}

func (c *BLEConnection) markDisconnected() {
	c.closeOnce.Do(func() {
		c.connMutex.RLock()
		for _, chars := range c.services {
			for _, ch := range chars {
				ch.notifying.Store(false)
			}
		}
		c.connMutex.RUnlock()
		close(c.disconnected)
	})
}

// Disconnect unsubscribes everything that is still notifying and cancels the connection.
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	client := c.client
	c.client = nil
	var notifying []*BLECharacteristic
	for _, chars := range c.services {
		for _, ch := range chars {
			if ch.IsNotifying() {
				notifying = append(notifying, ch)
			}
		}
	}
	c.connMutex.Unlock()

	if client == nil {
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	for _, ch := range notifying {
		if err := NormalizeError(client.Unsubscribe(ch.BLEChar, ch.usesIndication())); err != nil {
			c.logger.WithFields(logrus.Fields{
				"char_uuid": ch.uuid,
				"error":     err,
			}).Warn("Failed to unsubscribe during disconnect")
		}
		ch.notifying.Store(false)
	}

	err := client.CancelConnection()
	c.markDisconnected()
	if err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}

func (c *BLEConnection) currentClient() (ble.Client, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if c.client == nil {
		return nil, device.ErrNotConnected
	}
	return c.client, nil
}

// DiscoverServices discovers the GATT profile once and indexes the requested services.
// An empty serviceUUIDs indexes every discovered service.
func (c *BLEConnection) DiscoverServices(ctx context.Context, serviceUUIDs []string) error {
	client, err := c.currentClient()
	if err != nil {
		return err
	}

	profile, err := runWithContext(ctx, func() (*ble.Profile, error) {
		c.connMutex.RLock()
		cached := c.profile
		c.connMutex.RUnlock()
		if cached != nil {
			return cached, nil
		}
		return client.DiscoverProfile(true)
	})
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to discover profile")
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	wanted := make(map[string]bool, len(serviceUUIDs))
	for _, u := range serviceUUIDs {
		wanted[device.NormalizeUUID(u)] = true
	}

	c.connMutex.Lock()
	defer c.connMutex.Unlock()
	c.profile = profile

	totalChars := 0
	for _, svc := range profile.Services {
		svcRaw := svc.UUID.String()
		svcUUID := device.NormalizeUUID(svcRaw)
		if len(wanted) > 0 && !wanted[svcUUID] {
			continue
		}
		delete(wanted, svcUUID)

		chars, ok := c.services[svcUUID]
		if !ok {
			chars = make(map[string]*BLECharacteristic)
			c.services[svcUUID] = chars
		}
		for _, bc := range svc.Characteristics {
			charUUID := device.NormalizeUUID(bc.UUID.String())
			if existing, ok := chars[charUUID]; ok {
				existing.BLEChar = bc
			} else {
				chars[charUUID] = newCharacteristic(bc, svcUUID)
			}
			totalChars++
		}
		c.logger.WithFields(logrus.Fields{
			"service_uuid": svcUUID,
			"service_name": bledb.LookupService(svcRaw),
		}).Debug("Found service")
	}

	c.logger.WithFields(logrus.Fields{
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Debug("Profile discovered successfully")

	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for u := range wanted {
			missing = append(missing, u)
		}
		c.logger.WithField("missing", missing).Debug("Requested services are not offered by the accessory")
	}
	return nil
}

// FindCharacteristic looks up a characteristic discovered by DiscoverServices.
func (c *BLEConnection) FindCharacteristic(_ context.Context, serviceUUID, charUUID string) (device.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	chars, ok := c.services[device.NormalizeUUID(serviceUUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	ch, ok := chars[device.NormalizeUUID(charUUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return ch, nil
}

func (c *BLEConnection) characteristic(char device.Characteristic) (*BLECharacteristic, error) {
	ch, ok := char.(*BLECharacteristic)
	if !ok || ch == nil || ch.BLEChar == nil {
		return nil, fmt.Errorf("%w: characteristic handle %T does not belong to this transport", device.ErrUnsupported, char)
	}
	return ch, nil
}

// Read reads the current characteristic value.
func (c *BLEConnection) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	ch, err := c.characteristic(char)
	if err != nil {
		return nil, err
	}
	client, err := c.currentClient()
	if err != nil {
		return nil, err
	}

	data, err := runWithContext(ctx, func() ([]byte, error) {
		return client.ReadCharacteristic(ch.BLEChar)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", ch.uuid, NormalizeError(err))
	}
	return data, nil
}

// Write writes data to the characteristic. Writes are serialized per connection.
func (c *BLEConnection) Write(ctx context.Context, char device.Characteristic, data []byte, withResponse bool) error {
	ch, err := c.characteristic(char)
	if err != nil {
		return err
	}
	client, err := c.currentClient()
	if err != nil {
		return err
	}

	_, err = runWithContext(ctx, func() (struct{}, error) {
		c.writeMutex.Lock()
		defer c.writeMutex.Unlock()
		return struct{}{}, client.WriteCharacteristic(ch.BLEChar, data, !withResponse)
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", ch.uuid, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications (or indications) and routes them to handler.
func (c *BLEConnection) Subscribe(ctx context.Context, char device.Characteristic, handler device.NotificationHandler) error {
	ch, err := c.characteristic(char)
	if err != nil {
		return err
	}
	if !ch.CanNotify() {
		return fmt.Errorf("%w: characteristic %s does not support notifications", device.ErrUnsupported, ch.uuid)
	}
	client, err := c.currentClient()
	if err != nil {
		return err
	}

	ch.setHandler(handler)
	ch.received.Store(0)
	if err = c.subscribeWithContext(ctx, client, ch); err != nil {
		ch.setHandler(nil)
		err = NormalizeError(err)
		c.logger.WithFields(logrus.Fields{
			"char_uuid": ch.uuid,
			"error":     err,
		}).Error("Failed to subscribe to characteristic")
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", ch.uuid, err)
	}
	ch.notifying.Store(true)

	c.logger.WithFields(logrus.Fields{
		"service_uuid": ch.serviceUUID,
		"char_uuid":    ch.uuid,
		"char_name":    ch.knownName,
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

// subscribeWithContext runs client.Subscribe and gives up when ctx is done.
// A subscription that completes after the caller gave up is torn down again.
func (c *BLEConnection) subscribeWithContext(ctx context.Context, client ble.Client, ch *BLECharacteristic) error {
	done := make(chan error)
	abandon := make(chan struct{})
	go func() {
		err := client.Subscribe(ch.BLEChar, ch.usesIndication(), ch.dispatch)
		select {
		case done <- err:
		case <-abandon:
			if err != nil {
				return
			}
			if uerr := client.Unsubscribe(ch.BLEChar, ch.usesIndication()); uerr != nil {
				c.logger.WithFields(logrus.Fields{
					"char_uuid": ch.uuid,
					"error":     uerr,
				}).Warn("Failed to undo abandoned subscription")
				return
			}
			c.logger.WithField("char_uuid", ch.uuid).Debug("Undid abandoned subscription")
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		close(abandon)
		return fmt.Errorf("%w: %w", device.ErrTimeout, context.Cause(ctx))
	}
}

// SetNotifyHandler swaps the handler of an already notifying characteristic.
func (c *BLEConnection) SetNotifyHandler(char device.Characteristic, handler device.NotificationHandler) error {
	ch, err := c.characteristic(char)
	if err != nil {
		return err
	}
	if !ch.IsNotifying() {
		return fmt.Errorf("characteristic %s is not notifying", ch.uuid)
	}
	ch.setHandler(handler)
	return nil
}

// Unsubscribe disables notifications.
func (c *BLEConnection) Unsubscribe(ctx context.Context, char device.Characteristic) error {
	ch, err := c.characteristic(char)
	if err != nil {
		return err
	}
	client, err := c.currentClient()
	if err != nil {
		return err
	}

	_, err = runWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, client.Unsubscribe(ch.BLEChar, ch.usesIndication())
	})
	if err != nil {
		err = NormalizeError(err)
		ch.fail(err)
		return fmt.Errorf("failed to unsubscribe from characteristic %s: %w", ch.uuid, err)
	}
	ch.notifying.Store(false)
	ch.setHandler(nil)

	c.logger.WithFields(logrus.Fields{
		"char_uuid": ch.uuid,
		"received":  ch.received.Load(),
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// runWithContext runs a blocking go-ble call and gives up when ctx is done.
// go-ble calls cannot be interrupted, so an abandoned call finishes in the background.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		v, err := fn()
		resultCh <- result{v: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", device.ErrTimeout, context.Cause(ctx))
	}
}
