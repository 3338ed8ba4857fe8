package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/adaboard/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockCharacteristic is a device.Characteristic whose notifying flag is driven by MockTransport.
type MockCharacteristic struct {
	uuid        string
	serviceUUID string
	notifying   atomic.Bool
}

// NewMockCharacteristic creates a characteristic handle; UUIDs are normalized.
func NewMockCharacteristic(serviceUUID, uuid string) *MockCharacteristic {
	return &MockCharacteristic{
		uuid:        device.NormalizeUUID(uuid),
		serviceUUID: device.NormalizeUUID(serviceUUID),
	}
}

func (c *MockCharacteristic) UUID() string        { return c.uuid }
func (c *MockCharacteristic) ServiceUUID() string { return c.serviceUUID }
func (c *MockCharacteristic) IsNotifying() bool   { return c.notifying.Load() }

// SetNotifying forces the notifying flag.
func (c *MockCharacteristic) SetNotifying(v bool) { c.notifying.Store(v) }

// MockTransport is a testify mock of device.Transport.
//
// Successful Subscribe and Unsubscribe calls flip the notifying flag of a
// *MockCharacteristic and remember the handler, so tests can push
// notifications with Notify. Set KeepNotifyState to leave the flag alone and
// simulate an accessory that never confirms the change.
type MockTransport struct {
	mock.Mock

	AccessoryID     string
	KeepNotifyState bool

	mu       sync.Mutex
	handlers map[string]device.NotificationHandler
}

var _ device.Transport = (*MockTransport)(nil)

// NewMockTransport creates a mock transport with the given accessory id.
func NewMockTransport(id string) *MockTransport {
	return &MockTransport{
		AccessoryID: id,
		handlers:    make(map[string]device.NotificationHandler),
	}
}

func (m *MockTransport) ID() string { return m.AccessoryID }

func (m *MockTransport) DiscoverServices(ctx context.Context, serviceUUIDs []string) error {
	return m.Called(ctx, serviceUUIDs).Error(0)
}

func (m *MockTransport) FindCharacteristic(ctx context.Context, serviceUUID, charUUID string) (device.Characteristic, error) {
	args := m.Called(ctx, serviceUUID, charUUID)
	ch, _ := args.Get(0).(device.Characteristic)
	return ch, args.Error(1)
}

func (m *MockTransport) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	args := m.Called(ctx, char)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockTransport) Write(ctx context.Context, char device.Characteristic, data []byte, withResponse bool) error {
	return m.Called(ctx, char, data, withResponse).Error(0)
}

func (m *MockTransport) Subscribe(ctx context.Context, char device.Characteristic, handler device.NotificationHandler) error {
	if err := m.Called(ctx, char, handler).Error(0); err != nil {
		return err
	}
	m.bind(char, handler)
	if mc, ok := char.(*MockCharacteristic); ok && !m.KeepNotifyState {
		mc.SetNotifying(true)
	}
	return nil
}

func (m *MockTransport) SetNotifyHandler(char device.Characteristic, handler device.NotificationHandler) error {
	if err := m.Called(char, handler).Error(0); err != nil {
		return err
	}
	m.bind(char, handler)
	return nil
}

func (m *MockTransport) Unsubscribe(ctx context.Context, char device.Characteristic) error {
	if err := m.Called(ctx, char).Error(0); err != nil {
		return err
	}
	m.bind(char, nil)
	if mc, ok := char.(*MockCharacteristic); ok && !m.KeepNotifyState {
		mc.SetNotifying(false)
	}
	return nil
}

func (m *MockTransport) bind(char device.Characteristic, handler device.NotificationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler == nil {
		delete(m.handlers, char.UUID())
		return
	}
	m.handlers[char.UUID()] = handler
}

// Notify delivers data to the handler bound to charUUID; it reports whether one was bound.
func (m *MockTransport) Notify(charUUID string, data []byte) bool {
	return m.deliver(charUUID, data, nil)
}

// NotifyError delivers a subscription failure to the handler bound to charUUID.
func (m *MockTransport) NotifyError(charUUID string, err error) bool {
	return m.deliver(charUUID, nil, err)
}

func (m *MockTransport) deliver(charUUID string, data []byte, err error) bool {
	m.mu.Lock()
	h, ok := m.handlers[device.NormalizeUUID(charUUID)]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h(data, err)
	return true
}
