package goble

import (
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/srg/adaboard/internal/bledb"
	"github.com/srg/adaboard/internal/device"
)

// BLECharacteristic is a discovered characteristic together with its live notification state.
type BLECharacteristic struct {
	uuid        string
	serviceUUID string
	knownName   string
	BLEChar     *ble.Characteristic

	notifying atomic.Bool
	handler   atomic.Pointer[device.NotificationHandler]
	// received counts notifications since the last subscribe
	received atomic.Uint64
}

func newCharacteristic(c *ble.Characteristic, serviceUUID string) *BLECharacteristic {
	rawUUID := c.UUID.String()
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(rawUUID),
		serviceUUID: serviceUUID,
		knownName:   bledb.LookupCharacteristic(rawUUID),
		BLEChar:     c,
	}
}

func (c *BLECharacteristic) UUID() string        { return c.uuid }
func (c *BLECharacteristic) ServiceUUID() string { return c.serviceUUID }
func (c *BLECharacteristic) KnownName() string   { return c.knownName }
func (c *BLECharacteristic) IsNotifying() bool   { return c.notifying.Load() }

// CanNotify reports whether the characteristic supports notifications or indications.
func (c *BLECharacteristic) CanNotify() bool {
	return c.BLEChar.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

// usesIndication reports whether subscriptions must use indications instead of notifications.
func (c *BLECharacteristic) usesIndication() bool {
	return c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
}

func (c *BLECharacteristic) setHandler(h device.NotificationHandler) {
	c.handler.Store(&h)
}

// dispatch copies the payload out of the go-ble buffer and hands it to the current handler.
func (c *BLECharacteristic) dispatch(req []byte) {
	h := c.handler.Load()
	if h == nil || *h == nil {
		return
	}
	c.received.Add(1)
	data := make([]byte, len(req))
	copy(data, req)
	(*h)(data, nil)
}

// fail reports a subscription failure to the current handler.
func (c *BLECharacteristic) fail(err error) {
	if h := c.handler.Load(); h != nil && *h != nil {
		(*h)(nil, err)
	}
}
