package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps well-known transport error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// ----------------------------
// Transport contract
// ----------------------------

// NotificationHandler receives every notification payload of a subscribed characteristic.
// A non-nil err reports a subscription failure; data is nil in that case.
// The data slice is owned by the handler once delivered.
type NotificationHandler func(data []byte, err error)

// Characteristic is an opaque handle to a discovered characteristic.
type Characteristic interface {
	UUID() string
	ServiceUUID() string
	// IsNotifying reports whether the accessory currently pushes notifications for it.
	IsNotifying() bool
}

// Transport is the GATT client surface of one connected accessory.
//
// All UUID arguments accept any form understood by NormalizeUUID.
type Transport interface {
	// ID returns a stable opaque identifier of the accessory.
	ID() string

	// DiscoverServices discovers the given services (all when empty) and their characteristics.
	DiscoverServices(ctx context.Context, serviceUUIDs []string) error

	// FindCharacteristic returns a handle to a previously discovered characteristic.
	// A *NotFoundError is returned when the service or characteristic is missing.
	FindCharacteristic(ctx context.Context, serviceUUID, charUUID string) (Characteristic, error)

	Read(ctx context.Context, char Characteristic) ([]byte, error)
	Write(ctx context.Context, char Characteristic, data []byte, withResponse bool) error

	// Subscribe enables notifications and routes them to handler.
	Subscribe(ctx context.Context, char Characteristic, handler NotificationHandler) error

	// SetNotifyHandler rebinds the handler of an already notifying characteristic
	// without touching the accessory.
	SetNotifyHandler(char Characteristic, handler NotificationHandler) error

	Unsubscribe(ctx context.Context, char Characteristic) error
}

// AccessoryInfo is implemented by transports that know the advertisement of their accessory.
type AccessoryInfo interface {
	Name() string
	ManufacturerData() []byte
}

// DisconnectNotifier is implemented by transports that can report an unexpected disconnection.
type DisconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// ----------------------------
// Scanning
// ----------------------------

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Advertisement is the subset of an advertising packet the scanner needs.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	Connectable() bool
	RSSI() int
	Addr() string
}
