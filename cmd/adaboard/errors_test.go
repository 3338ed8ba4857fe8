package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"bluetooth off", fmt.Errorf("scan: %w", device.ErrBluetoothOff), "Bluetooth is turned off; enable it and try again"},
		{"board not found", fmt.Errorf("%w: AA:BB", ErrBoardNotFound), "board not found: AA:BB; run 'adaboard scan' to list nearby boards"},
		{"connection lost", ErrConnectionLost, "connection to the board was lost"},
		{"not connected", fmt.Errorf("read: %w", device.ErrNotConnected), "board is not connected"},
		{"no accessory", board.ErrNoAccessory, "no board attached"},
		{"unknown version", fmt.Errorf("accelerometer: %w: 7", service.ErrUnknownVersion), "accelerometer: unknown version: 7; the board firmware is not supported"},
		{"not enabled", fmt.Errorf("neopixels: %w", service.ErrNotEnabled), "neopixels: service not enabled; the board may not expose this service"},
		{"missing service", &device.NotFoundError{Resource: "service", UUIDs: []string{"ADAF0C00"}}, `service "ADAF0C00" not found; the board does not expose this service`},
		{"timeout", fmt.Errorf("setup: %w", context.DeadlineExceeded), "timed out: setup: context deadline exceeded"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
