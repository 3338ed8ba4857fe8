package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the board went away while a command was using it.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a board that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")

	// ErrBoardNotFound is returned when the address was not seen while scanning.
	ErrBoardNotFound = errors.New("board not found")
)

// FormatUserError turns an error chain into a one-line message with a hint
// about what to do next. Unknown errors are returned as is.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, ErrBoardNotFound):
		return fmt.Sprintf("%v; run 'adaboard scan' to list nearby boards", err)
	case errors.Is(err, ErrConnectionLost):
		return "connection to the board was lost"
	case errors.Is(err, device.ErrNotConnected):
		return "board is not connected"
	case errors.Is(err, board.ErrNoAccessory):
		return "no board attached"
	case errors.Is(err, service.ErrUnknownVersion):
		return fmt.Sprintf("%v; the board firmware is not supported", err)
	case errors.Is(err, service.ErrNotEnabled):
		return fmt.Sprintf("%v; the board may not expose this service", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%v; the board does not expose this service", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	default:
		return err.Error()
	}
}
