// Package device defines the transport contract the board engine consumes:
// service discovery, characteristic lookup, reads, writes and notification
// subscription against a single connected accessory.
//
// Concrete transports live in sub-packages:
//   - go-ble: a real accessory reached through github.com/go-ble/ble
//   - simulated: an in-memory accessory used by tests and the --simulate CLI flag
package device
