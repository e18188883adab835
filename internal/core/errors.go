// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Layers wrap them with fmt.Errorf("%w: ...") so callers can
// match with errors.Is while still seeing the concrete cause.
var (
	// Packet decoding errors
	ErrInvalidPacket    = errors.New("tapstack: invalid packet")
	ErrChecksumMismatch = errors.New("tapstack: checksum mismatch")

	// Device errors
	ErrIO = errors.New("tapstack: device io")

	// Transport errors, reserved for a connection-oriented layer.
	ErrConnectionFailed = errors.New("tapstack: connection failed")

	// Resolution errors
	ErrAddressUnresolved = errors.New("tapstack: address unresolved")

	// Configuration errors
	ErrConfigInvalid = errors.New("tapstack: invalid configuration")
)
