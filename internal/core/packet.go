// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawFrame is one Ethernet frame read from, or written to, the device.
type RawFrame struct {
	Data      []byte    // Frame bytes starting at the destination MAC
	Timestamp time.Time // Read or transmit time
	Inbound   bool      // true when the frame came from the device
}

// Len returns the frame length in bytes.
func (f RawFrame) Len() int {
	return len(f.Data)
}
