// Package device provides the link-layer endpoints the pipeline reads frames
// from and writes frames to: a Linux TAP interface and a pcap replay file.
package device

import (
	"fmt"

	"firestige.xyz/tapstack/internal/core"
)

// Device moves whole Ethernet frames. Implementations must allow Close to
// be called while a ReadFrame is blocked; the read then returns an error.
type Device interface {
	// ReadFrame reads one frame into buf and returns its length. io.EOF
	// means no more frames will arrive.
	ReadFrame(buf []byte) (int, error)
	// WriteFrame transmits one complete frame.
	WriteFrame(frame []byte) (int, error)
	Close() error
	Name() string
}

// ErrClosed is returned by operations on a closed device.
var ErrClosed = fmt.Errorf("%w: device closed", core.ErrIO)
