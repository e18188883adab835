//go:build !linux

package device

import (
	"fmt"
	"runtime"

	"golang.org/x/net/bpf"
)

// TAP is only available on Linux.
type TAP struct{}

// OpenTAP always fails outside Linux.
func OpenTAP(name string) (*TAP, error) {
	return nil, fmt.Errorf("tap devices are not supported on %s", runtime.GOOS)
}

func (t *TAP) Name() string                                 { return "" }
func (t *TAP) ReadFrame(buf []byte) (int, error)            { return 0, ErrClosed }
func (t *TAP) WriteFrame(frame []byte) (int, error)         { return 0, ErrClosed }
func (t *TAP) AttachFilter(prog []bpf.RawInstruction) error { return ErrClosed }
func (t *TAP) Close() error                                 { return nil }
