//go:build !linux

package device

import (
	"fmt"
	"net/netip"
	"runtime"
)

// Configure is only available on Linux.
func Configure(name string, prefix netip.Prefix, mtu int) error {
	return fmt.Errorf("interface configuration is not supported on %s", runtime.GOOS)
}
