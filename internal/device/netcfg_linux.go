//go:build linux

package device

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Configure gives the host side of interface name the address prefix, sets
// its MTU and brings the link up. A zero prefix leaves addresses alone; a
// non-positive mtu leaves the MTU alone.
func Configure(name string, prefix netip.Prefix, mtu int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to lookup interface %v: %w", name, err)
	}

	if prefix.IsValid() {
		addr := &netlink.Addr{
			IPNet: &net.IPNet{
				IP:   prefix.Addr().AsSlice(),
				Mask: net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen()),
			},
		}
		// Replace is idempotent across restarts of a persistent device.
		if err := netlink.AddrReplace(link, addr); err != nil {
			return fmt.Errorf("failed to set address %s on %v: %w", prefix, name, err)
		}
	}

	if mtu > 0 && link.Attrs().MTU != mtu {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			return fmt.Errorf("failed to set mtu %d on %v: %w", mtu, name, err)
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up %v: %w", name, err)
	}
	return nil
}
