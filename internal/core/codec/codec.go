// Package codec implements parsing and construction of the L2-L4 wire
// formats handled by the stack: Ethernet, ARP, IPv4, ICMP and UDP.
//
// Every Parse function validates only the minimum header length of its layer
// (plus the IPv4 header-length field) and returns a value that owns copies of
// its bytes. Every Bytes method produces network byte order output.
package codec

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/tapstack/internal/core"
)

// Header sizes (bytes).
const (
	ethernetHeaderLen = 14
	arpPacketLen      = 28
	ipv4HeaderMinLen  = 20
	icmpHeaderLen     = 8
	udpHeaderLen      = 8
)

// MAC is a 48-bit Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses the textual forms accepted by net.ParseMAC, restricted to
// 48-bit addresses.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("not a 48-bit MAC address: %s", s)
	}
	var mac MAC
	copy(mac[:], hw)
	return mac, nil
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// IsZero reports whether every byte is zero (the "unknown" target MAC of an
// ARP request).
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// tooShort builds the ErrInvalidPacket error every layer returns on short input.
func tooShort(layer string, got, want int) error {
	return fmt.Errorf("%w: %s too short: %d bytes (need %d)", core.ErrInvalidPacket, layer, got, want)
}

// addr4 reads a 4-byte IPv4 address. b must hold at least 4 bytes.
func addr4(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
}

// putAddr4 writes a as 4 bytes. Non-IPv4 addresses are written as 0.0.0.0.
func putAddr4(b []byte, a netip.Addr) {
	a = a.Unmap()
	if !a.Is4() {
		copy(b[:4], []byte{0, 0, 0, 0})
		return
	}
	v := a.As4()
	copy(b[:4], v[:])
}

// clone returns a copy of b that never aliases the caller's buffer.
func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
