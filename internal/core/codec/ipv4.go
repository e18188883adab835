package codec

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/tapstack/internal/core"
)

// Protocol numbers carried in the IPv4 Protocol field. The list is not
// exhaustive; any value round-trips.
const (
	ProtocolICMP uint8 = 1
	ProtocolTCP  uint8 = 6
	ProtocolUDP  uint8 = 17
)

// DefaultTTL is used by callers that have no configured TTL.
const DefaultTTL uint8 = 64

// IPv4Packet is an IPv4 datagram.
type IPv4Packet struct {
	Version        uint8
	IHL            uint8 // Header length in 32-bit words
	TOS            uint8
	TotalLength    uint16
	Identification uint16
	Flags          uint8  // 3 bits
	FragmentOffset uint16 // 13 bits, in 8-byte units
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            netip.Addr
	Dst            netip.Addr
	Options        []byte // Header bytes 20..IHL*4
	Payload        []byte
}

// HeaderLen returns the header length in bytes as declared by IHL.
func (p IPv4Packet) HeaderLen() int {
	return int(p.IHL) * 4
}

// ParseIPv4 decodes an IPv4 datagram. The payload starts at IHL*4, never at a
// fixed offset, so headers carrying options are cut correctly.
func ParseIPv4(data []byte) (IPv4Packet, error) {
	if len(data) < ipv4HeaderMinLen {
		return IPv4Packet{}, tooShort("ipv4 packet", len(data), ipv4HeaderMinLen)
	}

	// Byte 0: version (high nibble) + IHL (low nibble)
	version := data[0] >> 4
	ihl := data[0] & 0x0f
	if version != 4 {
		return IPv4Packet{}, fmt.Errorf("%w: ip version %d", core.ErrInvalidPacket, version)
	}
	headerLen := int(ihl) * 4
	if headerLen < ipv4HeaderMinLen {
		return IPv4Packet{}, fmt.Errorf("%w: ipv4 ihl %d below minimum 5", core.ErrInvalidPacket, ihl)
	}
	if len(data) < headerLen {
		return IPv4Packet{}, tooShort("ipv4 header", len(data), headerLen)
	}

	// Bytes 6-7: flags (top 3 bits) + fragment offset (low 13 bits)
	flagsOffset := binary.BigEndian.Uint16(data[6:8])

	p := IPv4Packet{
		Version:        version,
		IHL:            ihl,
		TOS:            data[1],
		TotalLength:    binary.BigEndian.Uint16(data[2:4]),
		Identification: binary.BigEndian.Uint16(data[4:6]),
		Flags:          uint8(flagsOffset >> 13),
		FragmentOffset: flagsOffset & 0x1fff,
		TTL:            data[8],
		Protocol:       data[9],
		Checksum:       binary.BigEndian.Uint16(data[10:12]),
		Src:            addr4(data[12:16]),
		Dst:            addr4(data[16:20]),
	}

	if headerLen > ipv4HeaderMinLen {
		p.Options = clone(data[ipv4HeaderMinLen:headerLen])
	}

	// Ethernet pads short frames up to 60 bytes; Total Length tells where the
	// datagram really ends. A bogus value falls back to the end of the buffer.
	end := len(data)
	if total := int(p.TotalLength); total >= headerLen && total <= len(data) {
		end = total
	}
	p.Payload = clone(data[headerLen:end])
	return p, nil
}

// BuildIPv4 creates a datagram with a bare 20-byte header (no options, no
// fragmentation) and a valid header checksum.
func BuildIPv4(src, dst netip.Addr, protocol, ttl uint8, payload []byte) IPv4Packet {
	p := IPv4Packet{
		Version:     4,
		IHL:         ipv4HeaderMinLen / 4,
		TotalLength: uint16(ipv4HeaderMinLen + len(payload)),
		TTL:         ttl,
		Protocol:    protocol,
		Src:         src,
		Dst:         dst,
		Payload:     payload,
	}
	// Checksum is computed with the field zeroed, which it still is here.
	p.Checksum = Checksum(p.header())
	return p
}

// header serializes only the header bytes, options included.
func (p IPv4Packet) header() []byte {
	headerLen := p.HeaderLen()
	if headerLen < ipv4HeaderMinLen+len(p.Options) {
		headerLen = ipv4HeaderMinLen + len(p.Options)
	}
	h := make([]byte, headerLen)
	h[0] = p.Version<<4 | p.IHL&0x0f
	h[1] = p.TOS
	binary.BigEndian.PutUint16(h[2:4], p.TotalLength)
	binary.BigEndian.PutUint16(h[4:6], p.Identification)
	binary.BigEndian.PutUint16(h[6:8], uint16(p.Flags&0x07)<<13|p.FragmentOffset&0x1fff)
	h[8] = p.TTL
	h[9] = p.Protocol
	binary.BigEndian.PutUint16(h[10:12], p.Checksum)
	putAddr4(h[12:16], p.Src)
	putAddr4(h[16:20], p.Dst)
	copy(h[ipv4HeaderMinLen:], p.Options)
	return h
}

// Bytes serializes header and payload. The stored Checksum is written as-is.
func (p IPv4Packet) Bytes() []byte {
	h := p.header()
	out := make([]byte, len(h)+len(p.Payload))
	copy(out, h)
	copy(out[len(h):], p.Payload)
	return out
}

// HeaderValid reports whether the stored header checksum is correct.
func (p IPv4Packet) HeaderValid() bool {
	return VerifyChecksum(p.header())
}
