package codec

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"firestige.xyz/tapstack/internal/core"
)

func ipv4Header(ihl uint8, totalLen uint16, flagsOffset uint16, protocol uint8) []byte {
	h := make([]byte, int(ihl)*4)
	h[0] = 0x40 | ihl
	h[2], h[3] = byte(totalLen>>8), byte(totalLen)
	h[4], h[5] = 0xab, 0xcd
	h[6], h[7] = byte(flagsOffset>>8), byte(flagsOffset)
	h[8] = 64
	h[9] = protocol
	copy(h[12:16], []byte{192, 168, 1, 10})
	copy(h[16:20], []byte{192, 168, 1, 1})
	return h
}

func TestParseIPv4(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	data := append(ipv4Header(5, 24, 0, ProtocolUDP), payload...)

	p, err := ParseIPv4(data)
	require.NoError(t, err)

	assert.Equal(t, uint8(4), p.Version)
	assert.Equal(t, uint8(5), p.IHL)
	assert.Equal(t, 20, p.HeaderLen())
	assert.Equal(t, uint16(24), p.TotalLength)
	assert.Equal(t, uint16(0xabcd), p.Identification)
	assert.Equal(t, uint8(64), p.TTL)
	assert.Equal(t, ProtocolUDP, p.Protocol)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), p.Src)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), p.Dst)
	assert.Nil(t, p.Options)
	assert.Equal(t, payload, p.Payload)
}

func TestParseIPv4WithOptions(t *testing.T) {
	// IHL=6: one 4-byte option word, payload starts at byte 24.
	h := ipv4Header(6, 28, 0, ProtocolICMP)
	copy(h[20:24], []byte{0x01, 0x01, 0x01, 0x00}) // NOP NOP NOP EOL
	data := append(h, 0xde, 0xad, 0xbe, 0xef)

	p, err := ParseIPv4(data)
	require.NoError(t, err)

	assert.Equal(t, 24, p.HeaderLen())
	assert.Equal(t, []byte{0x01, 0x01, 0x01, 0x00}, p.Options)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, p.Payload)
}

func TestParseIPv4FlagsAndFragmentOffset(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint16
		flags  uint8
		offset uint16
	}{
		{"none", 0x0000, 0, 0},
		{"dont fragment", 0x4000, 2, 0},
		{"more fragments", 0x2000, 1, 0},
		{"offset only", 0x00b9, 0, 185},
		{"mf with offset", 0x3fff, 1, 0x1fff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseIPv4(ipv4Header(5, 20, tt.raw, ProtocolUDP))
			require.NoError(t, err)
			assert.Equal(t, tt.flags, p.Flags)
			assert.Equal(t, tt.offset, p.FragmentOffset)
		})
	}
}

func TestParseIPv4TrimsPadding(t *testing.T) {
	// A 28-byte datagram inside a minimum-size Ethernet frame carries 18
	// bytes of padding after it.
	data := append(ipv4Header(5, 28, 0, ProtocolICMP), make([]byte, 8+18)...)
	data[20] = 0x08

	p, err := ParseIPv4(data)
	require.NoError(t, err)
	assert.Len(t, p.Payload, 8)
	assert.Equal(t, byte(0x08), p.Payload[0])
}

func TestParseIPv4BogusTotalLength(t *testing.T) {
	// Total length larger than the buffer: take what is there.
	data := append(ipv4Header(5, 1500, 0, ProtocolUDP), 1, 2, 3)

	p, err := ParseIPv4(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, p.Payload)
}

func TestParseIPv4Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", make([]byte, 19)},
		{"version 6", func() []byte {
			h := ipv4Header(5, 20, 0, ProtocolUDP)
			h[0] = 0x65
			return h
		}()},
		{"ihl below 5", func() []byte {
			h := ipv4Header(5, 20, 0, ProtocolUDP)
			h[0] = 0x44
			return h
		}()},
		{"ihl beyond buffer", func() []byte {
			h := ipv4Header(5, 20, 0, ProtocolUDP)
			h[0] = 0x4f
			return h
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIPv4(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidPacket))
		})
	}
}

func TestBuildIPv4Checksum(t *testing.T) {
	payload := make([]byte, 11)
	p := BuildIPv4(netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("192.168.1.10"), ProtocolICMP, 64, payload)

	assert.Equal(t, uint16(31), p.TotalLength)
	assert.Equal(t, uint16(0xf782), p.Checksum)
	assert.True(t, p.HeaderValid())

	data := p.Bytes()
	require.Len(t, data, 31)
	assert.True(t, VerifyChecksum(data[:20]))

	p.TTL--
	assert.False(t, p.HeaderValid(), "modified header must fail verification")
}

func TestIPv4RoundTrip(t *testing.T) {
	p := BuildIPv4(netip.MustParseAddr("10.1.2.3"), netip.MustParseAddr("10.3.2.1"), ProtocolUDP, 32, []byte("payload"))

	parsed, err := ParseIPv4(p.Bytes())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
	assert.True(t, parsed.HeaderValid())
}

func TestIPv4BytesParseWithXNet(t *testing.T) {
	p := BuildIPv4(netip.MustParseAddr("192.168.1.1"), netip.MustParseAddr("192.168.1.10"), ProtocolUDP, 64, []byte{9, 9, 9, 9})

	h, err := ipv4.ParseHeader(p.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 4, h.Version)
	assert.Equal(t, 20, h.Len)
	assert.Equal(t, 24, h.TotalLen)
	assert.Equal(t, 64, h.TTL)
	assert.Equal(t, int(ProtocolUDP), h.Protocol)
	assert.Equal(t, int(p.Checksum), h.Checksum)
	assert.True(t, h.Src.Equal(net.IPv4(192, 168, 1, 1)))
	assert.True(t, h.Dst.Equal(net.IPv4(192, 168, 1, 10)))
}
