package codec

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tapstack/internal/core"
)

var (
	macA = MAC{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	macB = MAC{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}
)

func TestParseARPRequest(t *testing.T) {
	data := []byte{
		0x00, 0x01, // Hardware type: Ethernet
		0x08, 0x00, // Protocol type: IPv4
		0x06,       // Hardware length
		0x04,       // Protocol length
		0x00, 0x01, // Operation: request
		0x02, 0x00, 0x00, 0x00, 0x00, 0x01, // Sender MAC
		192, 168, 1, 10, // Sender IP
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // Target MAC
		192, 168, 1, 1, // Target IP
	}

	p, err := ParseARP(data)
	require.NoError(t, err)

	assert.Equal(t, ARPHardwareEthernet, p.HardwareType)
	assert.Equal(t, ARPProtocolIPv4, p.ProtocolType)
	assert.Equal(t, uint8(6), p.HardwareLen)
	assert.Equal(t, uint8(4), p.ProtocolLen)
	assert.Equal(t, ArpRequest, p.Operation)
	assert.Equal(t, MAC{0x02, 0, 0, 0, 0, 0x01}, p.SenderMAC)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), p.SenderIP)
	assert.True(t, p.TargetMAC.IsZero())
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), p.TargetIP)
}

func TestParseARPTooShort(t *testing.T) {
	_, err := ParseARP(make([]byte, 27))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidPacket))
}

func TestParseARPIgnoresPadding(t *testing.T) {
	req := BuildARPRequest(macA, netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1"))
	padded := append(req.Bytes(), make([]byte, 18)...) // 60-byte minimum frame padding

	p, err := ParseARP(padded)
	require.NoError(t, err)
	assert.Equal(t, req, p)
}

func TestARPUnknownOperationPreserved(t *testing.T) {
	data := BuildARPRequest(macA, netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1")).Bytes()
	data[6], data[7] = 0x00, 0x09

	p, err := ParseARP(data)
	require.NoError(t, err)
	assert.Equal(t, ArpOperation(9), p.Operation)
	assert.False(t, p.Operation.Known())
	assert.Equal(t, "op(9)", p.Operation.String())

	// Serializing keeps the unknown opcode on the wire.
	assert.Equal(t, data, p.Bytes())
}

func TestArpOperationKnown(t *testing.T) {
	for _, op := range []ArpOperation{ArpRequest, ArpReply, RARPRequest, RARPReply} {
		assert.True(t, op.Known(), op.String())
	}
	assert.False(t, ArpOperation(0).Known())
	assert.False(t, ArpOperation(5).Known())
}

func TestBuildARPRequest(t *testing.T) {
	ourIP := netip.MustParseAddr("10.0.0.1")
	target := netip.MustParseAddr("10.0.0.7")

	p := BuildARPRequest(macB, ourIP, target)

	assert.Equal(t, ArpRequest, p.Operation)
	assert.Equal(t, macB, p.SenderMAC)
	assert.Equal(t, ourIP, p.SenderIP)
	assert.True(t, p.TargetMAC.IsZero(), "target MAC is unknown in a request")
	assert.Equal(t, target, p.TargetIP)
}

func TestBuildARPReplySwapsFields(t *testing.T) {
	request := BuildARPRequest(macA, netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1"))

	reply := BuildARPReply(request, macB)

	assert.Equal(t, ArpReply, reply.Operation)
	assert.Equal(t, macB, reply.SenderMAC)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), reply.SenderIP)
	assert.Equal(t, macA, reply.TargetMAC)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), reply.TargetIP)
	assert.Equal(t, ARPHardwareEthernet, reply.HardwareType)
	assert.Equal(t, ARPProtocolIPv4, reply.ProtocolType)
}

func TestARPRoundTrip(t *testing.T) {
	packets := []ArpPacket{
		BuildARPRequest(macA, netip.MustParseAddr("172.16.0.1"), netip.MustParseAddr("172.16.0.254")),
		BuildARPReply(BuildARPRequest(macA, netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1")), macB),
	}

	for _, p := range packets {
		data := p.Bytes()
		require.Len(t, data, 28)

		parsed, err := ParseARP(data)
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestARPBytesDecodeWithGopacket(t *testing.T) {
	request := BuildARPRequest(macA, netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1"))
	reply := BuildARPReply(request, macB)

	pkt := gopacket.NewPacket(reply.Bytes(), layers.LayerTypeARP, gopacket.Default)
	arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)

	assert.Equal(t, uint16(layers.ARPReply), arp.Operation)
	assert.Equal(t, layers.LinkTypeEthernet, arp.AddrType)
	assert.Equal(t, layers.EthernetTypeIPv4, arp.Protocol)
	assert.Equal(t, net.HardwareAddr(macB[:]), net.HardwareAddr(arp.SourceHwAddress))
	assert.Equal(t, net.IP{10, 0, 0, 1}, net.IP(arp.SourceProtAddress))
	assert.Equal(t, net.HardwareAddr(macA[:]), net.HardwareAddr(arp.DstHwAddress))
	assert.Equal(t, net.IP{10, 0, 0, 2}, net.IP(arp.DstProtAddress))
}
