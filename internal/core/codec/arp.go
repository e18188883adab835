package codec

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ARP constants (Ethernet + IPv4).
const (
	ARPHardwareEthernet uint16 = 1
	ARPProtocolIPv4     uint16 = 0x0800
)

// ArpOperation is the ARP opcode.
type ArpOperation uint16

const (
	ArpRequest  ArpOperation = 1
	ArpReply    ArpOperation = 2
	RARPRequest ArpOperation = 3
	RARPReply   ArpOperation = 4
)

// Known reports whether op is a defined opcode. Unknown opcodes are preserved
// by ParseARP but never acted on.
func (op ArpOperation) Known() bool {
	return op >= ArpRequest && op <= RARPReply
}

func (op ArpOperation) String() string {
	switch op {
	case ArpRequest:
		return "request"
	case ArpReply:
		return "reply"
	case RARPRequest:
		return "rarp-request"
	case RARPReply:
		return "rarp-reply"
	}
	return fmt.Sprintf("op(%d)", uint16(op))
}

// ArpPacket is an Ethernet/IPv4 ARP message (RFC 826), always 28 bytes.
type ArpPacket struct {
	HardwareType uint16
	ProtocolType uint16
	HardwareLen  uint8
	ProtocolLen  uint8
	Operation    ArpOperation
	SenderMAC    MAC
	SenderIP     netip.Addr
	TargetMAC    MAC
	TargetIP     netip.Addr
}

// ParseARP decodes the fixed 28-byte ARP layout. Trailing bytes (Ethernet
// padding) are ignored.
func ParseARP(data []byte) (ArpPacket, error) {
	if len(data) < arpPacketLen {
		return ArpPacket{}, tooShort("arp packet", len(data), arpPacketLen)
	}

	p := ArpPacket{
		HardwareType: binary.BigEndian.Uint16(data[0:2]),
		ProtocolType: binary.BigEndian.Uint16(data[2:4]),
		HardwareLen:  data[4],
		ProtocolLen:  data[5],
		Operation:    ArpOperation(binary.BigEndian.Uint16(data[6:8])),
		SenderIP:     addr4(data[14:18]),
		TargetIP:     addr4(data[24:28]),
	}
	copy(p.SenderMAC[:], data[8:14])
	copy(p.TargetMAC[:], data[18:24])
	return p, nil
}

// BuildARPRequest asks who has targetIP. The target MAC is unknown and left
// zero.
func BuildARPRequest(ourMAC MAC, ourIP, targetIP netip.Addr) ArpPacket {
	return ArpPacket{
		HardwareType: ARPHardwareEthernet,
		ProtocolType: ARPProtocolIPv4,
		HardwareLen:  6,
		ProtocolLen:  4,
		Operation:    ArpRequest,
		SenderMAC:    ourMAC,
		SenderIP:     ourIP,
		TargetIP:     targetIP,
	}
}

// BuildARPReply answers request with ourMAC: the queried address becomes the
// sender, and the requester becomes the target.
func BuildARPReply(request ArpPacket, ourMAC MAC) ArpPacket {
	return ArpPacket{
		HardwareType: ARPHardwareEthernet,
		ProtocolType: ARPProtocolIPv4,
		HardwareLen:  6,
		ProtocolLen:  4,
		Operation:    ArpReply,
		SenderMAC:    ourMAC,
		SenderIP:     request.TargetIP,
		TargetMAC:    request.SenderMAC,
		TargetIP:     request.SenderIP,
	}
}

// Bytes serializes the packet into 28 bytes.
func (p ArpPacket) Bytes() []byte {
	out := make([]byte, arpPacketLen)
	binary.BigEndian.PutUint16(out[0:2], p.HardwareType)
	binary.BigEndian.PutUint16(out[2:4], p.ProtocolType)
	out[4] = p.HardwareLen
	out[5] = p.ProtocolLen
	binary.BigEndian.PutUint16(out[6:8], uint16(p.Operation))
	copy(out[8:14], p.SenderMAC[:])
	putAddr4(out[14:18], p.SenderIP)
	copy(out[18:24], p.TargetMAC[:])
	putAddr4(out[24:28], p.TargetIP)
	return out
}
