package codec

import (
	"encoding/binary"
	"fmt"
)

// EtherType identifies the protocol carried in an Ethernet frame.
type EtherType uint16

// EtherType values
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
)

// Known reports whether e is one of the EtherTypes the stack classifies.
// Unknown values are still valid on the wire and are carried unchanged.
func (e EtherType) Known() bool {
	switch e {
	case EtherTypeIPv4, EtherTypeARP, EtherTypeIPv6:
		return true
	}
	return false
}

func (e EtherType) String() string {
	switch e {
	case EtherTypeIPv4:
		return "ipv4"
	case EtherTypeARP:
		return "arp"
	case EtherTypeIPv6:
		return "ipv6"
	}
	return fmt.Sprintf("0x%04x", uint16(e))
}

// PayloadKind is the result of classifying a frame by EtherType.
type PayloadKind uint8

const (
	PayloadUnknown PayloadKind = iota
	PayloadARP
	PayloadIPv4
	PayloadIPv6
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadARP:
		return "arp"
	case PayloadIPv4:
		return "ipv4"
	case PayloadIPv6:
		return "ipv6"
	}
	return "unknown"
}

// Payload is a classified frame payload. Data is nil for PayloadUnknown.
type Payload struct {
	Kind PayloadKind
	Data []byte
}

// EthernetFrame is an Ethernet II frame.
type EthernetFrame struct {
	Dst       MAC
	Src       MAC
	EtherType EtherType
	Payload   []byte
}

// ParseEthernet decodes an Ethernet II header. The payload is every byte
// after the 14-byte header.
func ParseEthernet(data []byte) (EthernetFrame, error) {
	if len(data) < ethernetHeaderLen {
		return EthernetFrame{}, tooShort("ethernet frame", len(data), ethernetHeaderLen)
	}

	var frame EthernetFrame

	// Destination MAC (6 bytes)
	copy(frame.Dst[:], data[0:6])

	// Source MAC (6 bytes)
	copy(frame.Src[:], data[6:12])

	// EtherType (2 bytes)
	frame.EtherType = EtherType(binary.BigEndian.Uint16(data[12:14]))

	frame.Payload = clone(data[ethernetHeaderLen:])
	return frame, nil
}

// Classify dispatches on EtherType. Unrecognized values yield PayloadUnknown,
// which callers drop.
func (f EthernetFrame) Classify() Payload {
	switch f.EtherType {
	case EtherTypeARP:
		return Payload{Kind: PayloadARP, Data: f.Payload}
	case EtherTypeIPv4:
		return Payload{Kind: PayloadIPv4, Data: f.Payload}
	case EtherTypeIPv6:
		return Payload{Kind: PayloadIPv6, Data: f.Payload}
	default:
		return Payload{Kind: PayloadUnknown}
	}
}

// BuildEthernet assembles a frame. No MTU check is done here; the device
// enforces its own limits.
func BuildEthernet(dst, src MAC, etherType EtherType, payload []byte) EthernetFrame {
	return EthernetFrame{
		Dst:       dst,
		Src:       src,
		EtherType: etherType,
		Payload:   payload,
	}
}

// Bytes serializes the frame.
func (f EthernetFrame) Bytes() []byte {
	out := make([]byte, ethernetHeaderLen+len(f.Payload))
	copy(out[0:6], f.Dst[:])
	copy(out[6:12], f.Src[:])
	binary.BigEndian.PutUint16(out[12:14], uint16(f.EtherType))
	copy(out[ethernetHeaderLen:], f.Payload)
	return out
}
