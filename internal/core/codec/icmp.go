package codec

import (
	"encoding/binary"
	"fmt"
)

// ICMPType is the ICMP message type.
type ICMPType uint8

// ICMP message types
const (
	ICMPEchoReply              ICMPType = 0
	ICMPDestinationUnreachable ICMPType = 3
	ICMPEchoRequest            ICMPType = 8
	ICMPTimeExceeded           ICMPType = 11
)

// Known reports whether t is one of the enumerated types.
func (t ICMPType) Known() bool {
	switch t {
	case ICMPEchoReply, ICMPDestinationUnreachable, ICMPEchoRequest, ICMPTimeExceeded:
		return true
	}
	return false
}

func (t ICMPType) String() string {
	switch t {
	case ICMPEchoReply:
		return "echo-reply"
	case ICMPDestinationUnreachable:
		return "destination-unreachable"
	case ICMPEchoRequest:
		return "echo-request"
	case ICMPTimeExceeded:
		return "time-exceeded"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ICMPPacket is an ICMP message in the echo layout: the second header word
// holds identifier and sequence.
type ICMPPacket struct {
	Type       ICMPType
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
	Payload    []byte
}

// ParseICMP decodes an ICMP message.
func ParseICMP(data []byte) (ICMPPacket, error) {
	if len(data) < icmpHeaderLen {
		return ICMPPacket{}, tooShort("icmp packet", len(data), icmpHeaderLen)
	}
	return ICMPPacket{
		Type:       ICMPType(data[0]),
		Code:       data[1],
		Checksum:   binary.BigEndian.Uint16(data[2:4]),
		Identifier: binary.BigEndian.Uint16(data[4:6]),
		Sequence:   binary.BigEndian.Uint16(data[6:8]),
		Payload:    clone(data[icmpHeaderLen:]),
	}, nil
}

// BuildEchoReply mirrors an echo request: identifier, sequence and payload
// are carried back unchanged.
func BuildEchoReply(request ICMPPacket) ICMPPacket {
	return ICMPPacket{
		Type:       ICMPEchoReply,
		Code:       0,
		Identifier: request.Identifier,
		Sequence:   request.Sequence,
		Payload:    clone(request.Payload),
	}
}

// Bytes serializes the message and fills in the checksum over the whole
// message. The receiver is not modified.
func (p ICMPPacket) Bytes() []byte {
	out := make([]byte, icmpHeaderLen+len(p.Payload))
	out[0] = uint8(p.Type)
	out[1] = p.Code
	// bytes 2-3 stay zero for the checksum computation
	binary.BigEndian.PutUint16(out[4:6], p.Identifier)
	binary.BigEndian.PutUint16(out[6:8], p.Sequence)
	copy(out[icmpHeaderLen:], p.Payload)
	binary.BigEndian.PutUint16(out[2:4], Checksum(out))
	return out
}

// ChecksumValid reports whether the stored checksum matches the message.
func (p ICMPPacket) ChecksumValid() bool {
	out := p.Bytes()
	binary.BigEndian.PutUint16(out[2:4], p.Checksum)
	return VerifyChecksum(out)
}
