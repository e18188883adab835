package codec

import (
	"encoding/binary"
	"net/netip"
)

// UDPDatagram is a UDP header plus payload.
type UDPDatagram struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // Header + payload, as carried on the wire
	Checksum uint16
	Payload  []byte
}

// ParseUDP decodes a UDP datagram. Length is reported as received and not
// checked against the buffer.
func ParseUDP(data []byte) (UDPDatagram, error) {
	if len(data) < udpHeaderLen {
		return UDPDatagram{}, tooShort("udp datagram", len(data), udpHeaderLen)
	}
	return UDPDatagram{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
		Payload:  clone(data[udpHeaderLen:]),
	}, nil
}

// BuildUDP creates a datagram from src:srcPort to dst:dstPort with its
// pseudo-header checksum filled in.
func BuildUDP(src, dst netip.Addr, srcPort, dstPort uint16, payload []byte) UDPDatagram {
	d := UDPDatagram{
		SrcPort: srcPort,
		DstPort: dstPort,
		Length:  uint16(udpHeaderLen + len(payload)),
		Payload: payload,
	}
	d.Checksum = d.computeChecksum(src, dst)
	return d
}

// BuildUDPEcho answers request by swapping its ports and echoing the payload.
// src and dst are the addresses of the reply.
func BuildUDPEcho(request UDPDatagram, src, dst netip.Addr) UDPDatagram {
	d := UDPDatagram{
		SrcPort: request.DstPort,
		DstPort: request.SrcPort,
		Length:  request.Length,
		Payload: clone(request.Payload),
	}
	d.Checksum = d.computeChecksum(src, dst)
	return d
}

// Bytes serializes the datagram with the stored checksum.
func (d UDPDatagram) Bytes() []byte {
	out := make([]byte, udpHeaderLen+len(d.Payload))
	d.putHeader(out, d.Checksum)
	copy(out[udpHeaderLen:], d.Payload)
	return out
}

// ChecksumValid verifies the stored checksum against the pseudo-header for
// src and dst. A zero checksum means the sender did not compute one.
func (d UDPDatagram) ChecksumValid(src, dst netip.Addr) bool {
	if d.Checksum == 0 {
		return true
	}
	return VerifyChecksum(d.checksumInput(src, dst, d.Checksum))
}

func (d UDPDatagram) putHeader(b []byte, checksum uint16) {
	binary.BigEndian.PutUint16(b[0:2], d.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], d.DstPort)
	binary.BigEndian.PutUint16(b[4:6], d.Length)
	binary.BigEndian.PutUint16(b[6:8], checksum)
}

// checksumInput lays out pseudo-header, UDP header and payload:
//
//	src(4) dst(4) zero(1) proto(1) length(2) | header(8) | payload
func (d UDPDatagram) checksumInput(src, dst netip.Addr, checksum uint16) []byte {
	const pseudoLen = 12
	buf := make([]byte, pseudoLen+udpHeaderLen+len(d.Payload))
	putAddr4(buf[0:4], src)
	putAddr4(buf[4:8], dst)
	buf[8] = 0
	buf[9] = ProtocolUDP
	binary.BigEndian.PutUint16(buf[10:12], d.Length)
	d.putHeader(buf[pseudoLen:], checksum)
	copy(buf[pseudoLen+udpHeaderLen:], d.Payload)
	return buf
}

func (d UDPDatagram) computeChecksum(src, dst netip.Addr) uint16 {
	sum := Checksum(d.checksumInput(src, dst, 0))
	// RFC 768: an all-zero result is transmitted as all ones, since zero
	// means "no checksum".
	if sum == 0 {
		sum = 0xffff
	}
	return sum
}
