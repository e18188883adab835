// Package stack dispatches inbound Ethernet frames through the protocol
// codecs and builds the replies the local host owes its peers: ARP replies,
// ICMP echo replies and UDP echo replies.
//
// A Stack is driven by a single goroutine. Only the ARP cache behind the
// resolver is shared, and it carries its own lock.
package stack

import (
	"fmt"
	"net/netip"
	"slices"

	"firestige.xyz/tapstack/internal/arp"
	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/codec"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
)

// Drop reasons reported through metrics.FramesDroppedTotal.
const (
	dropEtherType = "ethertype"
	dropNotForUs  = "not_for_us"
	dropProtocol  = "protocol"
	dropFragment  = "fragment"
	dropICMPType  = "icmp_type"
)

var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Config is the identity of the local host.
type Config struct {
	IP              netip.Addr
	MAC             codec.MAC
	TTL             uint8    // TTL of generated datagrams; 0 selects codec.DefaultTTL
	EchoPorts       []uint16 // UDP ports answered with an echo of the payload
	VerifyChecksums bool     // Reject inbound IPv4/ICMP/UDP with bad checksums
}

// Delivery is one inbound UDP datagram handed to the application.
type Delivery struct {
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Payload []byte
}

// UDPHandler receives datagrams addressed to the local host.
type UDPHandler interface {
	HandleUDP(d Delivery)
}

// UDPHandlerFunc adapts a function to UDPHandler.
type UDPHandlerFunc func(d Delivery)

func (f UDPHandlerFunc) HandleUDP(d Delivery) { f(d) }

// Option configures a Stack.
type Option func(*Stack)

// WithUDPHandler installs the receiver of inbound UDP payloads.
func WithUDPHandler(h UDPHandler) Option {
	return func(s *Stack) { s.udp = h }
}

// Stack turns inbound frames into at most one reply frame each.
type Stack struct {
	cfg      Config
	resolver *arp.Resolver
	udp      UDPHandler
	logger   log.Logger
}

// New creates a stack answering for cfg.IP/cfg.MAC.
func New(cfg Config, resolver *arp.Resolver, opts ...Option) *Stack {
	cfg.IP = cfg.IP.Unmap()
	if cfg.TTL == 0 {
		cfg.TTL = codec.DefaultTTL
	}
	s := &Stack{
		cfg:      cfg,
		resolver: resolver,
		logger:   log.GetLogger().WithField("module", "stack"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver returns the ARP resolver the stack answers and learns with.
func (s *Stack) Resolver() *arp.Resolver {
	return s.resolver
}

// Config returns the stack identity.
func (s *Stack) Config() Config {
	return s.cfg
}

// HandleFrame processes one inbound Ethernet frame. It returns the reply
// frame to transmit, or nil when nothing is owed. Frames the stack does not
// handle are dropped without error; malformed frames fail with
// core.ErrInvalidPacket and, when verification is on, bad checksums with
// core.ErrChecksumMismatch.
func (s *Stack) HandleFrame(data []byte) ([]byte, error) {
	frame, err := codec.ParseEthernet(data)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("ethernet").Inc()
		return nil, fmt.Errorf("decode ethernet: %w", err)
	}

	payload := frame.Classify()
	switch payload.Kind {
	case codec.PayloadARP:
		return s.handleARP(payload.Data)
	case codec.PayloadIPv4:
		return s.handleIPv4(frame, payload.Data)
	default:
		// IPv6 and unknown EtherTypes are not handled.
		s.drop(dropEtherType)
		if s.logger.IsTraceEnabled() {
			s.logger.Tracef("drop frame with ethertype %s", frame.EtherType)
		}
		return nil, nil
	}
}

func (s *Stack) handleARP(data []byte) ([]byte, error) {
	pkt, err := codec.ParseARP(data)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("arp").Inc()
		return nil, fmt.Errorf("decode arp: %w", err)
	}

	// Every ARP packet is learned; only requests for us get a reply.
	reply, ok := s.resolver.HandlePacket(pkt)
	if !ok {
		return nil, nil
	}

	metrics.RepliesTotal.WithLabelValues("arp").Inc()
	if s.logger.IsDebugEnabled() {
		s.logger.Debugf("arp reply to %s (%s)", pkt.SenderIP, pkt.SenderMAC)
	}
	return codec.BuildEthernet(pkt.SenderMAC, s.cfg.MAC, codec.EtherTypeARP, reply).Bytes(), nil
}

func (s *Stack) handleIPv4(frame codec.EthernetFrame, data []byte) ([]byte, error) {
	ip, err := codec.ParseIPv4(data)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("ipv4").Inc()
		return nil, fmt.Errorf("decode ipv4: %w", err)
	}
	if s.cfg.VerifyChecksums && !ip.HeaderValid() {
		metrics.DecodeErrorsTotal.WithLabelValues("ipv4_checksum").Inc()
		return nil, fmt.Errorf("%w: ipv4 header from %s", core.ErrChecksumMismatch, ip.Src)
	}

	broadcast := ip.Dst == limitedBroadcast
	if ip.Dst != s.cfg.IP && !broadcast {
		s.drop(dropNotForUs)
		return nil, nil
	}
	// More-fragments flag (bit 0 of the 3-bit field) or a non-zero offset.
	if ip.Flags&0x1 != 0 || ip.FragmentOffset != 0 {
		s.drop(dropFragment)
		return nil, nil
	}

	switch ip.Protocol {
	case codec.ProtocolICMP:
		if broadcast {
			s.drop(dropNotForUs)
			return nil, nil
		}
		return s.handleICMP(frame, ip)
	case codec.ProtocolUDP:
		return s.handleUDP(frame, ip, broadcast)
	default:
		s.drop(dropProtocol)
		return nil, nil
	}
}

func (s *Stack) handleICMP(frame codec.EthernetFrame, ip codec.IPv4Packet) ([]byte, error) {
	msg, err := codec.ParseICMP(ip.Payload)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("icmp").Inc()
		return nil, fmt.Errorf("decode icmp: %w", err)
	}
	if s.cfg.VerifyChecksums && !msg.ChecksumValid() {
		metrics.DecodeErrorsTotal.WithLabelValues("icmp_checksum").Inc()
		return nil, fmt.Errorf("%w: icmp from %s", core.ErrChecksumMismatch, ip.Src)
	}
	if msg.Type != codec.ICMPEchoRequest {
		s.drop(dropICMPType)
		return nil, nil
	}

	reply := codec.BuildEchoReply(msg)
	datagram := codec.BuildIPv4(s.cfg.IP, ip.Src, codec.ProtocolICMP, s.cfg.TTL, reply.Bytes())

	metrics.RepliesTotal.WithLabelValues("icmp").Inc()
	if s.logger.IsDebugEnabled() {
		s.logger.Debugf("echo reply to %s id=%d seq=%d", ip.Src, msg.Identifier, msg.Sequence)
	}
	return codec.BuildEthernet(frame.Src, s.cfg.MAC, codec.EtherTypeIPv4, datagram.Bytes()).Bytes(), nil
}

func (s *Stack) handleUDP(frame codec.EthernetFrame, ip codec.IPv4Packet, broadcast bool) ([]byte, error) {
	d, err := codec.ParseUDP(ip.Payload)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("udp").Inc()
		return nil, fmt.Errorf("decode udp: %w", err)
	}
	if s.cfg.VerifyChecksums && !d.ChecksumValid(ip.Src, ip.Dst) {
		metrics.DecodeErrorsTotal.WithLabelValues("udp_checksum").Inc()
		return nil, fmt.Errorf("%w: udp from %s:%d", core.ErrChecksumMismatch, ip.Src, d.SrcPort)
	}

	if s.udp != nil {
		s.udp.HandleUDP(Delivery{
			Src:     netip.AddrPortFrom(ip.Src, d.SrcPort),
			Dst:     netip.AddrPortFrom(ip.Dst, d.DstPort),
			Payload: d.Payload,
		})
		metrics.UDPDeliveredTotal.Inc()
	}
	if s.logger.IsDebugEnabled() {
		s.logger.Debugf("udp %s:%d -> %s:%d len=%d", ip.Src, d.SrcPort, ip.Dst, d.DstPort, len(d.Payload))
	}

	if broadcast || !slices.Contains(s.cfg.EchoPorts, d.DstPort) {
		return nil, nil
	}

	echo := codec.BuildUDPEcho(d, s.cfg.IP, ip.Src)
	datagram := codec.BuildIPv4(s.cfg.IP, ip.Src, codec.ProtocolUDP, s.cfg.TTL, echo.Bytes())

	metrics.RepliesTotal.WithLabelValues("udp").Inc()
	return codec.BuildEthernet(frame.Src, s.cfg.MAC, codec.EtherTypeIPv4, datagram.Bytes()).Bytes(), nil
}

// BuildUDPFrame builds an outbound UDP datagram from the local address to
// dst, framed for the neighbor's MAC. The neighbor must already be in the
// ARP cache; a miss fails with core.ErrAddressUnresolved.
func (s *Stack) BuildUDPFrame(dst netip.Addr, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	dst = dst.Unmap()
	if !dst.Is4() {
		return nil, fmt.Errorf("%w: not an IPv4 destination: %s", core.ErrAddressUnresolved, dst)
	}

	dstMAC := codec.BroadcastMAC
	if dst != limitedBroadcast {
		mac, ok := s.resolver.Resolve(dst)
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrAddressUnresolved, dst)
		}
		dstMAC = mac
	}

	d := codec.BuildUDP(s.cfg.IP, dst, srcPort, dstPort, payload)
	datagram := codec.BuildIPv4(s.cfg.IP, dst, codec.ProtocolUDP, s.cfg.TTL, d.Bytes())
	return codec.BuildEthernet(dstMAC, s.cfg.MAC, codec.EtherTypeIPv4, datagram.Bytes()).Bytes(), nil
}

// BuildARPRequestFrame builds a broadcast who-has frame for target.
func (s *Stack) BuildARPRequestFrame(target netip.Addr) []byte {
	req := s.resolver.Request(target)
	return codec.BuildEthernet(codec.BroadcastMAC, s.cfg.MAC, codec.EtherTypeARP, req.Bytes()).Bytes()
}

func (s *Stack) drop(reason string) {
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
}
