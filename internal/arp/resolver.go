package arp

import (
	"net/netip"

	"firestige.xyz/tapstack/internal/core/codec"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
)

// Resolver answers ARP requests for one local address and learns neighbors
// from every ARP packet it sees. It never sends requests on its own.
type Resolver struct {
	ip    netip.Addr
	mac   codec.MAC
	cache *Cache
}

// NewResolver creates a resolver for ourIP/ourMAC backed by cache.
func NewResolver(ourIP netip.Addr, ourMAC codec.MAC, cache *Cache) *Resolver {
	return &Resolver{
		ip:    ourIP.Unmap(),
		mac:   ourMAC,
		cache: cache,
	}
}

// IP returns the local protocol address.
func (r *Resolver) IP() netip.Addr { return r.ip }

// MAC returns the local hardware address.
func (r *Resolver) MAC() codec.MAC { return r.mac }

// Cache returns the backing neighbor cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// HandlePacket learns the sender mapping of pkt and, when pkt is a request
// for our address, returns the serialized reply payload (without Ethernet
// header).
func (r *Resolver) HandlePacket(pkt codec.ArpPacket) ([]byte, bool) {
	r.cache.Insert(pkt.SenderIP, pkt.SenderMAC)
	metrics.ARPLearnedTotal.Inc()

	logger := log.GetLogger()
	if logger.IsDebugEnabled() {
		logger.WithFields(map[string]interface{}{
			"module": "arp",
			"op":     pkt.Operation.String(),
			"sender": pkt.SenderIP.String(),
			"mac":    pkt.SenderMAC.String(),
		}).Debug("learned neighbor")
	}

	if pkt.Operation != codec.ArpRequest || pkt.TargetIP != r.ip {
		return nil, false
	}
	return codec.BuildARPReply(pkt, r.mac).Bytes(), true
}

// Resolve is a pure cache lookup. A miss is final: no request is sent.
func (r *Resolver) Resolve(ip netip.Addr) (codec.MAC, bool) {
	return r.cache.Lookup(ip)
}

// Request builds a who-has request for target. Sending it is up to the
// caller.
func (r *Resolver) Request(target netip.Addr) codec.ArpPacket {
	return codec.BuildARPRequest(r.mac, r.ip, target)
}
