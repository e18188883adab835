package cmd

import (
	"firestige.xyz/tapstack/internal/arp"
	"firestige.xyz/tapstack/internal/config"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/stack"
)

// buildStack wires the ARP cache, resolver and stack from cfg. Delivered
// UDP payloads are logged.
func buildStack(cfg *config.GlobalConfig) *stack.Stack {
	var opts []arp.CacheOption
	if cfg.ARP.JanitorInterval > 0 {
		opts = append(opts, arp.WithJanitor(cfg.ARP.JanitorInterval))
	}
	cache := arp.NewCache(cfg.ARP.Timeout, opts...)
	resolver := arp.NewResolver(cfg.Stack.Addr, cfg.Stack.HWAddr, cache)

	logger := log.GetLogger().WithField("module", "udp")
	deliver := stack.UDPHandlerFunc(func(d stack.Delivery) {
		logger.WithFields(map[string]interface{}{
			"src": d.Src.String(),
			"dst": d.Dst.String(),
		}).Infof("udp datagram: %d bytes", len(d.Payload))
	})

	return stack.New(stack.Config{
		IP:              cfg.Stack.Addr,
		MAC:             cfg.Stack.HWAddr,
		TTL:             uint8(cfg.Stack.TTL),
		EchoPorts:       cfg.Stack.EchoSet,
		VerifyChecksums: cfg.Stack.VerifyChecksums,
	}, resolver, stack.WithUDPHandler(deliver))
}
