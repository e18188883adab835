// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts Ethernet frames by direction (rx/tx) and EtherType
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_total",
			Help: "Total number of Ethernet frames received or sent",
		},
		[]string{"direction", "ethertype"},
	)

	// FramesDroppedTotal counts frames ignored by the stack, by reason
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_frames_dropped_total",
			Help: "Total number of frames dropped without a reply",
		},
		[]string{"reason"},
	)

	// DecodeErrorsTotal counts parse and checksum failures by layer
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_decode_errors_total",
			Help: "Total number of frames rejected while decoding",
		},
		[]string{"layer"},
	)

	// RepliesTotal counts reply frames produced, by protocol (arp/icmp/udp)
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_replies_total",
			Help: "Total number of reply frames produced by the stack",
		},
		[]string{"protocol"},
	)

	// UDPDeliveredTotal counts datagrams handed to the UDP handler
	UDPDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapstack_udp_delivered_total",
			Help: "Total number of UDP datagrams delivered to the application",
		},
	)

	// ProcessLatencySeconds measures per-frame processing time
	ProcessLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapstack_process_latency_seconds",
			Help:    "Time spent handling one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)

	// ARPCacheEntries tracks fresh entries in the ARP cache
	ARPCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapstack_arp_cache_entries",
			Help: "Current number of fresh entries in the ARP cache",
		},
	)

	// ARPLearnedTotal counts ARP packets whose sender was recorded
	ARPLearnedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapstack_arp_learned_total",
			Help: "Total number of ARP packets learned into the cache",
		},
	)

	// ARPCacheEvictionsTotal counts removed ARP entries (stale/sweep/manual)
	ARPCacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapstack_arp_cache_evictions_total",
			Help: "Total number of entries removed from the ARP cache",
		},
		[]string{"reason"},
	)
)

// Eviction reasons for ARPCacheEvictionsTotal.
const (
	EvictStale  = "stale"
	EvictSweep  = "sweep"
	EvictManual = "manual"
)
