// Package pipeline drives a device through the stack: frames are read on one
// goroutine and handled, answered and recorded on another.
package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"firestige.xyz/tapstack/internal/arp"
	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/core/codec"
	"firestige.xyz/tapstack/internal/device"
	"firestige.xyz/tapstack/internal/log"
	"firestige.xyz/tapstack/internal/metrics"
	"firestige.xyz/tapstack/internal/stack"
)

const (
	defaultBufferSize    = 1024
	defaultFrameSize     = 65535 + 14
	defaultSweepInterval = 10 * time.Second
)

// Pipeline owns a device for the duration of Run.
type Pipeline struct {
	name          string
	device        device.Device
	stack         *stack.Stack
	cache         *arp.Cache
	capture       *capture.Writer
	filter        *device.Filter
	sweepInterval time.Duration
	bufferSize    int
	frameSize     int
	metrics       *Metrics
	logger        log.Logger

	// Replies and SendUDP may write concurrently.
	writeMu sync.Mutex
}

// Config contains pipeline configuration.
type Config struct {
	Name          string
	Device        device.Device
	Stack         *stack.Stack
	SweepInterval time.Duration   // ARP cache sweep period
	Capture       *capture.Writer // Optional; records every frame in and out
	Filter        *device.Filter  // Optional; userspace EtherType filter
	BufferSize    int             // Frame channel capacity
	FrameSize     int             // Read buffer per frame
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Name == "" && cfg.Device != nil {
		cfg.Name = cfg.Device.Name()
	}

	return &Pipeline{
		name:          cfg.Name,
		device:        cfg.Device,
		stack:         cfg.Stack,
		cache:         cfg.Stack.Resolver().Cache(),
		capture:       cfg.Capture,
		filter:        cfg.Filter,
		sweepInterval: cfg.SweepInterval,
		bufferSize:    cfg.BufferSize,
		frameSize:     cfg.FrameSize,
		metrics:       NewMetrics(cfg.Name),
		logger:        log.GetLogger().WithField("module", "pipeline").WithField("device", cfg.Name),
	}
}

// Run processes frames until ctx is cancelled or the device reports io.EOF,
// then closes the device. Malformed frames are counted and skipped; only
// device failures end Run with an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Infof("pipeline starting (sweep every %s)", p.sweepInterval)

	frames := make(chan core.RawFrame, p.bufferSize)
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- p.readLoop(ctx, frames)
	}()

	err := p.processLoop(ctx, frames, readErr)

	// Closing the device unblocks a pending read.
	cancel()
	if cerr := p.device.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close device: %w", cerr)
	}
	wg.Wait()

	stats := p.Stats()
	p.logger.Infof("pipeline stopped: received=%d handled=%d errors=%d sent=%d",
		stats.Received, stats.Handled, stats.Errors, stats.Sent)
	return err
}

// readLoop reads frames until the device fails or ctx ends. It closes
// frames on return.
func (p *Pipeline) readLoop(ctx context.Context, frames chan<- core.RawFrame) error {
	defer close(frames)

	for {
		buf := make([]byte, p.frameSize)
		n, err := p.device.ReadFrame(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		raw := core.RawFrame{Data: buf[:n], Timestamp: time.Now(), Inbound: true}
		select {
		case frames <- raw:
		case <-ctx.Done():
			return nil
		}
	}
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop(ctx context.Context, frames <-chan core.RawFrame, readErr <-chan error) error {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-frames:
			if !ok {
				// Reader stopped: EOF or device failure.
				if err := <-readErr; err != nil {
					p.logger.WithError(err).Error("device read failed")
					return err
				}
				return nil
			}
			p.processFrame(raw)

		case <-ticker.C:
			p.sweep()
		}
	}
}

// processFrame runs one frame through the stack and sends the reply, if any.
func (p *Pipeline) processFrame(raw core.RawFrame) {
	p.metrics.Received.Add(1)
	metrics.FramesTotal.WithLabelValues("rx", etherTypeLabel(raw.Data)).Inc()
	p.record(raw.Data, raw.Timestamp)

	if p.filter != nil && !p.filter.Match(raw.Data) {
		p.metrics.Dropped.Add(1)
		return
	}

	start := time.Now()
	reply, err := p.stack.HandleFrame(raw.Data)
	metrics.ProcessLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.Errors.Add(1)
		if p.logger.IsDebugEnabled() {
			p.logger.WithError(err).Debugf("frame of %d bytes rejected", raw.Len())
		}
		return
	}
	p.metrics.Handled.Add(1)

	if reply == nil {
		return
	}
	if err := p.transmit(reply); err != nil {
		p.logger.WithError(err).Warn("reply write failed")
	}
}

// SendUDP sends payload from the local address to dst. The neighbor must
// already be resolved; see stack.BuildUDPFrame.
func (p *Pipeline) SendUDP(dst netip.Addr, srcPort, dstPort uint16, payload []byte) error {
	frame, err := p.stack.BuildUDPFrame(dst, srcPort, dstPort, payload)
	if err != nil {
		return err
	}
	return p.transmit(frame)
}

func (p *Pipeline) transmit(frame []byte) error {
	p.writeMu.Lock()
	_, err := p.device.WriteFrame(frame)
	p.writeMu.Unlock()

	if err != nil {
		p.metrics.SendErrors.Add(1)
		return err
	}
	p.metrics.Sent.Add(1)
	metrics.FramesTotal.WithLabelValues("tx", etherTypeLabel(frame)).Inc()
	p.record(frame, time.Now())
	return nil
}

func (p *Pipeline) record(frame []byte, ts time.Time) {
	if p.capture == nil {
		return
	}
	if err := p.capture.WriteFrame(frame, ts); err != nil {
		p.logger.WithError(err).Warn("capture write failed")
	}
}

func (p *Pipeline) sweep() {
	removed := p.cache.Sweep()
	p.metrics.Swept.Add(uint64(removed))
	if removed > 0 && p.logger.IsDebugEnabled() {
		p.logger.Debugf("arp sweep removed %d stale entries", removed)
	}
}

// etherTypeLabel keeps the metric label set bounded.
func etherTypeLabel(frame []byte) string {
	if len(frame) < 14 {
		return "runt"
	}
	et := codec.EtherType(binary.BigEndian.Uint16(frame[12:14]))
	if !et.Known() {
		return "other"
	}
	return et.String()
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   p.metrics.Received.Load(),
		Dropped:    p.metrics.Dropped.Load(),
		Handled:    p.metrics.Handled.Load(),
		Errors:     p.metrics.Errors.Load(),
		Sent:       p.metrics.Sent.Load(),
		SendErrors: p.metrics.SendErrors.Load(),
		Swept:      p.metrics.Swept.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received   uint64
	Dropped    uint64 // Rejected by the userspace filter
	Handled    uint64
	Errors     uint64
	Sent       uint64
	SendErrors uint64
	Swept      uint64
}
