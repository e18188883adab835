package pipeline

import (
	"time"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/device"
	"firestige.xyz/tapstack/internal/stack"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BufferSize: defaultBufferSize,
		},
	}
}

// WithName sets the name used in logs.
func (b *Builder) WithName(name string) *Builder {
	b.config.Name = name
	return b
}

// WithDevice sets the frame source and sink.
func (b *Builder) WithDevice(d device.Device) *Builder {
	b.config.Device = d
	return b
}

// WithStack sets the protocol stack.
func (b *Builder) WithStack(s *stack.Stack) *Builder {
	b.config.Stack = s
	return b
}

// WithSweepInterval sets the ARP cache sweep period.
func (b *Builder) WithSweepInterval(d time.Duration) *Builder {
	b.config.SweepInterval = d
	return b
}

// WithCapture records traffic to w.
func (b *Builder) WithCapture(w *capture.Writer) *Builder {
	b.config.Capture = w
	return b
}

// WithFilter drops frames f does not match before they reach the stack.
func (b *Builder) WithFilter(f *device.Filter) *Builder {
	b.config.Filter = f
	return b
}

// WithBufferSize sets the frame channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
