// Package capture records frames to a pcap file for offline inspection.
package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultSnaplen keeps whole jumbo frames.
const DefaultSnaplen = 65535

// Writer appends Ethernet frames to a pcap stream. It is safe for
// concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	snaplen int
	closer  io.Closer
	frames  uint64
}

// NewWriter writes the pcap file header to w. Frames longer than snaplen
// are truncated; a non-positive snaplen selects DefaultSnaplen.
func NewWriter(w io.Writer, snaplen int) (*Writer, error) {
	if snaplen <= 0 {
		snaplen = DefaultSnaplen
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snaplen), layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw, snaplen: snaplen}, nil
}

// Create creates (or truncates) the pcap file at path, making parent
// directories as needed.
func Create(path string, snaplen int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	w, err := NewWriter(f, snaplen)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteFrame records one frame seen at ts.
func (w *Writer) WriteFrame(data []byte, ts time.Time) error {
	captured := data
	if len(captured) > w.snaplen {
		captured = captured[:w.snaplen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(captured),
		Length:        len(data),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.WritePacket(ci, captured); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close closes the underlying file when the writer was made by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
