package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tapstack/internal/capture"
	"firestige.xyz/tapstack/internal/core"
)

// pcapng section header block type, little or big endian alike.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Replay feeds frames from a pcap or pcapng file. Written frames are
// recorded to an optional pcap sink; without one they are discarded.
type Replay struct {
	name   string
	file   *os.File
	reader packetReader
	sink   *capture.Writer
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	last   time.Time
}

// OpenReplay opens the capture file at in. When out is not nil, frames
// passed to WriteFrame are written to it as a pcap stream.
func OpenReplay(in string, out io.Writer) (*Replay, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, fmt.Errorf("%w: open replay file: %v", core.ErrIO, err)
	}

	reader, err := newPacketReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", core.ErrIO, in, err)
	}

	r := &Replay{
		name:   in,
		file:   f,
		reader: reader,
		now:    time.Now,
	}
	if out != nil {
		sink, err := capture.NewWriter(out, capture.DefaultSnaplen)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.sink = sink
	}
	return r, nil
}

func newPacketReader(f io.Reader) (packetReader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		if ng.LinkType() != layers.LinkTypeEthernet {
			return nil, fmt.Errorf("unsupported link type %s", ng.LinkType())
		}
		return ng, nil
	}

	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s", r.LinkType())
	}
	return r, nil
}

// Name returns the input file path.
func (r *Replay) Name() string {
	return r.name
}

// ReadFrame copies the next recorded frame into buf. Frames longer than buf
// are truncated. At the end of the file it returns io.EOF.
func (r *Replay) ReadFrame(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}

	data, ci, err := r.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: read %s: %v", core.ErrIO, r.name, err)
	}
	r.last = ci.Timestamp
	return copy(buf, data), nil
}

// WriteFrame records frame with the timestamp of the frame last read, so
// replies sort next to their requests.
func (r *Replay) WriteFrame(frame []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	ts := r.last
	r.mu.Unlock()

	if r.sink == nil {
		return len(frame), nil
	}
	if ts.IsZero() {
		ts = r.now()
	}
	if err := r.sink.WriteFrame(frame, ts); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	return len(frame), nil
}

// Written returns how many frames were recorded to the sink.
func (r *Replay) Written() uint64 {
	if r.sink == nil {
		return 0
	}
	return r.sink.Frames()
}

// Close closes the input file. The output writer belongs to the caller.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
