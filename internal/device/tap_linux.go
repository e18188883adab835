//go:build linux

package device

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"firestige.xyz/tapstack/internal/core"
	"firestige.xyz/tapstack/internal/log"
)

const cloneDevice = "/dev/net/tun"

// TAP is a Linux TAP interface opened without packet information headers,
// so every read and write carries exactly one Ethernet frame.
type TAP struct {
	name string
	file *os.File

	closeOnce sync.Once
}

// OpenTAP creates (or attaches to) the TAP interface name. An empty name
// lets the kernel pick one; Name reports the result.
func OpenTAP(name string) (*TAP, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("interface name too long: %q", name)
	}

	// Non-blocking so the runtime poller owns the fd and Close interrupts
	// a pending read.
	fd, err := unix.Open(cloneDevice, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrIO, cloneDevice, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("invalid interface name %q: %w", name, err)
	}
	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: TUNSETIFF %q: %v", core.ErrIO, name, err)
	}

	t := &TAP{
		name: ifr.Name(),
		file: os.NewFile(uintptr(fd), cloneDevice),
	}
	log.GetLogger().WithField("module", "device").Infof("tap device %s opened", t.name)
	return t, nil
}

// Name returns the kernel interface name.
func (t *TAP) Name() string {
	return t.name
}

// ReadFrame reads one frame. buf should hold at least MTU+14 bytes; longer
// frames are truncated by the kernel.
func (t *TAP) ReadFrame(buf []byte) (int, error) {
	n, err := t.file.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("%w: read %s: %v", core.ErrIO, t.name, err)
	}
	return n, nil
}

// WriteFrame transmits one frame to the kernel side of the interface.
func (t *TAP) WriteFrame(frame []byte) (int, error) {
	n, err := t.file.Write(frame)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, ErrClosed
		}
		return n, fmt.Errorf("%w: write %s: %v", core.ErrIO, t.name, err)
	}
	return n, nil
}

// AttachFilter installs a classic BPF program on the device with
// TUNATTACHFILTER. Frames rejected by the program never reach ReadFrame.
func (t *TAP) AttachFilter(prog []bpf.RawInstruction) error {
	if len(prog) == 0 {
		return fmt.Errorf("empty BPF program")
	}
	filter := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	conn, err := t.file.SyscallConn()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	var errno unix.Errno
	if err := conn.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, unix.TUNATTACHFILTER, uintptr(unsafe.Pointer(&fprog)))
	}); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	if errno != 0 {
		return fmt.Errorf("%w: TUNATTACHFILTER %s: %v", core.ErrIO, t.name, errno)
	}
	return nil
}

// Close releases the device. A non-persistent TAP disappears with it.
func (t *TAP) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.file.Close()
		log.GetLogger().WithField("module", "device").Infof("tap device %s closed", t.name)
	})
	return err
}
