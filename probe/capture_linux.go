//go:build linux && cgo
// +build linux,cgo

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/gopacket/afpacket"
)

// Sniffer captures raw frames from one interface over AF_PACKET and hands
// them, one at a time, to a per-frame callback. The callback runs to
// completion before the next frame is read; the pipeline needs no locking of
// its own on this path.
type Sniffer struct {
	iface  *net.Interface
	handle *afpacket.TPacket

	frameSize   int
	blockSize   int
	numBlocks   int
	pollTimeout time.Duration
	maxPackets  int
}

// SnifferOption is a functional option for Sniffer.
type SnifferOption func(*Sniffer)

// WithFrameSize sets the frame size for the AF_PACKET ring.
func WithFrameSize(size int) SnifferOption {
	return func(s *Sniffer) {
		s.frameSize = size
	}
}

// WithBlockSize sets the block size for the AF_PACKET ring.
func WithBlockSize(size int) SnifferOption {
	return func(s *Sniffer) {
		s.blockSize = size
	}
}

// WithNumBlocks sets the number of blocks in the AF_PACKET ring buffer.
func WithNumBlocks(n int) SnifferOption {
	return func(s *Sniffer) {
		s.numBlocks = n
	}
}

// WithPollTimeout sets the poll timeout for AF_PACKET reads.
func WithPollTimeout(d time.Duration) SnifferOption {
	return func(s *Sniffer) {
		s.pollTimeout = d
	}
}

// WithPacketLimit stops the session after n frames have been delivered.
// Zero means unbounded.
func WithPacketLimit(n int) SnifferOption {
	return func(s *Sniffer) {
		s.maxPackets = n
	}
}

// NewSniffer prepares a sniffer on the named interface. The capture handle
// is not opened until Run.
func NewSniffer(ifaceName string, opts ...SnifferOption) (*Sniffer, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("interface %q not found: %w", ifaceName, err)
	}

	s := &Sniffer{
		iface:       iface,
		frameSize:   4096,
		blockSize:   4096 * 128,
		numBlocks:   128,
		pollTimeout: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Interface returns the interface being captured.
func (s *Sniffer) Interface() *net.Interface {
	return s.iface
}

// Run opens the capture handle, installs the IPv4 filter and delivers frames
// to handler until the context is cancelled or the packet limit is reached.
// It returns the number of frames delivered. Run requires CAP_NET_RAW.
func (s *Sniffer) Run(ctx context.Context, handler func(Frame)) (int, error) {
	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.iface.Name),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.pollTimeout),
	)
	if err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
			return 0, fmt.Errorf("failed to open AF_PACKET handle (requires root or CAP_NET_RAW): %w", err)
		}
		return 0, fmt.Errorf("failed to open AF_PACKET handle: %w", err)
	}
	s.handle = handle
	defer func() {
		handle.Close()
		s.handle = nil
	}()

	filter, err := IPv4OnlyFilter()
	if err != nil {
		return 0, err
	}
	if err := handle.SetBPF(filter); err != nil {
		return 0, fmt.Errorf("failed to install BPF filter: %w", err)
	}

	delivered := 0
	for {
		if ctx.Err() != nil {
			return delivered, nil
		}
		if s.maxPackets > 0 && delivered >= s.maxPackets {
			return delivered, nil
		}

		data, ci, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			// Poll timeouts and transient ring errors: check for cancel,
			// then keep reading.
			if ctx.Err() != nil {
				return delivered, nil
			}
			if errors.Is(err, afpacket.ErrTimeout) {
				continue
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// The handler must not retain the buffer: it is remapped on the
		// next read. The pipeline dissects and returns synchronously.
		handler(Frame{
			Data:       data,
			CaptureLen: ci.CaptureLength,
			Timestamp:  ci.Timestamp,
		})
		delivered++
	}
}
