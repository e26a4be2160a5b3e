//go:build !linux || !cgo
// +build !linux !cgo

package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Sniffer is a stub for non-Linux systems.
type Sniffer struct{}

// SnifferOption is a functional option for Sniffer.
type SnifferOption func(*Sniffer)

// WithFrameSize is a no-op on non-Linux systems.
func WithFrameSize(size int) SnifferOption {
	return func(s *Sniffer) {}
}

// WithBlockSize is a no-op on non-Linux systems.
func WithBlockSize(size int) SnifferOption {
	return func(s *Sniffer) {}
}

// WithNumBlocks is a no-op on non-Linux systems.
func WithNumBlocks(n int) SnifferOption {
	return func(s *Sniffer) {}
}

// WithPollTimeout is a no-op on non-Linux systems.
func WithPollTimeout(d time.Duration) SnifferOption {
	return func(s *Sniffer) {}
}

// WithPacketLimit is a no-op on non-Linux systems.
func WithPacketLimit(n int) SnifferOption {
	return func(s *Sniffer) {}
}

// NewSniffer returns an error on non-Linux systems.
func NewSniffer(ifaceName string, opts ...SnifferOption) (*Sniffer, error) {
	return nil, fmt.Errorf("AF_PACKET capture is only supported on Linux")
}

// Interface returns nil on non-Linux systems.
func (s *Sniffer) Interface() *net.Interface { return nil }

// Run returns an error on non-Linux systems.
func (s *Sniffer) Run(ctx context.Context, handler func(Frame)) (int, error) {
	return 0, fmt.Errorf("AF_PACKET capture is only supported on Linux")
}
