// Package probe implements the packet dissection and accounting pipeline
// that attributes captured network traffic to local processes. It parses
// Ethernet/IPv4/UDP/TCP headers out of raw frames with explicit bounds
// checks, classifies each packet's locality against the host's address set,
// and accumulates per-process sent/received byte counters keyed through a
// port-to-process resolution.
package probe

import (
	"fmt"
	"time"
)

// IP protocol numbers handled by the pipeline.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// Frame is one captured link-layer frame. Data holds the captured bytes,
// which may be fewer than the packet's on-wire length. The buffer is owned
// by the caller for the duration of a single Dissect call and is never
// retained or copied by the pipeline.
type Frame struct {
	Data       []byte
	CaptureLen int
	Timestamp  time.Time
}

// Packet is the result of dissecting one frame. SrcIP/DstIP are set for any
// IPv4 packet; ports and PayloadLen only carry meaning when Transport()
// reports true.
type Packet struct {
	Timestamp  time.Time
	EtherType  uint16
	SrcIP      string
	DstIP      string
	Protocol   uint8
	SrcPort    uint16
	DstPort    uint16
	PayloadLen int
}

// Transport reports whether the packet carries a UDP or TCP segment that the
// accounting table can track.
func (p *Packet) Transport() bool {
	return p.EtherType == etherTypeIPv4 && (p.Protocol == ProtoTCP || p.Protocol == ProtoUDP)
}

// Classification is the 4-way locality of a packet relative to this host.
type Classification int

const (
	// NoMatch means neither address belongs to this host.
	NoMatch Classification = iota
	// SourceLocal means the source address belongs to this host.
	SourceLocal
	// DestinationLocal means the destination address belongs to this host.
	DestinationLocal
	// BothLocal means both addresses belong to this host (loopback/IPC
	// traffic, which counts as egress and ingress at once).
	BothLocal
)

func (c Classification) String() string {
	switch c {
	case SourceLocal:
		return "source-local"
	case DestinationLocal:
		return "destination-local"
	case BothLocal:
		return "both-local"
	default:
		return "no-match"
	}
}

// Direction distinguishes the two counters of an accounting entry.
type Direction int

const (
	// DirSent accounts bytes leaving a local port.
	DirSent Direction = iota
	// DirReceived accounts bytes arriving at a local port.
	DirReceived
)

func (d Direction) String() string {
	if d == DirSent {
		return "sent"
	}
	return "received"
}

// Owner identifies the process that holds a local port.
type Owner struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
}

// Key returns the accounting key for a resolved owner.
func (o Owner) Key() string {
	return fmt.Sprintf("%d/%s", o.PID, o.Name)
}

// Resolver maps a local transport port to its owning process. Resolution may
// fail: ports can be ephemeral, or owned by a process that appeared after
// the snapshot was taken.
type Resolver interface {
	Resolve(port uint16, proto uint8) (Owner, bool)
}

// ProtocolName converts an IP protocol number to a short display name.
func ProtocolName(proto uint8) string {
	switch proto {
	case ProtoICMP:
		return "ICMP"
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case 0:
		return "IP"
	default:
		return fmt.Sprintf("%d", proto)
	}
}
