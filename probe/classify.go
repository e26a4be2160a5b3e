package probe

import (
	"net"
	"sort"
)

// LocalAddrSet is the normalized set of IPv4 addresses this host owns,
// including the loopback alias. It is assembled once at startup and treated
// as immutable for the duration of a capture session.
type LocalAddrSet struct {
	addrs map[string]struct{}
}

// NewLocalAddrSet returns an empty address set.
func NewLocalAddrSet() *LocalAddrSet {
	return &LocalAddrSet{addrs: make(map[string]struct{})}
}

// Add inserts an IP into the set. Non-IPv4 addresses are ignored; only IPv4
// traffic is classified.
func (s *LocalAddrSet) Add(ip net.IP) {
	if ip4 := ip.To4(); ip4 != nil {
		s.addrs[ip4.String()] = struct{}{}
	}
}

// AddString inserts a textual IP into the set and reports whether it parsed.
func (s *LocalAddrSet) AddString(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	s.Add(ip)
	return ip.To4() != nil
}

// Contains reports whether the textual address belongs to this host.
func (s *LocalAddrSet) Contains(addr string) bool {
	_, ok := s.addrs[addr]
	return ok
}

// Len returns the number of addresses in the set.
func (s *LocalAddrSet) Len() int { return len(s.addrs) }

// Addrs returns the addresses in the set, sorted for stable output.
func (s *LocalAddrSet) Addrs() []string {
	out := make([]string, 0, len(s.addrs))
	for a := range s.addrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Classify determines which side of a packet is local to this host. It is
// derived solely from the current packet's addresses and the local set; it
// keeps no state across packets.
func Classify(srcIP, dstIP string, local *LocalAddrSet) Classification {
	srcLocal := local.Contains(srcIP)
	dstLocal := local.Contains(dstIP)
	switch {
	case srcLocal && dstLocal:
		return BothLocal
	case srcLocal:
		return SourceLocal
	case dstLocal:
		return DestinationLocal
	default:
		return NoMatch
	}
}
