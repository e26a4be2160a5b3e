//go:build linux
// +build linux

package probe

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// DiscoverLocalAddrs walks the host's links over rtnetlink and collects
// every IPv4 address into one normalized set, loopback included. Taken once
// at startup; the set is immutable for the capture session.
func DiscoverLocalAddrs() (*LocalAddrSet, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	set := NewLocalAddrSet()
	for _, l := range links {
		addrs, err := netlink.AddrList(l, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("failed to list addresses of %s: %w", l.Attrs().Name, err)
		}
		for _, a := range addrs {
			if a.IP != nil {
				set.Add(a.IP)
			}
		}
	}

	// The loopback alias must always classify as local, even when the lo
	// link carries no address.
	set.AddString("127.0.0.1")

	return set, nil
}
