//go:build !linux
// +build !linux

package probe

import (
	"fmt"
	"net"
)

// DiscoverLocalAddrs collects the host's IPv4 addresses from the standard
// interface table on systems without rtnetlink.
func DiscoverLocalAddrs() (*LocalAddrSet, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	set := NewLocalAddrSet()
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			set.Add(ipnet.IP)
		}
	}
	set.AddString("127.0.0.1")

	return set, nil
}
