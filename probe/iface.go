package probe

import (
	"fmt"
	"net"
)

// DefaultInterface finds the first non-loopback, up interface.
func DefaultInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		return &iface, nil
	}

	return nil, fmt.Errorf("no suitable network interface found")
}

// AvailableInterfaces returns the names of all interfaces that are up.
func AvailableInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 {
			names = append(names, iface.Name)
		}
	}
	return names, nil
}
