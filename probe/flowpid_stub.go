//go:build !linux
// +build !linux

package probe

import "fmt"

// LivePortTracker is a stub for non-Linux systems.
type LivePortTracker struct{}

// NewLivePortTracker returns an error on non-Linux systems.
func NewLivePortTracker() (*LivePortTracker, error) {
	return nil, fmt.Errorf("live port tracking is only supported on Linux")
}

// Resolve never matches on non-Linux systems.
func (t *LivePortTracker) Resolve(port uint16, proto uint8) (Owner, bool) {
	return Owner{}, false
}

// Close is a no-op on non-Linux systems.
func (t *LivePortTracker) Close() error { return nil }
