package probe

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// KernelVersion represents a parsed Linux kernel version.
type KernelVersion struct {
	Major int
	Minor int
	Patch int
	Full  string
}

// String returns the kernel version as a string.
func (k KernelVersion) String() string {
	return k.Full
}

// AtLeast checks if this kernel version is at least the specified version.
func (k KernelVersion) AtLeast(major, minor, patch int) bool {
	if k.Major != major {
		return k.Major > major
	}
	if k.Minor != minor {
		return k.Minor > minor
	}
	return k.Patch >= patch
}

// SupportsSockTracepoint checks if the kernel has the
// sock/inet_sock_set_state tracepoint the live port resolver attaches to
// (added in kernel 4.16).
func (k KernelVersion) SupportsSockTracepoint() bool {
	return k.AtLeast(4, 16, 0)
}

// GetKernelVersion reads and parses the current kernel version.
func GetKernelVersion() (KernelVersion, error) {
	return GetKernelVersionFromFile("/proc/version")
}

// GetKernelVersionFromFile reads kernel version from a file (for testing).
func GetKernelVersionFromFile(path string) (KernelVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KernelVersion{}, fmt.Errorf("failed to read kernel version: %w", err)
	}
	return ParseKernelVersion(string(data))
}

// ParseKernelVersion parses a kernel version string.
// Supports formats like:
// - "Linux version 5.4.0-42-generic ..."
// - "5.4.0-42-generic"
// - "5.4.0"
func ParseKernelVersion(versionStr string) (KernelVersion, error) {
	kv := KernelVersion{Full: strings.TrimSpace(versionStr)}

	re := regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	matches := re.FindStringSubmatch(versionStr)
	if len(matches) < 4 {
		return kv, fmt.Errorf("unable to parse kernel version from: %s", versionStr)
	}

	var err error
	kv.Major, err = strconv.Atoi(matches[1])
	if err != nil {
		return kv, fmt.Errorf("invalid major version: %s", matches[1])
	}

	kv.Minor, err = strconv.Atoi(matches[2])
	if err != nil {
		return kv, fmt.Errorf("invalid minor version: %s", matches[2])
	}

	kv.Patch, err = strconv.Atoi(matches[3])
	if err != nil {
		return kv, fmt.Errorf("invalid patch version: %s", matches[3])
	}

	return kv, nil
}
