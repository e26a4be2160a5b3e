package probe

import (
	"context"
	"fmt"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Socket types of gopsutil connection records.
const (
	sockStream uint32 = 1 // TCP
	sockDgram  uint32 = 2 // UDP
)

// SnapshotResolver maps local ports to owning processes from a one-time
// snapshot of the OS socket table taken before capture starts. The snapshot
// is immutable for the session; ports that change ownership mid-capture are
// not re-resolved.
type SnapshotResolver struct {
	owners map[uint32]Owner
}

// NewSnapshotResolver reads the current socket and process tables and builds
// the port-to-process mapping. Failing to read the tables is a startup
// error; the capture session must not begin without a snapshot.
func NewSnapshotResolver(ctx context.Context) (*SnapshotResolver, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("failed to read socket table: %w", err)
	}

	names := make(map[int32]string)
	nameOf := func(pid int32) string {
		if name, ok := names[pid]; ok {
			return name
		}
		name := ""
		if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
			if n, err := p.NameWithContext(ctx); err == nil {
				name = n
			}
		}
		names[pid] = name
		return name
	}

	return &SnapshotResolver{owners: buildOwnerTable(conns, nameOf)}, nil
}

// buildOwnerTable folds connection records into a (proto, port) -> Owner
// map. Records without a PID or a local port carry no attribution and are
// skipped. The first owner seen for a port wins; the socket table may list
// a port once per socket state.
func buildOwnerTable(conns []gnet.ConnectionStat, nameOf func(int32) string) map[uint32]Owner {
	owners := make(map[uint32]Owner)
	for _, c := range conns {
		if c.Pid <= 0 || c.Laddr.Port == 0 {
			continue
		}
		var proto uint8
		switch c.Type {
		case sockStream:
			proto = ProtoTCP
		case sockDgram:
			proto = ProtoUDP
		default:
			continue
		}
		key := resolverKey(uint16(c.Laddr.Port), proto)
		if _, ok := owners[key]; ok {
			continue
		}
		owners[key] = Owner{PID: c.Pid, Name: nameOf(c.Pid)}
	}
	return owners
}

// Resolve looks up the owner of a local port in the snapshot.
func (r *SnapshotResolver) Resolve(port uint16, proto uint8) (Owner, bool) {
	o, ok := r.owners[resolverKey(port, proto)]
	return o, ok
}

// Len returns the number of attributed ports in the snapshot.
func (r *SnapshotResolver) Len() int { return len(r.owners) }

func resolverKey(port uint16, proto uint8) uint32 {
	return uint32(proto)<<16 | uint32(port)
}

// ChainResolver tries each resolver in order and returns the first match.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(port uint16, proto uint8) (Owner, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if o, ok := r.Resolve(port, proto); ok {
			return o, true
		}
	}
	return Owner{}, false
}
