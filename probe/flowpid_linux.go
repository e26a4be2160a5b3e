//go:build linux
// +build linux

package probe

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/shirou/gopsutil/v3/process"
)

// LivePortTracker resolves TCP ports established mid-capture. It attaches a
// small eBPF program to the sock/inet_sock_set_state tracepoint that records
// the local port and owning PID of every TCP connection reaching the
// ESTABLISHED state. Meant to be chained in front of a SnapshotResolver; the
// snapshot still answers for listeners and UDP.
type LivePortTracker struct {
	m     *ebpf.Map
	prog  *ebpf.Program
	tp    link.Link
	names map[int32]string
}

type sockStateOffsets struct {
	family   int16
	newstate int16
	sport    int16
}

// NewLivePortTracker loads and attaches the tracker. Requires root (or
// CAP_BPF + CAP_PERFMON) and a kernel with the tracepoint; callers should
// gate on KernelVersion.SupportsSockTracepoint first.
func NewLivePortTracker() (*LivePortTracker, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("failed to remove memlock limit: %w", err)
	}
	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel BTF: %w", err)
	}
	var st *btf.Struct
	if err := spec.TypeByName("trace_event_raw_inet_sock_set_state", &st); err != nil {
		return nil, fmt.Errorf("tracepoint struct not found: %w", err)
	}
	off, err := resolveSockStateOffsets(st)
	if err != nil {
		return nil, err
	}

	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "port_pid_map",
		Type:       ebpf.Hash,
		KeySize:    2,
		ValueSize:  4,
		MaxEntries: 65535,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create port map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Type:         ebpf.TracePoint,
		Instructions: buildPortTrackerProgram(m, off),
		License:      "GPL",
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to load eBPF program: %w", err)
	}

	tp, err := link.Tracepoint("sock", "inet_sock_set_state", prog, nil)
	if err != nil {
		prog.Close()
		m.Close()
		return nil, fmt.Errorf("failed to attach tracepoint: %w", err)
	}

	return &LivePortTracker{m: m, prog: prog, tp: tp, names: make(map[int32]string)}, nil
}

// Resolve implements Resolver. Only TCP ports can match; the tracepoint does
// not fire for UDP sockets.
func (t *LivePortTracker) Resolve(port uint16, proto uint8) (Owner, bool) {
	if t == nil || t.m == nil || proto != ProtoTCP {
		return Owner{}, false
	}
	var pid uint32
	key := port
	if err := t.m.Lookup(&key, &pid); err != nil || pid == 0 {
		return Owner{}, false
	}
	return Owner{PID: int32(pid), Name: t.nameOf(int32(pid))}, true
}

func (t *LivePortTracker) nameOf(pid int32) string {
	if name, ok := t.names[pid]; ok {
		return name
	}
	name := ""
	if p, err := process.NewProcess(pid); err == nil {
		if n, err := p.Name(); err == nil {
			name = n
		}
	}
	t.names[pid] = name
	return name
}

// Close detaches the tracepoint and releases the map and program.
func (t *LivePortTracker) Close() error {
	var firstErr error
	if t.tp != nil {
		if err := t.tp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.prog != nil {
		if err := t.prog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.m != nil {
		if err := t.m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func resolveSockStateOffsets(st *btf.Struct) (sockStateOffsets, error) {
	var out sockStateOffsets
	var err error
	if out.family, err = btfMemberOffset(st, "family"); err != nil {
		return sockStateOffsets{}, err
	}
	if out.newstate, err = btfMemberOffset(st, "newstate"); err != nil {
		return sockStateOffsets{}, err
	}
	if out.sport, err = btfMemberOffset(st, "sport"); err != nil {
		return sockStateOffsets{}, err
	}
	return out, nil
}

func btfMemberOffset(st *btf.Struct, name string) (int16, error) {
	for _, m := range st.Members {
		if m.Name == name {
			return int16(m.Offset / 8), nil
		}
	}
	return 0, fmt.Errorf("tracepoint struct member missing: %s", name)
}

// buildPortTrackerProgram assembles: if family == AF_INET and newstate ==
// TCP_ESTABLISHED, map[sport] = current PID. The tracepoint reports sport in
// host byte order.
func buildPortTrackerProgram(m *ebpf.Map, off sockStateOffsets) asm.Instructions {
	const (
		afInet         = 2
		tcpEstablished = 1
		keyOffset      = -8
		valueOffset    = -16
	)
	return asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),
		asm.LoadMem(asm.R1, asm.R6, off.family, asm.Half),
		asm.JNE.Imm(asm.R1, afInet, "exit"),
		asm.LoadMem(asm.R1, asm.R6, off.newstate, asm.Word),
		asm.JNE.Imm(asm.R1, tcpEstablished, "exit"),
		asm.LoadMem(asm.R2, asm.R6, off.sport, asm.Half),
		asm.StoreMem(asm.RFP, keyOffset, asm.R2, asm.Half),
		asm.FnGetCurrentPidTgid.Call(),
		asm.RSh.Imm(asm.R0, 32),
		asm.StoreMem(asm.RFP, valueOffset, asm.R0, asm.Word),
		asm.LoadMapPtr(asm.R1, m.FD()),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, keyOffset),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, valueOffset),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnMapUpdateElem.Call(),
		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}
}
