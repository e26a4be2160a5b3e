package probe

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// IPv4OnlyFilter assembles a classic BPF program admitting only IPv4 frames,
// the equivalent of the pcap expression "ip" on an Ethernet link. Everything
// past the ethertype is left to the dissector, which owns the real bounds
// checking.
func IPv4OnlyFilter() ([]bpf.RawInstruction, error) {
	ins := []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},                         // EtherType
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 1}, // IPv4?
		bpf.RetConstant{Val: 0xFFFF},                               // accept
		bpf.RetConstant{Val: 0},                                    // drop
	}

	raw, err := bpf.Assemble(ins)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}
