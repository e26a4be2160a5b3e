package probe

import (
	"log"
	"sync"
)

// PipelineStats counts what happened to the frames a session delivered.
// Everything in here is diagnostic; none of it feeds the accounting table.
type PipelineStats struct {
	Frames        uint64 `json:"frames"`
	Transport     uint64 `json:"transport"`
	NonTransport  uint64 `json:"non_transport"`
	ParseFailures uint64 `json:"parse_failures"`
	NoMatch       uint64 `json:"no_match"`
}

// Pipeline ties dissection, locality classification and accounting together.
// The capture loop invokes HandleFrame once per delivered frame; the call
// runs to completion before the next frame arrives. A malformed packet never
// aborts the session: every per-frame error is swallowed after optional
// diagnostic output.
type Pipeline struct {
	local   *LocalAddrSet
	table   *Table
	verbose bool

	mu    sync.Mutex
	stats PipelineStats
}

// NewPipeline creates a pipeline recording into table, classifying against
// the given local address set. With verbose set, per-packet problems are
// logged with their capture timestamp.
func NewPipeline(local *LocalAddrSet, table *Table, verbose bool) *Pipeline {
	return &Pipeline{local: local, table: table, verbose: verbose}
}

// HandleFrame dissects one captured frame and feeds the accounting table for
// each local direction of the packet. BothLocal records twice: loopback
// traffic is simultaneously an egress and an ingress event for this host.
func (p *Pipeline) HandleFrame(frame Frame) {
	p.count(func(s *PipelineStats) { s.Frames++ })

	pkt, err := Dissect(frame)
	if err != nil {
		p.count(func(s *PipelineStats) { s.ParseFailures++ })
		if p.verbose {
			log.Printf("packet at %s dropped: %v", frame.Timestamp.Format("15:04:05.000000"), err)
		}
		return
	}

	if !pkt.Transport() {
		p.count(func(s *PipelineStats) { s.NonTransport++ })
		if p.verbose && pkt.EtherType == etherTypeIPv4 {
			log.Printf("packet at %s: protocol %s not tracked", frame.Timestamp.Format("15:04:05.000000"), ProtocolName(pkt.Protocol))
		}
		return
	}
	p.count(func(s *PipelineStats) { s.Transport++ })

	switch Classify(pkt.SrcIP, pkt.DstIP, p.local) {
	case SourceLocal:
		p.table.Record(pkt.SrcPort, pkt.Protocol, pkt.PayloadLen, DirSent)
	case DestinationLocal:
		p.table.Record(pkt.DstPort, pkt.Protocol, pkt.PayloadLen, DirReceived)
	case BothLocal:
		p.table.Record(pkt.SrcPort, pkt.Protocol, pkt.PayloadLen, DirSent)
		p.table.Record(pkt.DstPort, pkt.Protocol, pkt.PayloadLen, DirReceived)
	case NoMatch:
		p.count(func(s *PipelineStats) { s.NoMatch++ })
		if p.verbose {
			log.Printf("%s packet %s:%d -> %s:%d is not for this host",
				ProtocolName(pkt.Protocol), pkt.SrcIP, pkt.SrcPort, pkt.DstIP, pkt.DstPort)
		}
	}
}

// Stats returns a copy of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) count(update func(*PipelineStats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
}
