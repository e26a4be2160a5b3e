package probe

import (
	"testing"
)

func newTestPipeline(local *LocalAddrSet, r Resolver) (*Pipeline, *Table) {
	table := NewTable(r)
	return NewPipeline(local, table, false), table
}

func TestPipelineOutboundUDP(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	// Source local, destination foreign: exactly one Sent record keyed by
	// the source port, increasing bytesSent by the UDP payload length.
	p.HandleFrame(udpFrame("192.168.1.10", "8.8.8.8", 40123, 53, 33))

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	e := findEntry(t, table.Snapshot(), "port 40123/udp")
	if e.BytesSent != 33 {
		t.Errorf("BytesSent = %d, want 33", e.BytesSent)
	}
	if e.BytesReceived != 0 {
		t.Errorf("BytesReceived = %d, want 0", e.BytesReceived)
	}

	stats := p.Stats()
	if stats.Frames != 1 || stats.Transport != 1 {
		t.Errorf("stats = %+v, want 1 frame, 1 transport", stats)
	}
}

func TestPipelineInboundTCP(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	p.HandleFrame(tcpFrame("8.8.8.8", "192.168.1.10", 443, 51000, 1200))

	e := findEntry(t, table.Snapshot(), "port 51000/tcp")
	if e.BytesReceived != 1200 {
		t.Errorf("BytesReceived = %d, want 1200", e.BytesReceived)
	}
	if e.BytesSent != 0 {
		t.Errorf("BytesSent = %d, want 0", e.BytesSent)
	}
}

func TestPipelineLoopbackRecordsBothDirections(t *testing.T) {
	local := testLocalSet("127.0.0.1")
	p, table := newTestPipeline(local, nil)

	p.HandleFrame(udpFrame("127.0.0.1", "127.0.0.1", 5000, 6000, 120))

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (one per direction)", table.Len())
	}
	sent := findEntry(t, table.Snapshot(), "port 5000/udp")
	recv := findEntry(t, table.Snapshot(), "port 6000/udp")
	if sent.BytesSent != 120 || sent.BytesReceived != 0 {
		t.Errorf("source entry = %d/%d, want 120/0", sent.BytesSent, sent.BytesReceived)
	}
	if recv.BytesReceived != 120 || recv.BytesSent != 0 {
		t.Errorf("destination entry = %d/%d, want 0/120", recv.BytesSent, recv.BytesReceived)
	}
}

func TestPipelineZeroPayloadLoopback(t *testing.T) {
	// The 42-byte loopback frame: both entries must exist with zero
	// counters, and nothing may be corrupted by the zero increment.
	local := testLocalSet("127.0.0.1")
	p, table := newTestPipeline(local, nil)

	p.HandleFrame(udpFrame("127.0.0.1", "127.0.0.1", 5000, 6000, 0))

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	for _, key := range []string{"port 5000/udp", "port 6000/udp"} {
		e := findEntry(t, table.Snapshot(), key)
		if e.BytesSent != 0 || e.BytesReceived != 0 {
			t.Errorf("%s = %d/%d, want 0/0", key, e.BytesSent, e.BytesReceived)
		}
	}
}

func TestPipelineTruncatedFrameChangesNoCounters(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	p.HandleFrame(truncate(udpFrame("192.168.1.10", "8.8.8.8", 5000, 53, 10), 13))

	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	stats := p.Stats()
	if stats.ParseFailures != 1 {
		t.Errorf("ParseFailures = %d, want 1", stats.ParseFailures)
	}
}

func TestPipelineForeignPacketDropped(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	p.HandleFrame(tcpFrame("8.8.8.8", "1.1.1.1", 443, 51000, 900))

	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if stats := p.Stats(); stats.NoMatch != 1 {
		t.Errorf("NoMatch = %d, want 1", stats.NoMatch)
	}
}

func TestPipelineNonTransportExcluded(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	icmp := frameOf(
		ethHeader(etherTypeIPv4),
		ipv4Header(ProtoICMP, 5, 28, "192.168.1.10", "8.8.8.8"),
		make([]byte, 8),
	)
	p.HandleFrame(icmp)

	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}
	if stats := p.Stats(); stats.NonTransport != 1 {
		t.Errorf("NonTransport = %d, want 1", stats.NonTransport)
	}
}

func TestPipelineResolvesThroughResolver(t *testing.T) {
	local := testLocalSet("192.168.1.10")
	r := staticResolver{
		resolverKey(51000, ProtoTCP): {PID: 4321, Name: "browser"},
	}
	p, table := newTestPipeline(local, r)

	p.HandleFrame(tcpFrame("8.8.8.8", "192.168.1.10", 443, 51000, 700))

	e := findEntry(t, table.Snapshot(), "4321/browser")
	if e.BytesReceived != 700 {
		t.Errorf("BytesReceived = %d, want 700", e.BytesReceived)
	}
}

func TestPipelineSurvivesMalformedBurst(t *testing.T) {
	// A session processing many packets must survive any single malformed
	// one: mix good and bad frames and check only the good ones count.
	local := testLocalSet("192.168.1.10")
	p, table := newTestPipeline(local, nil)

	for i := 0; i < 50; i++ {
		p.HandleFrame(udpFrame("192.168.1.10", "8.8.8.8", 5000, 53, 10))
		p.HandleFrame(truncate(udpFrame("192.168.1.10", "8.8.8.8", 5000, 53, 10), 20))
		p.HandleFrame(frameOf(
			ethHeader(etherTypeIPv4),
			ipv4Header(ProtoTCP, 5, 30, "192.168.1.10", "8.8.8.8"),
			tcpHeader(5000, 6000, 5),
		))
	}

	e := findEntry(t, table.Snapshot(), "port 5000/udp")
	if e.BytesSent != 500 {
		t.Errorf("BytesSent = %d, want 500", e.BytesSent)
	}
	stats := p.Stats()
	if stats.Frames != 150 {
		t.Errorf("Frames = %d, want 150", stats.Frames)
	}
	if stats.ParseFailures != 100 {
		t.Errorf("ParseFailures = %d, want 100", stats.ParseFailures)
	}
}
