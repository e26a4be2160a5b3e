package probe

import (
	"net"
	"testing"
)

func testLocalSet(addrs ...string) *LocalAddrSet {
	s := NewLocalAddrSet()
	for _, a := range addrs {
		s.AddString(a)
	}
	return s
}

func TestClassify(t *testing.T) {
	local := testLocalSet("127.0.0.1", "192.168.1.10")

	tests := []struct {
		name string
		src  string
		dst  string
		want Classification
	}{
		{"outbound", "192.168.1.10", "8.8.8.8", SourceLocal},
		{"inbound", "8.8.8.8", "192.168.1.10", DestinationLocal},
		{"loopback", "127.0.0.1", "127.0.0.1", BothLocal},
		{"local to local via interface address", "192.168.1.10", "127.0.0.1", BothLocal},
		{"foreign", "8.8.8.8", "1.1.1.1", NoMatch},
		{"empty addresses", "", "", NoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.src, tt.dst, local)
			if got != tt.want {
				t.Errorf("Classify(%s, %s) = %s, want %s", tt.src, tt.dst, got, tt.want)
			}
			// Classification carries no state across packets: re-running the
			// same inputs must give the same answer.
			if again := Classify(tt.src, tt.dst, local); again != got {
				t.Errorf("Classify() not idempotent: %s then %s", got, again)
			}
		})
	}
}

func TestLocalAddrSetAdd(t *testing.T) {
	s := NewLocalAddrSet()

	if !s.AddString("10.0.0.1") {
		t.Error("AddString(10.0.0.1) = false, want true")
	}
	if s.AddString("not-an-ip") {
		t.Error("AddString(not-an-ip) = true, want false")
	}
	// IPv6 addresses parse but never classify; only IPv4 traffic is read.
	if s.AddString("::1") {
		t.Error("AddString(::1) = true, want false")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if !s.Contains("10.0.0.1") {
		t.Error("Contains(10.0.0.1) = false, want true")
	}
	if s.Contains("10.0.0.2") {
		t.Error("Contains(10.0.0.2) = true, want false")
	}
}

func TestLocalAddrSetNormalizesIPv4InIPv6(t *testing.T) {
	s := NewLocalAddrSet()
	s.Add(net.ParseIP("::ffff:192.168.1.10"))
	if !s.Contains("192.168.1.10") {
		t.Error("4-in-6 mapped address should normalize to its IPv4 form")
	}
}

func TestLocalAddrSetAddrsSorted(t *testing.T) {
	s := testLocalSet("192.168.1.10", "10.0.0.1", "127.0.0.1")
	addrs := s.Addrs()
	want := []string{"10.0.0.1", "127.0.0.1", "192.168.1.10"}
	if len(addrs) != len(want) {
		t.Fatalf("Addrs() = %v, want %v", addrs, want)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Errorf("Addrs()[%d] = %s, want %s", i, addrs[i], want[i])
		}
	}
}
