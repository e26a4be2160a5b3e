package probe

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Entry is one row of the accounting table: cumulative byte counters for a
// process, or for a raw port when no owning process is known.
type Entry struct {
	Key           string `json:"key"`
	Owner         *Owner `json:"owner,omitempty"`
	Port          uint16 `json:"port"`
	Protocol      string `json:"protocol"`
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}

// Total returns the sum of both counters.
func (e Entry) Total() uint64 { return e.BytesSent + e.BytesReceived }

// Table accumulates per-endpoint byte counters for the lifetime of a capture
// session. Entries are created on first observation of their key and never
// deleted; counters only grow. The capture pipeline is the sole writer, but
// the monitor endpoint may read concurrently, so access is mutex-guarded.
type Table struct {
	mu       sync.Mutex
	resolver Resolver
	entries  map[string]*Entry
	rejected uint64
}

// NewTable creates an accounting table resolving ports through r. A nil
// resolver is allowed; every entry then stays keyed by its raw port.
func NewTable(r Resolver) *Table {
	return &Table{
		resolver: r,
		entries:  make(map[string]*Entry),
	}
}

// Record adds length bytes to the counter selected by dir for the endpoint
// owning the given local port. Unresolved ports are accounted under a raw
// port key instead of being dropped. A negative length is rejected and
// logged; a zero length still creates the entry, with a zero increment.
func (t *Table) Record(port uint16, proto uint8, length int, dir Direction) {
	if length < 0 {
		t.mu.Lock()
		t.rejected++
		t.mu.Unlock()
		log.Printf("accounting: rejected negative length %d for port %d/%s", length, port, ProtocolName(proto))
		return
	}

	var owner *Owner
	key := rawPortKey(port, proto)
	if t.resolver != nil {
		if o, ok := t.resolver.Resolve(port, proto); ok {
			owner = &o
			key = o.Key()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &Entry{
			Key:      key,
			Owner:    owner,
			Port:     port,
			Protocol: ProtocolName(proto),
		}
		t.entries[key] = e
	}
	if dir == DirSent {
		e.BytesSent += uint64(length)
	} else {
		e.BytesReceived += uint64(length)
	}
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Rejected returns how many updates were refused for carrying a negative
// byte length.
func (t *Table) Rejected() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejected
}

// Snapshot returns a copy of all entries, sorted by total bytes descending
// with the key as tiebreaker. The copy is safe to hand to a printer while
// capture continues.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	result := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		result = append(result, *e)
	}
	t.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Total() != result[j].Total() {
			return result[i].Total() > result[j].Total()
		}
		return result[i].Key < result[j].Key
	})
	return result
}

func rawPortKey(port uint16, proto uint8) string {
	return fmt.Sprintf("port %d/%s", port, strings.ToLower(ProtocolName(proto)))
}
