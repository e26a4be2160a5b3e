package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes the accounting snapshot as an ASCII table, one row per
// process or unattributed port.
func RenderTable(w io.Writer, entries []Entry) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Process", "PID", "Bytes Sent", "Bytes Received", "Total"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)

	for _, e := range entries {
		name := e.Key
		pid := "-"
		if e.Owner != nil {
			name = e.Owner.Name
			pid = fmt.Sprintf("%d", e.Owner.PID)
		}
		t.Append([]string{
			name,
			pid,
			fmt.Sprintf("%d", e.BytesSent),
			fmt.Sprintf("%d", e.BytesReceived),
			fmt.Sprintf("%d", e.Total()),
		})
	}
	t.Render()
}

// FormatEntryLineProtocol formats an accounting entry as InfluxDB line
// protocol with the given timestamp.
func FormatEntryLineProtocol(e Entry, ts time.Time) string {
	name := e.Key
	pid := int32(0)
	if e.Owner != nil {
		name = e.Owner.Name
		pid = e.Owner.PID
	}
	return fmt.Sprintf(
		"process_traffic,process=%s,pid=%d bytes_sent=%di,bytes_received=%di %d",
		name,
		pid,
		e.BytesSent,
		e.BytesReceived,
		ts.UnixNano(),
	)
}

// WriteReport renders the snapshot in the requested format: "table", "line"
// or "json".
func WriteReport(w io.Writer, entries []Entry, format string, ts time.Time) error {
	switch format {
	case "table":
		RenderTable(w, entries)
	case "line":
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, FormatEntryLineProtocol(e, ts)); err != nil {
				return err
			}
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
	return nil
}
