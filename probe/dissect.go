package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Header sizes fixed by RFC 791, RFC 793 and RFC 768.
const (
	etherHeaderLen  = 14
	ipv4MinHdrLen   = 20
	udpHeaderLen    = 8
	tcpMinHdrLen    = 20
	etherTypeIPv4   = 0x0800
	ipTotalLenOff   = 2
	ipProtocolOff   = 9
	ipSrcAddrOff    = 12
	ipDstAddrOff    = 16
	tcpDataOffByte  = 12
	udpLengthOff    = 4
)

// Dissection failure classes. Every dissection error wraps one of these.
var (
	// ErrTruncated means the captured bytes end before the header that was
	// being parsed.
	ErrTruncated = errors.New("truncated")
	// ErrMalformed means a header length field is internally inconsistent
	// (below its protocol minimum, or implying a negative payload).
	ErrMalformed = errors.New("malformed")
)

// ParseError reports the header at which dissection of a frame failed.
type ParseError struct {
	Header string
	Err    error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrTruncated) {
		return fmt.Sprintf("frame is truncated and lacks a full %s", e.Header)
	}
	return fmt.Sprintf("invalid %s", e.Header)
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncated(header string) error {
	return &ParseError{Header: header, Err: ErrTruncated}
}

func malformed(header string) error {
	return &ParseError{Header: header, Err: ErrMalformed}
}

// Dissect parses the Ethernet, IPv4 and transport headers out of a captured
// frame. Every field read is preceded by a check against the captured
// length; a frame captured shorter than the header being parsed yields a
// *ParseError naming that header. Packets that are IPv4 but neither UDP nor
// TCP dissect successfully into a non-transport Packet. Dissect is a pure
// function: it never retains the frame and has no side effects.
func Dissect(frame Frame) (*Packet, error) {
	data := frame.Data
	if frame.CaptureLen >= 0 && frame.CaptureLen < len(data) {
		data = data[:frame.CaptureLen]
	}

	if len(data) < etherHeaderLen {
		return nil, truncated("Ethernet header")
	}
	etherType := binary.BigEndian.Uint16(data[12:14])
	pkt := &Packet{Timestamp: frame.Timestamp, EtherType: etherType}
	if etherType != etherTypeIPv4 {
		// Non-IPv4 frames (ARP, IPv6, ...) are not transport-trackable.
		// The capture filter normally keeps them out; offline feeds may not.
		return pkt, nil
	}

	// Past the Ethernet header.
	data = data[etherHeaderLen:]
	if len(data) < ipv4MinHdrLen {
		return nil, truncated("IP header")
	}
	ipHdrLen := int(data[0]&0x0f) * 4
	if ipHdrLen < ipv4MinHdrLen {
		return nil, malformed("IP header")
	}
	if len(data) < ipHdrLen {
		return nil, truncated("IP header with options")
	}
	ipTotalLen := int(binary.BigEndian.Uint16(data[ipTotalLenOff : ipTotalLenOff+2]))
	pkt.Protocol = data[ipProtocolOff]
	pkt.SrcIP = net.IP(data[ipSrcAddrOff : ipSrcAddrOff+4]).String()
	pkt.DstIP = net.IP(data[ipDstAddrOff : ipDstAddrOff+4]).String()

	if pkt.Protocol != ProtoUDP && pkt.Protocol != ProtoTCP {
		// Recognized but unhandled protocol (ICMP, plain IP, other).
		// Not an error; dissection stops here.
		return pkt, nil
	}

	// Past the IP header.
	data = data[ipHdrLen:]
	switch pkt.Protocol {
	case ProtoUDP:
		if len(data) < udpHeaderLen {
			return nil, truncated("UDP header")
		}
		pkt.SrcPort = binary.BigEndian.Uint16(data[0:2])
		pkt.DstPort = binary.BigEndian.Uint16(data[2:4])
		udpLen := int(binary.BigEndian.Uint16(data[udpLengthOff : udpLengthOff+2]))
		if udpLen < udpHeaderLen {
			return nil, malformed("UDP header")
		}
		pkt.PayloadLen = udpLen - udpHeaderLen

	case ProtoTCP:
		if len(data) < tcpMinHdrLen {
			return nil, truncated("TCP header length")
		}
		pkt.SrcPort = binary.BigEndian.Uint16(data[0:2])
		pkt.DstPort = binary.BigEndian.Uint16(data[2:4])
		tcpHdrLen := int(data[tcpDataOffByte]>>4) * 4
		if tcpHdrLen < tcpMinHdrLen {
			return nil, malformed("TCP header length")
		}
		if len(data) < tcpHdrLen {
			return nil, truncated("TCP header with options")
		}
		payload := ipTotalLen - ipHdrLen - tcpHdrLen
		if payload < 0 {
			// A corrupted IP total length must not feed a negative byte
			// count into the accounting table.
			return nil, malformed("TCP payload length")
		}
		pkt.PayloadLen = payload
	}

	return pkt, nil
}
