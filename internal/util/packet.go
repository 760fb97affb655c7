package util

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// DescribePacket returns a one-line summary of a raw IP packet for debug logs,
// e.g. "IPv4 10.0.0.2 -> 1.1.1.1 UDP 64B". Packets that do not parse as IP are
// reported by length only.
func DescribePacket(b []byte) string {
	if len(b) == 0 {
		return "empty"
	}

	var first gopacket.LayerType
	switch b[0] >> 4 {
	case 4:
		first = layers.LayerTypeIPv4
	case 6:
		first = layers.LayerTypeIPv6
	default:
		return fmt.Sprintf("non-IP %dB", len(b))
	}

	pkt := gopacket.NewPacket(b, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	net := pkt.NetworkLayer()
	if net == nil {
		return fmt.Sprintf("malformed %dB", len(b))
	}

	flow := net.NetworkFlow()
	proto := "?"
	if tl := pkt.TransportLayer(); tl != nil {
		proto = tl.LayerType().String()
	} else if ip4, ok := net.(*layers.IPv4); ok {
		proto = ip4.Protocol.String()
	} else if ip6, ok := net.(*layers.IPv6); ok {
		proto = ip6.NextHeader.String()
	}

	return fmt.Sprintf("%s %s -> %s %s %dB",
		net.LayerType(), flow.Src(), flow.Dst(), proto, len(b))
}
