// Package dump renders captured ARP frames for passive monitoring.
package dump

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/fatih/color"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/arpfuzzer/internal/core"
)

const timeFormat = "15:04:05.000000"

// Format renders one captured frame as a single line. Well-formed ARP frames are
// described in tcpdump style; anything gopacket rejects falls back to the raw
// field values read at their fixed offsets.
func Format(item core.CapturedFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s ", item.Seq, item.ReceivedAt.Format(timeFormat))

	pkt := gopacket.NewPacket(item.Frame[:], layers.LayerTypeEthernet, gopacket.NoCopy)
	eth, _ := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	arp, _ := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	if eth == nil || arp == nil || !wellFormed(arp) {
		b.WriteString(formatRaw(&item.Frame))
		return b.String()
	}

	fmt.Fprintf(&b, "%s > %s ", eth.SrcMAC, eth.DstMAC)
	spa := net.IP(arp.SourceProtAddress).String()
	tpa := net.IP(arp.DstProtAddress).String()
	sha := net.HardwareAddr(arp.SourceHwAddress).String()
	tha := net.HardwareAddr(arp.DstHwAddress).String()

	switch arp.Operation {
	case layers.ARPRequest:
		fmt.Fprintf(&b, "%s who-has %s tell %s (%s)",
			color.CyanString("ARP request"), color.BlueString(tpa), color.BlueString(spa), sha)
	case layers.ARPReply:
		fmt.Fprintf(&b, "%s %s is-at %s",
			color.GreenString("ARP reply"), color.BlueString(spa), color.MagentaString(sha))
	default:
		fmt.Fprintf(&b, "%s op=%d %s/%s > %s/%s",
			color.YellowString("ARP"), arp.Operation, sha, spa, tha, tpa)
	}
	return b.String()
}

// wellFormed reports whether the ARP header describes Ethernet/IPv4 addresses.
func wellFormed(arp *layers.ARP) bool {
	return arp.HwAddressSize == 6 && arp.ProtAddressSize == 4 &&
		arp.AddrType == layers.LinkTypeEthernet && arp.Protocol == layers.EthernetTypeIPv4
}

func formatRaw(f *core.Frame) string {
	return fmt.Sprintf("%s > %s %s type=0x%04x htype=%d ptype=0x%04x hlen=%d plen=%d op=%d %s/%s > %s/%s",
		f.HdrSrcMAC(), f.HdrDstMAC(),
		color.RedString("malformed"),
		f.FrameType(), f.HardwareType(), f.ProtocolType(),
		f.HardwareSize(), f.ProtocolSize(), f.Opcode(),
		f.SenderMAC(), f.SenderIP(), f.TargetMAC(), f.TargetIP(),
	)
}

// Hex returns a hexdump of the wire bytes.
func Hex(f *core.Frame) string {
	return hex.Dump(f[:])
}

// Printer writes formatted frames to an output stream.
type Printer struct {
	w       io.Writer
	withHex bool
}

// NewPrinter creates a printer. withHex appends a hexdump after every line.
func NewPrinter(w io.Writer, withHex bool) *Printer {
	return &Printer{w: w, withHex: withHex}
}

// Print writes one captured frame.
func (p *Printer) Print(item core.CapturedFrame) error {
	if _, err := fmt.Fprintln(p.w, Format(item)); err != nil {
		return err
	}
	if p.withHex {
		if _, err := io.WriteString(p.w, Hex(&item.Frame)); err != nil {
			return err
		}
	}
	return nil
}
