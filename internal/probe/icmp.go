package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

var echoSeq atomic.Uint32

// Pinger sends one echo request and waits for the reply.
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) error
}

// ICMPPinger pings with golang.org/x/net/icmp. It prefers unprivileged
// datagram sockets and falls back to raw sockets.
type ICMPPinger struct{}

// Ping implements Pinger.
func (ICMPPinger) Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, privileged, err := listen(addr.Is4())
	if err != nil {
		return err
	}
	defer conn.Close()

	var reqType, replyType icmp.Type = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	proto := protocolICMP
	if !addr.Is4() {
		reqType, replyType = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
		proto = protocolIPv6ICMP
	}

	seq := int(echoSeq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: reqType,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: []byte("metalboot")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("failed to encode echo: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: addr.AsSlice()}
	if privileged {
		dst = &net.IPAddr{IP: addr.AsSlice()}
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return fmt.Errorf("failed to send echo: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return err
		}
		if !samePeer(peer, addr) {
			continue
		}
		reply, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil || reply.Type != replyType {
			continue
		}
		// Datagram sockets rewrite the echo ID, so only the sequence is matched.
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return nil
		}
	}
}

func listen(v4 bool) (*icmp.PacketConn, bool, error) {
	network, raw, bind := "udp4", "ip4:icmp", "0.0.0.0"
	if !v4 {
		network, raw, bind = "udp6", "ip6:ipv6-icmp", "::"
	}

	conn, err := icmp.ListenPacket(network, bind)
	if err == nil {
		return conn, false, nil
	}
	conn, rawErr := icmp.ListenPacket(raw, bind)
	if rawErr == nil {
		return conn, true, nil
	}
	return nil, false, fmt.Errorf("failed to open icmp socket: %w", errors.Join(err, rawErr))
}

func samePeer(peer net.Addr, want netip.Addr) bool {
	var ip net.IP
	switch p := peer.(type) {
	case *net.UDPAddr:
		ip = p.IP
	case *net.IPAddr:
		ip = p.IP
	default:
		return false
	}
	got, ok := netip.AddrFromSlice(ip)
	return ok && got.Unmap() == want.Unmap()
}
