package wol

import (
	"bytes"
	"context"
	"fmt"
	"net"
)

// MagicPacket builds the 102-byte payload: six 0xFF bytes followed by the
// hardware address repeated sixteen times.
func MagicPacket(mac net.HardwareAddr) ([]byte, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("wake-on-lan needs a 48-bit hardware address, got %d bytes", len(mac))
	}
	var buf bytes.Buffer
	buf.Grow(6 + 16*6)
	buf.Write(bytes.Repeat([]byte{0xff}, 6))
	for range 16 {
		buf.Write(mac)
	}
	return buf.Bytes(), nil
}

// Sender broadcasts magic packets over UDP. Delivery is unacknowledged.
type Sender struct {
	broadcast string
}

// NewSender creates a sender for a broadcast address such as
// "192.168.1.255:9".
func NewSender(broadcast string) *Sender {
	return &Sender{broadcast: broadcast}
}

// Wake sends one magic packet for mac.
func (s *Sender) Wake(ctx context.Context, mac net.HardwareAddr) error {
	payload, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", s.broadcast)
	if err != nil {
		return fmt.Errorf("failed to open wake socket to %s: %w", s.broadcast, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send magic packet for %s: %w", mac, err)
	}
	return nil
}
