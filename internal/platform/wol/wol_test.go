package wol

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagicPacket(t *testing.T) {
	t.Parallel()
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	pkt, err := MagicPacket(mac)
	require.NoError(t, err)
	require.Len(t, pkt, 102)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 6), pkt[:6])
	for i := range 16 {
		off := 6 + i*6
		assert.Equal(t, []byte(mac), pkt[off:off+6], "repetition %d", i)
	}
}

func TestMagicPacket_RejectsLongAddress(t *testing.T) {
	t.Parallel()
	mac, err := net.ParseMAC("00:00:00:00:fe:80:00:00")
	require.NoError(t, err)
	_, err = MagicPacket(mac)
	assert.Error(t, err)
}

func TestSender_Wake(t *testing.T) {
	t.Parallel()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	mac, err := net.ParseMAC("aa:bb:cc:00:00:01")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, NewSender(pc.LocalAddr().String()).Wake(ctx, mac))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	want, _ := MagicPacket(mac)
	assert.Equal(t, want, buf[:n])
}
