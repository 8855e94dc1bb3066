package netutil

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (int, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port, ln
}

func closedPort(t *testing.T) int {
	t.Helper()
	port, ln := listen(t)
	require.NoError(t, ln.Close())
	return port
}

func TestDial(t *testing.T) {
	t.Parallel()
	port, ln := listen(t)
	defer ln.Close()

	assert.NoError(t, Dial(context.Background(), "127.0.0.1", port, time.Second))
	assert.Error(t, Dial(context.Background(), "127.0.0.1", closedPort(t), time.Second))
}

func TestDial_DefaultTimeout(t *testing.T) {
	t.Parallel()
	port, ln := listen(t)
	defer ln.Close()

	assert.NoError(t, Dial(context.Background(), "127.0.0.1", port, 0))
}

func TestDial_Canceled(t *testing.T) {
	t.Parallel()
	port, ln := listen(t)
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, Dial(ctx, "127.0.0.1", port, time.Second))
}
