// Package netutil provides TCP reachability helpers.
package netutil

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 2 * time.Second

// Dial attempts one TCP connection to host:port and closes it again. The
// attempt never outlives timeout or ctx.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}
